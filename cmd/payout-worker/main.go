package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/prediction-market-poc/internal/payout-worker/consumer"
	"github.com/radieske/prediction-market-poc/internal/payout-worker/wallet"
	"github.com/radieske/prediction-market-poc/internal/shared/config"
	"github.com/radieske/prediction-market-poc/internal/shared/kafka"
	"github.com/radieske/prediction-market-poc/internal/shared/logger"
	"github.com/radieske/prediction-market-poc/internal/shared/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Env == "local" || cfg.Env == "dev" {
		for _, topic := range []string{cfg.TopicMarketPayouts, cfg.TopicMarketPayoutsDLQ} {
			if err := kafka.EnsureTopic(ctx, cfg.KafkaBrokers, topic, log); err != nil {
				log.Warn("ensure topic", zap.String("topic", topic), zap.Error(err))
			}
		}
	}

	// Kafka consumer (consumer group payout-worker) e DLQ
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicMarketPayouts, "payout-worker")
	defer reader.Close()

	var dlq consumer.MessageWriter
	if cfg.TopicMarketPayoutsDLQ != "" {
		w := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMarketPayoutsDLQ)
		defer w.Close()
		dlq = w
	} else {
		log.Warn("no DLQ topic configured, failed payouts will block the partition until credited")
	}

	// Métricas Prometheus
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "payout_messages_consumed_total", Help: "mensagens consumidas"})
	credited := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "payout_credits_total", Help: "créditos aplicados na carteira"}, []string{"duplicate"})
	dead := prometheus.NewCounter(prometheus.CounterOpts{Name: "payout_dlq_total", Help: "mensagens enviadas para a DLQ"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "payout_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, credited, dead, errorsBy)

	walletCli := wallet.New(cfg.WalletURL)
	proc := consumer.NewProcessor(log, reader, walletCli, dlq)
	proc.OnConsumed = func() { consumed.Inc() }
	proc.OnCredited = func(dup bool) {
		if dup {
			credited.WithLabelValues("true").Inc()
			return
		}
		credited.WithLabelValues("false").Inc()
	}
	proc.OnDLQ = func() { dead.Inc() }
	proc.OnError = func(stage string) { errorsBy.WithLabelValues(stage).Inc() }

	// health: wallet-service alcançável; qualquer resposta HTTP serve
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.WalletURL+"/wallet", nil)
		if err != nil {
			return err
		}
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		res.Body.Close()
		return nil
	})

	log.Info("payout-worker started",
		zap.String("consume", cfg.TopicMarketPayouts),
		zap.String("dlq", cfg.TopicMarketPayoutsDLQ),
		zap.String("wallet", cfg.WalletURL),
	)

	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("payout-worker stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("payout-worker shutdown complete")
}
