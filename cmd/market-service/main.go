package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/prediction-market-poc/internal/market-service/archive"
	"github.com/radieske/prediction-market-poc/internal/market-service/cache"
	"github.com/radieske/prediction-market-poc/internal/market-service/engine"
	httpapi "github.com/radieske/prediction-market-poc/internal/market-service/http"
	"github.com/radieske/prediction-market-poc/internal/market-service/outbox"
	"github.com/radieske/prediction-market-poc/internal/market-service/producer"
	"github.com/radieske/prediction-market-poc/internal/market-service/repo"
	"github.com/radieske/prediction-market-poc/internal/market-service/wallet"
	"github.com/radieske/prediction-market-poc/internal/market-service/ws"
	sharedcache "github.com/radieske/prediction-market-poc/internal/shared/cache"
	"github.com/radieske/prediction-market-poc/internal/shared/config"
	"github.com/radieske/prediction-market-poc/internal/shared/db"
	"github.com/radieske/prediction-market-poc/internal/shared/kafka"
	"github.com/radieske/prediction-market-poc/internal/shared/logger"
	"github.com/radieske/prediction-market-poc/internal/shared/metrics"
)

// store reúne o que o engine e o relay precisam do armazenamento
type store interface {
	engine.Store
	outbox.Source
}

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

	// Armazenamento: Postgres; DSN vazio roda em memória (dev)
	var (
		st       store
		pgHealth = func(context.Context) error { return nil }
	)
	if cfg.PostgresDSN == "" {
		log.Warn("POSTGRES_DSN empty, using in-memory store")
		st = repo.NewMemory()
	} else {
		pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("postgres connect", zap.Error(err))
		}
		defer pg.Close()
		if cfg.Migrate {
			if err := repo.Migrate(ctx, pg); err != nil {
				log.Fatal("postgres migrate", zap.Error(err))
			}
		}
		pgStore := repo.NewPostgres(pg)
		pgHealth = pgStore.Ping
		st = pgStore
	}

	// Redis: cache de snapshots + canal de replicação
	rdb, err := sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()
	syncer := cache.NewRedisSync(rdb, cfg.RedisMarketChannel, cfg.CacheTTL)

	// Kafka: gateway de transferências (DistributeWinnings)
	if cfg.Env == "local" || cfg.Env == "dev" {
		if err := kafka.EnsureTopic(ctx, cfg.KafkaBrokers, cfg.TopicMarketPayouts, log); err != nil {
			log.Warn("ensure topic", zap.String("topic", cfg.TopicMarketPayouts), zap.Error(err))
		}
	}
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMarketPayouts)
	defer writer.Close()
	gateway := producer.NewKafkaGateway(writer)

	// Métricas Prometheus
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_operations_total", Help: "operações de mercado por resultado"}, []string{"op", "result"})
	dispatched := prometheus.NewCounter(prometheus.CounterOpts{Name: "market_payouts_dispatched_total", Help: "transferências publicadas no gateway"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_outbox_errors_total", Help: "erros do relay por fase"}, []string{"phase"})
	prometheus.MustRegister(ops, dispatched, errorsBy)

	relay := outbox.NewRelay(log, st, gateway, cfg.OutboxInterval)
	relay.OnDispatched = func() { dispatched.Inc() }
	relay.OnError = func(phase string) { errorsBy.WithLabelValues(phase).Inc() }

	eng := engine.New(st, engine.WithAdmin(cfg.MarketAdmin), engine.WithLogger(log))

	hub := ws.NewHub(func(r *http.Request) bool { return true })

	api := &httpapi.API{
		Log:        log,
		Engine:     eng,
		Escrow:     wallet.New(cfg.WalletURL),
		Sync:       syncer,
		WS:         http.HandlerFunc(hub.HandleWS),
		APIKey:     cfg.APIKey,
		OnResolved: relay.Notify,
		OnOp: func(op string, err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			ops.WithLabelValues(op, result).Inc()
		},
	}

	// Arquivo de settlements opcional
	if cfg.S3Bucket != "" {
		arc, err := archive.New(ctx, archive.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			log.Fatal("s3 archive", zap.Error(err))
		}
		api.Archive = arc
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pgHealth(ctx); err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})

	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return ws.RunRedisSubscriber(gctx, rdb, cfg.RedisMarketChannel, hub, log) })
	g.Go(func() error {
		log.Info("market-service listening",
			zap.String("addr", apiSrv.Addr),
			zap.String("payouts_topic", cfg.TopicMarketPayouts),
		)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		return apiSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("market-service stopped", zap.Error(err))
	}
	log.Info("market-service shutdown complete")
}
