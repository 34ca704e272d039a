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

	"github.com/radieske/prediction-market-poc/internal/shared/config"
	"github.com/radieske/prediction-market-poc/internal/shared/db"
	"github.com/radieske/prediction-market-poc/internal/shared/logger"
	"github.com/radieske/prediction-market-poc/internal/shared/metrics"
	"github.com/radieske/prediction-market-poc/internal/shared/middleware"
	whttp "github.com/radieske/prediction-market-poc/internal/wallet-service/http"
	wrepo "github.com/radieske/prediction-market-poc/internal/wallet-service/repo"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Inicializa logger estruturado
	log, err := logger.New("wallet-service", cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("service", "wallet-service"), zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Conexão com Postgres para operações de carteira
	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	if cfg.Migrate {
		if err := wrepo.Migrate(ctx, pg); err != nil {
			log.Fatal("postgres migrate", zap.Error(err))
		}
	}

	// Instancia repositório e servidor HTTP da wallet
	repo := wrepo.NewPostgres(pg)
	api := whttp.NewServer(log, repo)

	credits := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wallet_credits_total", Help: "créditos de prêmio recebidos"}, []string{"duplicate"})
	prometheus.MustRegister(credits)
	api.OnCredit = func(dup bool) {
		if dup {
			credits.WithLabelValues("true").Inc()
			return
		}
		credits.WithLabelValues("false").Inc()
	}

	// Servidor HTTP público (API de wallet)
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort, // ex: 8082
		Handler:           middleware.Logging(log)(api.Router()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Servidor de métricas e health check
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, repo.Ping) // ex: 9098
	log.Info("metrics/health listening", zap.String("addr", ":"+cfg.MetricsPort))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		_ = apiSrv.Shutdown(shutdownCtx)
	}()

	// Inicia servidor principal da API de wallet
	log.Info("api listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("api srv", zap.Error(err))
	}
}
