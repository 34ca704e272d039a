package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/prediction-market-poc/internal/shared/config"
	"github.com/radieske/prediction-market-poc/internal/shared/logger"
	"github.com/radieske/prediction-market-poc/internal/shared/middleware"
)

func rp(to string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(to)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q", to)
	}
	return httputil.NewSingleHostReverseProxy(u), nil
}

// newRouter monta as rotas públicas: /api/markets/*, /api/ws -> market-service e /api/wallet/* -> wallet-service
func newRouter(log *zap.Logger, marketURL, walletURL string) (http.Handler, error) {
	market, err := rp(marketURL)
	if err != nil {
		return nil, err
	}
	wallet, err := rp(walletURL)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()

	// markets (ex.: /api/markets/mkt-1/bets -> market-service /markets/mkt-1/bets)
	mux.Handle("/api/markets", http.StripPrefix("/api", market))
	mux.Handle("/api/markets/", http.StripPrefix("/api", market))
	mux.Handle("/api/ws", http.StripPrefix("/api", market))

	// wallet (ex.: /api/wallet/deposit -> wallet-service /wallet/deposit)
	mux.Handle("/api/wallet", http.StripPrefix("/api", wallet))
	mux.Handle("/api/wallet/", http.StripPrefix("/api", wallet))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return middleware.CORS(middleware.Logging(log)(mux)), nil
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

	handler, err := newRouter(log, cfg.MarketURL, cfg.WalletURL)
	if err != nil {
		log.Fatal("gateway routes", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("api-gateway listening",
		zap.String("addr", srv.Addr),
		zap.String("market", cfg.MarketURL),
		zap.String("wallet", cfg.WalletURL),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("gateway failed", zap.Error(err))
	}
}
