package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"cryptofolio/internal/config"
	"cryptofolio/internal/engine"
	"cryptofolio/internal/exchange"
	"cryptofolio/internal/httpapi"
	"cryptofolio/internal/ledger"
	"cryptofolio/internal/util"
)

func main() {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	cfgPath := "config/cryptofolio.yaml"
	if p := os.Getenv("CRYPTOFOLIO_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if cfg.Auth.AccessCode == "" {
		log.Fatal("no access code configured, refusing to serve unauthenticated")
	}

	led, err := ledger.Open(cfg.Storage.DBPath, logger)
	if err != nil {
		log.Fatalf("opening ledger: %v", err)
	}
	defer led.Close()

	gate := exchange.NewGateIOClient(
		cfg.GateIO.BaseURL,
		cfg.GateIO.APIKey,
		cfg.GateIO.APISecret,
		cfg.GateIO.RateLimitPerMin,
		logger,
	)

	eng := engine.New(gate, led, decimal.NewFromFloat(cfg.Trading.MinOrderValue), logger)
	api := httpapi.NewServer(eng, led, gate, cfg.Auth.AccessCode, logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("server listening", "addr", httpServer.Addr, "exchange", gate.Name(), "db", cfg.Storage.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
