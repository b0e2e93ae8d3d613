package main

import (
	"context"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/susupay/walletops/internal/api"
	"github.com/susupay/walletops/internal/cache"
	"github.com/susupay/walletops/internal/config"
	"github.com/susupay/walletops/internal/processor"
	"github.com/susupay/walletops/internal/service"
	"github.com/susupay/walletops/internal/store"
	"github.com/susupay/walletops/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, reading configuration from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("configuration error: %v", err)
	}
	if cfg.Env != "production" {
		logger.SetDebug()
	}

	st, err := store.NewSQLStore(cfg.DBSource)
	if err != nil {
		logger.Fatalf("database connection failed: %v", err)
	}
	defer st.Close()

	// Redis is optional; without it balances are recomputed on every read.
	var snap *cache.BalanceSnapshot
	if cfg.RedisAddr != "" {
		rdb, err := cache.ConnectRedis(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warnf("redis unavailable, balance snapshots disabled: %v", err)
		} else {
			snap = cache.NewBalanceSnapshot(rdb)
		}
	}

	proc := processor.NewMidtransClient(cfg.ProcessorServerKey, cfg.ProcessorSandbox)
	verifier := processor.NewVerifier(cfg.ProcessorServerKey)

	balances := service.NewBalanceService(st, snap)
	transfers := service.NewTransferService(st, snap)
	topups := service.NewTopUpService(st, proc)
	payouts := service.NewPayoutService(st, proc, snap)
	tontines := service.NewTontineService(st, proc, snap)
	webhooks := service.NewWebhookService(verifier, st, snap, payouts, tontines)

	handler := api.NewHandler(st, balances, transfers, topups, payouts, tontines, webhooks)
	router := api.NewRouter(handler, cfg.JWTSecret)

	logger.Infof("server starting on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		logger.Fatalf("server stopped: %v", err)
	}
}
