package main

import (
	"context"
	"os"
	"time"

	"marketpay/internal/config"
	"marketpay/internal/db"
	"marketpay/internal/gateway"
	"marketpay/internal/notify"
	"marketpay/internal/services"
	"marketpay/internal/store"
	"marketpay/internal/sweeper"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()
	log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	st := store.NewPostgres(pool)

	var gw gateway.Gateway
	if cfg.Gateway.SecretKey != "" {
		gw = gateway.NewStripeClient(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey)
	}

	dispatcher := notify.LogDispatcher{}
	payments := &services.PaymentService{
		Store:       st,
		Gateway:     gw,
		Settlement:  &services.Settlement{Store: st},
		Notifier:    dispatcher,
		FrontendURL: cfg.Gateway.FrontendURL,
		Currency:    cfg.Payments.Currency,
		WinnerTTL:   time.Duration(cfg.Payments.WinnerTTLHours) * time.Hour,
		FeaturedTTL: time.Duration(cfg.Payments.FeaturedTTLDays) * 24 * time.Hour,
	}

	sw := &sweeper.Sweeper{
		Store:      st,
		Payments:   payments,
		Notifier:   dispatcher,
		CascadeTTL: time.Duration(cfg.Payments.WinnerTTLHours) * time.Hour,
		Interval:   time.Duration(cfg.Sweeper.IntervalSeconds) * time.Second,
	}

	log.Infof("sweeper started (interval=%ds)", cfg.Sweeper.IntervalSeconds)
	sw.Run(ctx)
}
