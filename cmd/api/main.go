package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketpay/internal/config"
	"marketpay/internal/db"
	"marketpay/internal/gateway"
	internalhttp "marketpay/internal/http"
	"marketpay/internal/notify"
	"marketpay/internal/services"
	"marketpay/internal/store"
	"marketpay/internal/sweeper"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()
	setupLogging()

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

	settlement := &services.Settlement{Store: st}
	dispatcher := notify.LogDispatcher{}
	payments := &services.PaymentService{
		Store:       st,
		Gateway:     gw,
		Settlement:  settlement,
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

	h := internalhttp.NewHandler(payments, sw, st)
	h.WebhookSecret = cfg.Gateway.WebhookSecret
	h.SweepAPIKey = cfg.Sweeper.APIKey
	h.Production = cfg.Environment == "production"

	srv := internalhttp.NewServer(h)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.Infof("api listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}

func setupLogging() {
	log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}
