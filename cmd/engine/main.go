// Package main runs the rent settlement engine: contract lifecycle, payment
// routing, escrow, wallet ledger, and the reminder sweeps.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/adhcode/howitworksapp/internal/app"
	"github.com/adhcode/howitworksapp/internal/config"
	"github.com/adhcode/howitworksapp/internal/metrics"
	paymentsvc "github.com/adhcode/howitworksapp/internal/services/payments"
	"github.com/adhcode/howitworksapp/internal/storage/postgres"
	"github.com/adhcode/howitworksapp/pkg/logger"
)

func main() {
	log := logger.NewDefault("engine")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("load configuration")
		os.Exit(1)
	}

	stores := app.Stores{}
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Error("open database")
			os.Exit(1)
		}
		defer db.Close()
		db.SetMaxOpenConns(20)
		db.SetConnMaxLifetime(30 * time.Minute)

		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			log.WithError(err).Error("ping database")
			os.Exit(1)
		}

		store := postgres.New(db)
		stores = app.Stores{
			Contracts: store,
			Wallets:   store,
			Escrows:   store,
			Payments:  store,
			Reminders: store,
		}
		log.Info("using postgres store")
	} else {
		log.Warn("DATABASE_URL not set; using in-memory store")
	}

	collab := app.Collaborators{}
	if cfg.PaystackSecretKey != "" {
		gateway, err := paymentsvc.NewHTTPGateway(nil, "", cfg.PaystackSecretKey, log)
		if err != nil {
			log.WithError(err).Error("configure payment gateway")
			os.Exit(1)
		}
		collab.Gateway = gateway
	} else {
		log.Warn("PAYSTACK_SECRET_KEY not set; hosted checkout disabled")
	}

	application, err := app.New(stores, collab, nil, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}
	log.Info("settlement engine started")

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		httpServer = &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
		go func() {
			log.WithField("addr", cfg.HTTPAddr).Info("metrics endpoint listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("metrics endpoint failed")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("metrics endpoint shutdown")
		}
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("stop application")
		os.Exit(1)
	}
	log.Info("settlement engine stopped")
}
