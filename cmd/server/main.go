package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"pigateway/internal/audit"
	"pigateway/internal/client"
	"pigateway/internal/genesis"
	jwttoken "pigateway/internal/jwt_token"
	"pigateway/internal/payment"
	paymentmetrics "pigateway/internal/payment/metrics"
	paymentstore "pigateway/internal/payment/store"
	"pigateway/internal/platform/config"
	"pigateway/internal/platform/httpserver"
	"pigateway/internal/platform/logger"
	"pigateway/internal/platform/postgres"
	platformredis "pigateway/internal/platform/redis"
	"pigateway/internal/session"
	sessionstore "pigateway/internal/session/store"
	httptransport "pigateway/internal/transport/http"
	"pigateway/internal/upstream"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log.Info("configuration loaded", "config", cfg.ToRedacted())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()

	// Session storage: Redis when configured, in-process otherwise.
	var sessStore sessionstore.Store = sessionstore.NewInMemory()
	if cfg.Redis.URL != "" {
		rc, err := platformredis.New(cfg.Redis)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rc.Close()
		sessStore = sessionstore.NewRedis(rc.Client)
		log.Info("sessions backed by redis")
	}

	// Durable settlement and audit rows need Postgres; without it the
	// gateway still runs with in-process stores for local development.
	genesisStore := genesis.DurableStore(genesis.NewInMemory())
	auditStore := audit.Store(audit.NewInMemory())
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		genesisStore = genesis.NewPostgres(db)
		auditStore = audit.NewPostgres(db)
		log.Info("settlement and audit rows backed by postgres")
	}

	publisher := audit.NewPublisher(auditStore, log)

	var verifier payment.Verifier
	if cfg.APIKey != "" {
		verifier = upstream.NewClient(cfg, log)
	}

	payments := payment.NewManager(cfg, paymentstore.NewInMemory(), verifier, paymentmetrics.New(registry), log)
	sessions := session.NewManager(cfg, sessStore, log)
	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.AppID)

	facade := client.New(cfg, sessions, payments, tokens, publisher, log)
	bridge := genesis.NewBridge(cfg, payments, genesisStore, publisher, genesis.NewMetrics(registry), log)

	router := httptransport.NewRouter(facade, bridge, jwttoken.NewMiddlewareAdapter(tokens), registry, log)
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return facade.Run(ctx)
	})

	if len(cfg.KafkaBrokers) > 0 {
		worker, err := audit.NewWorker(ctx, cfg.KafkaBrokers, auditStore, log)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer worker.Close()
		g.Go(func() error {
			return worker.Run(ctx)
		})
	}

	g.Go(func() error {
		log.Info("starting pi gateway", "addr", cfg.Addr, "network", cfg.Network)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
