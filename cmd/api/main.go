package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"leaseflow/auth"
	"leaseflow/config"
	"leaseflow/db"
	"leaseflow/dispute"
	"leaseflow/ledger"
	"leaseflow/mediator"
	"leaseflow/migrations"
	"leaseflow/outbox"
	"leaseflow/resolution"
)

func main() {
	migrate := flag.Bool("migrate", false, "apply embedded migrations before serving")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "leaseflow"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	if *migrate {
		script, err := migrations.All()
		if err != nil {
			log.Fatalf("load migrations: %v", err)
		}
		if err := db.ApplySchema(ctx, pool, script); err != nil {
			log.Fatalf("apply migrations: %v", err)
		}
	}

	mediators := mediator.NewRepository(pool)
	var checker resolution.MediatorRegistry = mediators
	if cfg.RedisURL != "" {
		client, err := mediator.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("bootstrap redis: %v", err)
		}
		defer client.Close()
		checker = mediator.NewCachedRegistry(mediators, mediator.NewRedisCache(client), cfg.MediatorCacheTTL)
	}

	var publisher outbox.Publisher = outbox.NewLogPublisher(slog.Default())
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := outbox.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopics)
		if err != nil {
			log.Fatalf("bootstrap kafka: %v", err)
		}
		defer kp.Close()
		publisher = kp
	}

	disputes := dispute.NewRegistry(dispute.NewRepository(pool))
	ledgerRepo := ledger.NewRepository(pool)
	engine := resolution.NewEngine(disputes, checker, resolution.EngineConfig{
		Admin:        cfg.LedgerAdmin,
		FeeRecipient: cfg.FeeRecipient,
	})
	resolutionService := resolution.NewService(resolution.Dependencies{
		Pool:     pool,
		Engine:   engine,
		Ledger:   ledgerRepo,
		Disputes: disputes,
	})
	reservations := auth.NewReservations(pool, cfg.LedgerAdmin, cfg.FeeRecipient)
	authService := auth.NewService(auth.NewRepository(pool), reservations, cfg.JWTSecret)
	if cfg.LedgerAdminPassword != "" {
		_, err := authService.Provision(ctx, auth.RegisterRequest{
			ID:       cfg.LedgerAdmin,
			Password: cfg.LedgerAdminPassword,
			Role:     auth.RoleAdmin,
		})
		if err != nil && !errors.Is(err, auth.ErrDuplicatePrincipal) {
			log.Fatalf("provision admin principal: %v", err)
		}
	}

	server := NewServer(resolutionService, authService, ledgerRepo, mediators)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	relay := outbox.NewRelay(pool, publisher, outbox.RelayConfig{
		BatchSize:    cfg.OutboxBatchSize,
		PollInterval: cfg.OutboxPollInterval,
		MaxAttempts:  cfg.OutboxMaxAttempts,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("api stopped: %v", err)
	}
}
