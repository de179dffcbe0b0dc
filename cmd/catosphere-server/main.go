// Package main provides the Catosphere API server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/catosphere/catosphere-go/internal/config"
	"github.com/catosphere/catosphere-go/internal/db"
	"github.com/catosphere/catosphere-go/internal/discovery"
	"github.com/catosphere/catosphere-go/internal/jobs"
	"github.com/catosphere/catosphere-go/internal/llm"
	"github.com/catosphere/catosphere-go/internal/onboarding"
	"github.com/catosphere/catosphere-go/internal/pipeline"
	"github.com/catosphere/catosphere-go/internal/scheduler"
	"github.com/catosphere/catosphere-go/internal/server"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()
	slog.SetDefault(logger)

	slog.Info("starting catosphere-server", "addr", cfg.ListenAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		cancel()
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if *wipeDB || os.Getenv("CATOSPHERE_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			cancel()
			slog.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}

	if err := dbClient.InitSchema(ctx); err != nil {
		cancel()
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	// Jobs left running by a crashed process cannot be resumed; fail them
	// visibly so operators can re-trigger.
	failed, err := dbClient.FailRunningJobs(ctx, "job interrupted by server restart")
	if err != nil {
		slog.Warn("failed to recover interrupted jobs", "error", err)
	} else if failed > 0 {
		slog.Info("marked interrupted jobs as errored", "count", failed)
	}
	cancel()

	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	states := jobs.NewDBStateStore(dbClient)
	sentinel := jobs.NewDBSentinel(dbClient)
	runner := jobs.NewRunner(states, sentinel, logger)

	// The real classification pipeline plugs in here.
	placeholder := &pipeline.Placeholder{Logger: logger}

	var oracle discovery.Oracle
	if cfg.LLMProvider != config.ProviderNone {
		model, err := llm.NewModel(cfg)
		if err != nil {
			slog.Warn("ranking oracle unavailable, discovery will use the fallback scorer", "error", err)
		} else {
			oracle = llm.NewRankingOracle(model)
		}
	}

	engine := discovery.NewEngine(discovery.Config{
		Store:    dbClient,
		Oracle:   oracle,
		Runner:   runner,
		Catalog:  placeholder,
		Proc:     placeholder,
		MaxTerms: cfg.DiscoveryMaxTerms,
		Delay:    time.Duration(cfg.DiscoveryDelaySec) * time.Second,
		Logger:   logger,
	})

	sched, err := scheduler.New(engine, cfg.DiscoveryTime, logger)
	if err != nil {
		slog.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	onboardingSvc := onboarding.NewService(
		dbClient,
		&onboarding.TokenIsKeyResolver{Store: dbClient},
		&onboarding.PlaceholderValidator{Logger: logger},
		logger,
	)

	srv := server.New(states, runner, placeholder, placeholder, onboardingSvc, sched, dbClient, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-sigCtx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
}
