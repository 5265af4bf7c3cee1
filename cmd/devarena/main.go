package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	corecfg "github.com/devarena-lab/project-devarena/internal/core/config"
	"github.com/devarena-lab/project-devarena/internal/core/storage/postgres"
	"github.com/devarena-lab/project-devarena/internal/engine"
	"github.com/devarena-lab/project-devarena/internal/ingestion"
	"github.com/devarena-lab/project-devarena/internal/metrics"
	"github.com/devarena-lab/project-devarena/internal/migrations"
	"github.com/devarena-lab/project-devarena/internal/notify"
	"github.com/devarena-lab/project-devarena/internal/partner"
	"github.com/devarena-lab/project-devarena/internal/server"
	"github.com/devarena-lab/project-devarena/internal/verify"
	"github.com/devarena-lab/project-devarena/internal/verify/github"
)

func main() {
	configPath := flag.String("config", "devarena.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"server_port", cfg.Server.Port,
		"window_days", cfg.Rewards.WindowDays,
		"verification_enabled", cfg.Verification.Enabled)

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// 3. Initialize Metrics
	metricsManager := metrics.NewManager()

	// 4. Initialize External Verification
	var verifier engine.ContributionVerifier
	var linker verify.IssueLinker
	if cfg.Verification.Enabled {
		client := github.New(cfg.Verification.BaseURL, os.Getenv("DEVARENA_GITHUB_TOKEN"))
		verifier = verify.NewFirstContributionChecker(client, cfg.Verification.EffectiveTimeout(), logger)
		linker = client
	} else {
		slog.Info("External verification disabled by config")
	}

	// 5. Initialize Partner Rewards
	var partnerResolver engine.PartnerResolver
	if linker != nil {
		rates, err := partner.NewFileSystemRateRepository(cfg.Partner.RulesDir)
		if err != nil {
			slog.Error("Failed to load partner rate rules", "error", err)
			os.Exit(1)
		}
		partnerResolver = partner.NewResolver(rates, linker, cfg.Verification.EffectiveTimeout(), logger)
	}

	// 6. Initialize Notifications
	notifier := notify.NewTrigger(notify.NewLogSender(logger), cfg.Notify.EffectiveTimeout(), logger)

	// 7. Initialize Reward Engine
	rewardEngine := engine.New(engine.Options{
		Store:      dbAdapter,
		Rates:      cfg.Rates,
		WindowDays: cfg.Rewards.WindowDays,
		Verifier:   verifier,
		Partners:   partnerResolver,
		Notifier:   notifier,
		Metrics:    metricsManager,
		Logger:     logger,
	})

	// 8. Initialize Ingestion and Server
	ingestionSvc := ingestion.NewService(rewardEngine, dbAdapter, cfg.Server.MaxBodySizeMB)

	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)
	ingestionSvc.RegisterRoutes(srv.Engine)
	srv.RegisterMetrics(metricsManager.Handler())

	// 9. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler → triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
