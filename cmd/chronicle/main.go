package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chronicle-lab/chronicle/internal/api"
	corecfg "github.com/chronicle-lab/chronicle/internal/core/config"
	"github.com/chronicle-lab/chronicle/internal/journal"
	journalpg "github.com/chronicle-lab/chronicle/internal/journal/postgres"
	"github.com/chronicle-lab/chronicle/internal/migrations"
	"github.com/chronicle-lab/chronicle/internal/server"
	snapshotpg "github.com/chronicle-lab/chronicle/internal/snapshot/postgres"
)

func main() {
	configPath := flag.String("config", "chronicle.yaml", "Path to configuration file")
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
	slog.Info("Loaded config", "config", cfg)

	// 2. Initialize Storage (PostgreSQL)
	store, err := journalpg.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Journal.MetadataShards,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// 2.1. Run Database Migrations
	if err := migrations.Run(store.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// 3. Initialize the journal DAO. The tag and snapshot adapters share the
	// journal adapter's connection.
	tags := journal.NewTagResolver(journalpg.NewTagAdapter(store.DB()))
	dao := journal.NewDao(store, tags, journal.BlobSerializer{}, cfg.Journal.DaoOptions())
	snapshots := snapshotpg.NewAdapter(store.DB())

	slog.Info("Journal initialized",
		"delete_policy", cfg.Journal.DeletePolicy,
		"decode_policy", cfg.Journal.DecodePolicy,
		"prune_reads", cfg.Journal.PruneReads,
		"max_batch_size", cfg.Journal.MaxBatchSize,
		"metadata_shards", cfg.Journal.MetadataShards,
	)

	// 4. Initialize Server
	apiSvc := api.NewService(dao, snapshots, cfg.Server.MaxBodySizeMB)
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), store.DB(), cfg.Server.Mode)
	apiSvc.RegisterRoutes(srv.Engine)

	// 5. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler triggers the shutdown sequence below.
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
