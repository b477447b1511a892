package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/catdadcode/pdk-data-importer/internal/config"
	"github.com/catdadcode/pdk-data-importer/internal/directory"
	"github.com/catdadcode/pdk-data-importer/internal/importer"
	"github.com/catdadcode/pdk-data-importer/internal/logging"
	"github.com/catdadcode/pdk-data-importer/internal/mailcheck"
	"github.com/catdadcode/pdk-data-importer/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"import_max_rows", cfg.Import.MaxRows,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"import_row_workers", cfg.Import.RowWorkers,
	)

	ctx := context.Background()

	repo, cleanup, err := openDirectory(ctx, cfg.Directory)
	if err != nil {
		slog.Error("failed to open directory store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	checker, err := mailcheck.New(mailcheck.Options{
		ExtraDomainsFile: cfg.Mail.DisposableDomainsFile,
		LookupTimeout:    cfg.Mail.LookupTimeout,
	})
	if err != nil {
		slog.Error("failed to build mail checker", "error", err)
		os.Exit(1)
	}

	stager, err := web.NewStager(cfg.Staging.Dir)
	if err != nil {
		slog.Error("failed to prepare staging directory", "error", err)
		os.Exit(1)
	}

	imports := importer.NewService(cfg.Import, repo, checker)
	server := web.NewServer(cfg.Server, imports, stager)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight imports finish before closing the listener.
		if active := imports.ActiveImports(); active > 0 {
			slog.Info("waiting for imports to complete", "active", active)
			if err := imports.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

// openDirectory picks the directory store: PostgreSQL when a database URL
// is configured, the in-memory store otherwise. The in-memory store loses
// everything on restart and exists for local runs and demos.
func openDirectory(ctx context.Context, cfg config.DirectoryConfig) (directory.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("no database URL configured, using in-memory directory store")
		return directory.NewMemoryRepository(), func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	if u, err := url.Parse(cfg.DatabaseURL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	repo, err := directory.NewPostgresRepository(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return repo, pool.Close, nil
}
