package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"siterisk/adapters/excel"
	"siterisk/adapters/memory"
	"siterisk/adapters/postgres"
	"siterisk/api"
	"siterisk/app"
	"siterisk/internal"
	"siterisk/internal/config"
	"siterisk/ports"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := internal.NewDefaultLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid, aborting before scoring: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var store ports.RunStore
	if cfg.Database.URL != "" {
		db, err := postgres.Connect(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error("database connection failed: %v", err)
			os.Exit(1)
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Error("migration failed: %v", err)
			os.Exit(1)
		}
		store = postgres.NewRunRepository(db)
		logger.Info("using postgres run store")
	} else {
		store = memory.NewRunStore()
		logger.Info("no DATABASE_URL set, using in-memory run store")
	}

	pipeline, err := app.NewPipelineService(cfg, store, logger)
	if err != nil {
		logger.Error("pipeline setup failed: %v", err)
		os.Exit(1)
	}

	// When an issue log is configured, score it once at startup so the run
	// is immediately available through the API.
	if cfg.Data.IssueLogFile != "" {
		reader := excel.NewIssueLogReader(cfg.Data.IssueLogFile)
		result, err := pipeline.RunFromSource(ctx, reader)
		if err != nil {
			logger.Error("issue log run failed: %v", err)
			os.Exit(1)
		}
		logger.Info("scored issue log %s as run %s (fingerprint %s)",
			cfg.Data.IssueLogFile, result.RunID, result.Fingerprint)
		if os.Getenv("RUN_ONCE") == "true" {
			if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
				logger.Error("failed to write result: %v", err)
				os.Exit(1)
			}
			return
		}
	}

	server := api.NewServer(pipeline, store, logger)
	addr := ":" + cfg.Server.Port
	logger.Info("listening on %s", addr)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := httpServer.ListenAndServe(); err != nil {
		logger.Error("server failed: %v", err)
		os.Exit(1)
	}
}
