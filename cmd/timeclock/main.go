package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"punchcard-labs/timeclock/internal/bot"
	"punchcard-labs/timeclock/internal/cache"
	"punchcard-labs/timeclock/internal/config"
	"punchcard-labs/timeclock/internal/db"
	"punchcard-labs/timeclock/internal/logging"
	"punchcard-labs/timeclock/internal/metrics"
	"punchcard-labs/timeclock/internal/routes"
	"punchcard-labs/timeclock/internal/workers"
)

func main() {
	// Environment variables from a .env file, if one is present.
	if err := godotenv.Load(); err == nil {
		log.Println("Environment variables loaded from .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logging.Init(cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.Close()

	logging.Info("Timeclock starting up", "environment", cfg.AppEnv)

	if cfg.Database.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0o755); err != nil {
			logging.Fatal("Failed to create data directory", "error", err)
		}
	}

	// The existence check has to happen before Open, which creates the
	// sqlite file as a side effect.
	fresh := !db.SchemaExists(cfg.Database.Driver, cfg.Database.DSN)

	orm, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logging.Fatal("Failed to connect to durable store", "error", err)
	}
	if err := db.Bootstrap(orm, fresh); err != nil {
		logging.Fatal("Failed to bootstrap schema", "error", err)
	}

	reg := metrics.NewRegistry()
	guilds := cache.NewGuildCache(orm, reg)
	members := cache.NewMemberCache(orm, reg)

	// Warm the indices before anything serves a request.
	warmer := workers.NewCacheWarmer(orm, guilds, members, reg)
	if err := warmer.Warm(context.Background()); err != nil {
		logging.Fatal("Failed to warm caches", "error", err)
	}

	upSince := time.Now()
	router := routes.RegisterRoutes(orm, members, reg, cfg.Bot.HistoryDays, upSince)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", router)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.API.Port)
		logging.Info("Ops API listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logging.Error("Ops API stopped", "error", err)
		}
	}()

	b, err := bot.New(cfg, guilds, members)
	if err != nil {
		logging.Fatal("Failed to create bot", "error", err)
	}
	if err := b.Run(); err != nil {
		logging.Fatal("Bot exited with error", "error", err)
	}
}
