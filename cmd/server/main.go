package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/Cobiozo/essential-gem-clone-sub008/internal/api"
	"github.com/Cobiozo/essential-gem-clone-sub008/internal/config"
	"github.com/Cobiozo/essential-gem-clone-sub008/internal/mailer"
	"github.com/Cobiozo/essential-gem-clone-sub008/internal/pkg/logger"
	"github.com/Cobiozo/essential-gem-clone-sub008/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("config load failed", "error", err.Error())
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		logger.Error("no database configured; set database.url or DATABASE_URL")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("database open failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		logger.Error("database unreachable", "error", err.Error())
		os.Exit(1)
	}
	cancel()

	st := store.New(db)

	opts := []mailer.Option{
		mailer.WithTransportFactory(mailer.SMTPTransportFactory(
			cfg.Mailer.LocalName,
			time.Duration(cfg.Mailer.ConnectTimeoutSeconds)*time.Second,
			time.Duration(cfg.Mailer.IOTimeoutSeconds)*time.Second,
		)),
		mailer.WithPacer(mailer.FixedDelayPacer{Delay: cfg.Mailer.PacingDelay()}),
	}

	var progress *mailer.RedisProgress
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		progress = mailer.NewRedisProgress(rdb)
		opts = append(opts, mailer.WithProgressReporter(progress))
		logger.Info("batch progress tracking enabled", "redis", cfg.Redis.Addr)
	}

	dispatcher := mailer.NewDispatcher(st, st, st, st, opts...)

	var progressReader api.ProgressReader
	if progress != nil {
		progressReader = progress
	}
	handlers := api.NewHandlers(dispatcher, progressReader)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handlers.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // dispatch runs synchronously
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err.Error())
	}
}
