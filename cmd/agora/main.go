// Package main runs the agora server: a session-backed social feed with a
// small item and order flow, served over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/agora-social/agora/internal/app"
	"github.com/agora-social/agora/internal/app/httpapi"
	"github.com/agora-social/agora/internal/app/metrics"
	redisstore "github.com/agora-social/agora/internal/app/storage/redis"
	"github.com/agora-social/agora/internal/config"
	"github.com/agora-social/agora/internal/httpserver"
	"github.com/agora-social/agora/pkg/logger"

	"github.com/agora-social/agora/internal/app/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	envFile := flag.String("env-file", "", "path to .env file loaded before config")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "load env file: %v\n", err)
			os.Exit(1)
		}
	} else {
		// a local .env is optional
		_ = godotenv.Load()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("server exited")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	stores := app.Stores{}

	var db *sqlx.DB
	if cfg.Database.DSN != "" {
		var err error
		db, err = openDatabase(cfg.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		if err := postgres.Migrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		store := postgres.New(db)
		stores = app.Stores{
			Accounts:  store,
			Sessions:  store,
			Posts:     store,
			Comments:  store,
			Reactions: store,
			Items:     store,
			Orders:    store,
		}
		log.Info("using postgres stores")
	} else {
		log.Warn("DATABASE_URL not set; using in-memory stores")
	}

	if cfg.Sessions.Backend == "redis" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Sessions.RedisAddr,
			Password: cfg.Sessions.RedisPassword,
			DB:       cfg.Sessions.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		defer client.Close()

		stores.Sessions = redisstore.New(client)
		log.Info("using redis sessions")
	}

	application, err := app.New(stores, app.Options{
		SessionTTL:    cfg.Sessions.TTL,
		SweepInterval: cfg.Sessions.SweepInterval,
	}, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	handler, err := httpapi.NewHandler(application, log, httpapi.Options{
		AuditFile:      cfg.HTTP.AuditFile,
		AuditMax:       cfg.HTTP.AuditMax,
		ReactPerMinute: cfg.HTTP.ReactPerMinute,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	server := httpserver.New(cfg.Server, log, metrics.InstrumentHandler(handler))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}
	return nil
}

func openDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
