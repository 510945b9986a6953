package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	"vesta/docs"
	"vesta/internal/auth"
	"vesta/internal/broker"
	"vesta/internal/config"
	"vesta/internal/handlers"
	"vesta/internal/logging"
	"vesta/internal/store"
)

// @title Vesta Marketplace API
// @version 1.0
// @description Listings, favorites, messaging and notifications with a STOMP over WebSocket broker at /ws

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	if err := run(); err != nil {
		if errors.Is(err, config.ErrVersionRequested) {
			return
		}
		fmt.Fprintln(os.Stderr, "vesta:", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from .env, environment variables and flags
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.Logging, os.Stderr)

	logger.Info("starting vesta",
		"version", config.Version,
		"port", cfg.Server.Port,
		"send_queue_size", cfg.Realtime.SendQueueSize,
		"snapshot_file", cfg.Storage.SnapshotFile,
		"redis_relay", cfg.Redis.URL != "",
		"cors", cfg.Security.EnableCORS,
		"log_level", cfg.Logging.Level,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.New()
	snapshotsDone := make(chan struct{})
	if path := cfg.Storage.SnapshotFile; path != "" {
		if err := st.LoadFile(path); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		go func() {
			defer close(snapshotsDone)
			st.RunSnapshots(ctx, path, cfg.Storage.SnapshotInterval, logger)
		}()
	} else {
		close(snapshotsDone)
	}

	// Initialize the hub
	hub := broker.NewHub(logger)
	go hub.Run()

	if cfg.Redis.URL != "" {
		rdb, err := broker.DialRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		relay := broker.NewRedisRelay(rdb, cfg.Redis.Channel, hub, logger)
		hub.SetRelay(relay)
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Error("redis relay stopped", "error", err)
			}
		}()
	}

	tokens := auth.NewTokenIssuer(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	api := handlers.New(cfg, st, hub, tokens, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(api, cfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			stop()
			<-snapshotsDone
			hub.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutdown signal received, starting graceful shutdown")

	// Shutdown hub first so clients get their queues flushed
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	select {
	case <-snapshotsDone:
	case <-time.After(cfg.Server.ShutdownTimeout):
		logger.Warn("final snapshot did not finish in time")
	}

	logger.Info("server shutdown complete")
	return nil
}

// newRouter mounts the API routes and the swagger UI
func newRouter(api *handlers.API, cfg *config.Config) http.Handler {
	r := api.Routes()

	r.HandleFunc("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(docs.SwaggerInfo.ReadDoc()))
	}).Methods("GET")
	docURL := "/swagger/doc.json"
	if cfg.Server.PublicURL != "" {
		docURL = cfg.Server.PublicURL + docURL
	}
	r.PathPrefix("/swagger/").Handler(httpSwagger.Handler(httpSwagger.URL(docURL)))

	return api.Handler(r)
}
