// cmd/editor-service/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"infinote-editor/config"
	"infinote-editor/internal/database"
	"infinote-editor/internal/editor"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config file (optional)")
		port       = flag.String("port", "", "Server port (overrides config)")
		env        = flag.String("env", "", "Environment (dev, prod)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath, *env)
	if err != nil {
		panic(err)
	}
	if *port != "" {
		cfg.Port = *port
	}

	logger := newLogger(cfg.Env)
	defer logger.Sync()

	logger.Info("starting editor service",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env))

	// Snapshot store is optional; without it documents live in memory only.
	var db *database.DB
	if cfg.UseDB {
		db, err = database.NewDB(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
		if err != nil {
			logger.Warn("could not connect to database, running without persistence", zap.Error(err))
			db = nil
		} else {
			logger.Info("database connection established")
		}
	}

	service := editor.NewService(&editor.Config{
		MaxClients:       cfg.MaxClients,
		AutoSaveInterval: cfg.AutoSaveInterval,
		CacheSize:        cfg.CacheSize,
	}, db, logger)

	if err := service.Start(); err != nil {
		logger.Fatal("failed to start service", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", service.HandleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(service.GetMetrics())
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		service.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	if env == "prod" {
		return zap.Must(zap.NewProduction())
	}
	return zap.Must(zap.NewDevelopment())
}
