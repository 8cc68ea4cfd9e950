package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/folio-dev/folio/pkg/engine"
	"github.com/folio-dev/folio/pkg/logging"
	"github.com/folio-dev/folio/pkg/server"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const defaultConfigFile = "folio.yaml"

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// loadConfig reads the config file. Without an explicit path a missing
// folio.yaml falls back to the built-in defaults.
func loadConfig(explicit string) (engine.Config, error) {
	path := explicit
	if path == "" {
		path = defaultConfigFile
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return engine.DefaultConfig(), nil
		}
	}

	return engine.LoadConfig(path)
}

// run builds the engine and serves HTTP until SIGINT or SIGTERM.
func run(configPath, addr string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}

	log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	eng, err := engine.New(cfg, engine.Options{
		Logger:     log,
		Registerer: reg,
	})
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(eng, server.Options{
		Logger:   logging.WithComponent(log, "http"),
		Metrics:  eng.Metrics(),
		Gatherer: reg,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.ShutdownTimeout())

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancelShutdown()

	return httpServer.Shutdown(shutdownCtx)
}
