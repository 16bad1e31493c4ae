package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/avolkov/graphrag/internal/adapters/http"
	"github.com/avolkov/graphrag/internal/bootstrap"
	"github.com/avolkov/graphrag/internal/config"
	"github.com/avolkov/graphrag/internal/observability/logging"
	"github.com/avolkov/graphrag/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("api", "error", "").Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := logging.New("api", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	searchMetrics := metrics.NewSearchMetrics("api")
	router := httpadapter.NewRouter(app.SearchUC, app.Graph, searchMetrics, logger).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", "error", err)
	}
}
