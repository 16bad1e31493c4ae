package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avolkov/graphrag/internal/bootstrap"
	"github.com/avolkov/graphrag/internal/config"
	"github.com/avolkov/graphrag/internal/core/domain"
	"github.com/avolkov/graphrag/internal/observability/logging"
	"github.com/avolkov/graphrag/internal/observability/metrics"
)

const processTimeout = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("worker", "error", "").Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := logging.New("worker", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")

	mux := http.NewServeMux()
	mux.Handle("/metrics", workerMetrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:        ":" + cfg.WorkerMetricsPort,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker metrics server failed", "error", err)
		}
	}()

	handler := func(msgCtx context.Context, documentID string) error {
		processCtx, cancel := context.WithTimeout(msgCtx, processTimeout)
		defer cancel()

		workerMetrics.StartDocument()
		start := time.Now()
		report, err := app.Pipeline.ProcessDocument(processCtx, documentID)
		workerMetrics.FinishDocument("worker", time.Since(start), err)
		if report != nil {
			workerMetrics.RecordResolutions("worker", report.EntitiesCreated, report.EntitiesMerged, report.EntitiesFailed)
			workerMetrics.RecordEdges("worker", report.EdgesInserted, report.EdgesSkipped)
		}
		return err
	}

	go runDedupeSweeps(ctx, app, workerMetrics, time.Duration(cfg.DedupeIntervalMinutes)*time.Minute, logger)

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	if err := app.Queue.SubscribeDocumentExtracted(ctx, handler); err != nil {
		logger.Error("subscription ended with error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker metrics shutdown failed", "error", err)
	}
}

// runDedupeSweeps periodically merges near-duplicate entities, one kind at a
// time. Interval <= 0 disables the sweep.
func runDedupeSweeps(ctx context.Context, app *bootstrap.App, m *metrics.WorkerMetrics, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, kind := range domain.EntityKinds() {
				report, err := app.Resolver.FindAndMergeDuplicates(ctx, kind)
				if err != nil {
					logger.Warn("duplicate sweep failed", "kind", kind, "error", err)
					continue
				}
				m.RecordMerges("worker", report.Merged, report.Failed)
			}
		}
	}
}
