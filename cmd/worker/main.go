package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mammoai/mammoannotator/internal/bootstrap"
	"github.com/mammoai/mammoannotator/internal/config"
	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/observability/logging"
	"github.com/mammoai/mammoannotator/internal/observability/metrics"
)

const service = "worker"

// studyTimeout bounds one study's prepare-and-publish run; a study that
// cannot finish in this window is failed and the worker moves on.
const studyTimeout = 5 * time.Minute

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(service, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	m := metrics.NewWorkerMetrics(service)
	metricsServer := &http.Server{
		Addr:        ":" + cfg.WorkerMetricsPort,
		Handler:     metricsHandler(m),
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("worker metrics on :%s", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("worker metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	log.Printf("worker subscribed to %s", cfg.NATSSubject)
	err = app.Queue.SubscribeStudies(ctx, func(handlerCtx context.Context, ref domain.StudyRef) error {
		if !ref.EnqueuedAt.IsZero() {
			m.ObserveQueueLag(service, time.Since(ref.EnqueuedAt))
		}
		m.StartStudy()
		started := time.Now()

		processCtx, cancel := context.WithTimeout(handlerCtx, studyTimeout)
		defer cancel()
		err := app.ProcessUC.ProcessStudy(processCtx, ref)
		m.FinishStudy(service, time.Since(started), err)
		if err != nil {
			return err
		}

		recordStageCounters(handlerCtx, app, m, ref.TaskID)
		return nil
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

func metricsHandler(m *metrics.WorkerMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// recordStageCounters reads the finished task back to count what the run
// produced. Counter gaps are acceptable; a read failure only logs.
func recordStageCounters(ctx context.Context, app *bootstrap.App, m *metrics.WorkerMetrics, taskID string) {
	task, err := app.Tasks.GetTask(ctx, taskID)
	if err != nil {
		slog.Warn("task readback failed after processing", "task_id", taskID, "error", err)
		return
	}
	m.AddViewsCropped(service, len(task.CropDetails))
	if task.Status == domain.TaskStatusUploaded {
		m.RecordTaskUploaded(service)
	}
}
