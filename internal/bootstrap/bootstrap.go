// Package bootstrap wires the shared service graph behind cmd/api and
// cmd/worker: postgres, the studies tree, the study queue, the annotation
// client and the use cases on top of them. The batch CLI wires its own
// graph; it has no queue or database.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/mammoai/mammoannotator/internal/config"
	"github.com/mammoai/mammoannotator/internal/core/ports"
	"github.com/mammoai/mammoannotator/internal/core/usecase"
	"github.com/mammoai/mammoannotator/internal/infrastructure/labelstudio"
	"github.com/mammoai/mammoannotator/internal/infrastructure/queue/nats"
	"github.com/mammoai/mammoannotator/internal/infrastructure/report"
	"github.com/mammoai/mammoannotator/internal/infrastructure/repository/postgres"
	"github.com/mammoai/mammoannotator/internal/infrastructure/resilience"
	"github.com/mammoai/mammoannotator/internal/infrastructure/storage/studyfs"
)

type App struct {
	Config config.Config

	Queue ports.StudyQueue
	Tasks ports.TaskRepository

	IntakeUC    ports.StudyIntake
	ProcessUC   ports.StudyProcessor
	ProvisionUC ports.ProjectProvisioner

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	tasks := postgres.NewTaskRepository(db)

	store, err := studyfs.New(cfg.StudiesRoot, cfg.ImageServerURL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init study store: %w", err)
	}

	spec, err := config.LoadProjectTemplate(cfg.ProjectTemplatePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load project template: %w", err)
	}

	// One executor serves both outbound dependencies; breakers are keyed
	// per operation, so queue and annotation calls trip independently.
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init study queue: %w", err)
	}

	annotations := labelstudio.NewWithOptions(cfg.LabelStudioURL, cfg.LabelStudioToken, labelstudio.Options{
		ResilienceExecutor: executor,
	})

	provisionUC := usecase.NewProvisionProjectUseCase(annotations, spec)
	prepareUC := usecase.NewPrepareStudyUseCase(store, nil, report.New())
	publishUC := usecase.NewPublishTaskUseCase(annotations, nil, provisionUC)

	return &App{
		Config: cfg,

		Queue: queue,
		Tasks: tasks,

		IntakeUC:    usecase.NewIntakeStudyUseCase(tasks, store, queue),
		ProcessUC:   usecase.NewProcessStudyUseCase(prepareUC, publishUC, tasks),
		ProvisionUC: provisionUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
