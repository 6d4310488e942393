package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/ports"
)

// BatchDeps is one worker's private pipeline: its own preparer and its
// own publisher, so annotation client and manifest connections are never
// shared across goroutines. Close releases whatever the factory opened.
type BatchDeps struct {
	Preparer  ports.StudyPreparer
	Publisher ports.StudyPublisher
	Close     func() error
}

type BatchRunUseCase struct {
	store   ports.StudyStore
	deps    func() (BatchDeps, error)
	workers int
	logger  *slog.Logger
}

// NewBatchRunUseCase builds the batch pipeline. The deps factory is
// invoked once per worker.
func NewBatchRunUseCase(
	store ports.StudyStore,
	deps func() (BatchDeps, error),
	workers int,
	logger *slog.Logger,
) *BatchRunUseCase {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchRunUseCase{
		store:   store,
		deps:    deps,
		workers: workers,
		logger:  logger,
	}
}

// RunBatch prepares every study found at the given level under dir and,
// when a project is named, publishes each prepared task. Studies are
// processed by a fixed-size worker pool; one failed study is logged and
// skipped, it does not stop the rest.
func (uc *BatchRunUseCase) RunBatch(ctx context.Context, dir, level string, projectID int64) (*domain.BatchReport, error) {
	studies, err := uc.store.ListStudies(ctx, dir, level)
	if err != nil {
		return nil, fmt.Errorf("list studies: %w", err)
	}
	if len(studies) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "run batch",
			fmt.Errorf("no studies at level %q under %s", level, dir))
	}
	return uc.run(ctx, studies, projectID)
}

// RunStudies runs the same worker pool over an explicit list of study
// directories, typically the rows of a worklist.
func (uc *BatchRunUseCase) RunStudies(ctx context.Context, studyDirs []string, projectID int64) (*domain.BatchReport, error) {
	if len(studyDirs) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "run batch",
			fmt.Errorf("empty study list"))
	}
	return uc.run(ctx, studyDirs, projectID)
}

func (uc *BatchRunUseCase) run(ctx context.Context, studies []string, projectID int64) (*domain.BatchReport, error) {
	// Worker pipelines are built up front: a factory failure is a
	// configuration problem and aborts the batch before any study runs.
	workerDeps := make([]BatchDeps, uc.workers)
	for i := range workerDeps {
		deps, err := uc.deps()
		if err != nil {
			uc.closeDeps(workerDeps[:i])
			return nil, fmt.Errorf("build batch worker: %w", err)
		}
		workerDeps[i] = deps
	}

	report := &domain.BatchReport{Total: len(studies)}
	jobs := make(chan string)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < uc.workers; i++ {
		deps := workerDeps[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer uc.closeDeps([]BatchDeps{deps})
			for studyDir := range jobs {
				err := uc.processOne(ctx, deps, studyDir, projectID)
				if err != nil {
					uc.logger.Warn("study_failed",
						"study_dir", studyDir,
						"error", err)
				}
				mu.Lock()
				if err != nil {
					report.Failed++
					report.FailedStudies = append(report.FailedStudies, studyDir)
				} else {
					report.Succeeded++
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, studyDir := range studies {
		select {
		case jobs <- studyDir:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	sort.Strings(report.FailedStudies)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (uc *BatchRunUseCase) processOne(ctx context.Context, deps BatchDeps, studyDir string, projectID int64) error {
	task, err := deps.Preparer.PrepareStudy(ctx, studyDir)
	if err != nil {
		return fmt.Errorf("prepare %s: %w", studyDir, err)
	}
	if projectID == 0 {
		return nil
	}
	if _, err := deps.Publisher.PublishTask(ctx, task, projectID); err != nil {
		return fmt.Errorf("publish %s: %w", studyDir, err)
	}
	return nil
}

func (uc *BatchRunUseCase) closeDeps(deps []BatchDeps) {
	for _, d := range deps {
		if d.Close == nil {
			continue
		}
		if err := d.Close(); err != nil {
			uc.logger.Warn("close batch worker", "error", err)
		}
	}
}
