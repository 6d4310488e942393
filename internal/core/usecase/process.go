package usecase

import (
	"context"
	"fmt"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/ports"
)

type ProcessStudyUseCase struct {
	preparer  ports.StudyPreparer
	publisher ports.StudyPublisher
	repo      ports.TaskRepository
}

func NewProcessStudyUseCase(
	preparer ports.StudyPreparer,
	publisher ports.StudyPublisher,
	repo ports.TaskRepository,
) *ProcessStudyUseCase {
	return &ProcessStudyUseCase{
		preparer:  preparer,
		publisher: publisher,
		repo:      repo,
	}
}

// ProcessStudy runs the pipeline for one queued study: prepare the mosaic
// task, persist it, and upload it when the job names a project.
func (uc *ProcessStudyUseCase) ProcessStudy(ctx context.Context, ref domain.StudyRef) error {
	task, err := uc.preparer.PrepareStudy(ctx, ref.StudyDir)
	if err != nil {
		return uc.fail(ctx, ref.TaskID, fmt.Errorf("prepare study: %w", err))
	}
	if ref.TaskID != "" {
		task.ID = ref.TaskID
	}

	if err := uc.repo.UpdateTaskPrepared(ctx, task); err != nil {
		return uc.fail(ctx, ref.TaskID, fmt.Errorf("persist prepared task: %w", err))
	}

	if ref.ProjectID == 0 {
		return nil
	}

	task, err = uc.publisher.PublishTask(ctx, task, ref.ProjectID)
	if err != nil {
		return uc.fail(ctx, ref.TaskID, fmt.Errorf("publish task: %w", err))
	}
	if err := uc.repo.UpdateTaskUploaded(ctx, task.ID, ref.ProjectID, task.LSTaskID); err != nil {
		return uc.fail(ctx, ref.TaskID, fmt.Errorf("persist uploaded task: %w", err))
	}
	return nil
}

// fail marks the task failed, preserving the pipeline error even when the
// status write itself fails.
func (uc *ProcessStudyUseCase) fail(ctx context.Context, taskID string, pipelineErr error) error {
	if taskID == "" {
		return pipelineErr
	}
	if err := uc.repo.UpdateTaskStatus(ctx, taskID, domain.TaskStatusFailed, pipelineErr.Error()); err != nil {
		return fmt.Errorf("%w; mark failed status: %v", pipelineErr, err)
	}
	return pipelineErr
}
