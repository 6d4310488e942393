package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/ports"
	"github.com/mammoai/mammoannotator/internal/version"
)

type IntakeStudyUseCase struct {
	repo  ports.TaskRepository
	store ports.StudyStore
	queue ports.StudyQueue
}

func NewIntakeStudyUseCase(
	repo ports.TaskRepository,
	store ports.StudyStore,
	queue ports.StudyQueue,
) *IntakeStudyUseCase {
	return &IntakeStudyUseCase{
		repo:  repo,
		store: store,
		queue: queue,
	}
}

func (uc *IntakeStudyUseCase) IntakeStudy(ctx context.Context, pathOrID string, projectID int64) (*domain.Task, error) {
	ref, err := uc.store.ResolveStudy(ctx, pathOrID)
	if err != nil {
		return nil, fmt.Errorf("resolve study: %w", err)
	}

	now := time.Now().UTC()
	task := &domain.Task{
		ID:        uuid.NewString(),
		PatientID: ref.PatientID,
		StudyID:   ref.StudyID,
		StudyDir:  ref.StudyDir,
		Version:   version.Version,
		Status:    domain.TaskStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task record: %w", err)
	}

	ref.TaskID = task.ID
	ref.ProjectID = projectID
	ref.EnqueuedAt = now
	if err := uc.queue.PublishStudy(ctx, ref); err != nil {
		return nil, fmt.Errorf("publish study to queue: %w", err)
	}
	return task, nil
}
