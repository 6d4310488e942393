package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/ports"
)

type PublishTaskUseCase struct {
	api      ports.AnnotationAPI
	recorder ports.TaskRecorder
	projects ports.ProjectProvisioner

	mu        sync.Mutex
	projectID int64
}

// NewPublishTaskUseCase builds the task upload flow. The recorder is an
// optional manifest; the provisioner is an optional project factory used
// when a publish names no project. Pass nil for either.
func NewPublishTaskUseCase(
	api ports.AnnotationAPI,
	recorder ports.TaskRecorder,
	projects ports.ProjectProvisioner,
) *PublishTaskUseCase {
	return &PublishTaskUseCase{
		api:      api,
		recorder: recorder,
		projects: projects,
	}
}

func (uc *PublishTaskUseCase) PublishTask(ctx context.Context, task *domain.Task, projectID int64) (*domain.Task, error) {
	if task == nil || len(task.CropDetails) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "publish task",
			errors.New("task carries no crop details"))
	}

	if projectID == 0 {
		var err error
		projectID, err = uc.ensureProject(ctx)
		if err != nil {
			return nil, err
		}
	}

	lsTaskID, err := uc.api.CreateTask(ctx, projectID, task)
	if err != nil {
		return nil, fmt.Errorf("create annotation task: %w", err)
	}

	task.LSProjectID = projectID
	task.LSTaskID = lsTaskID
	task.Status = domain.TaskStatusUploaded
	task.UpdatedAt = time.Now().UTC()

	if uc.recorder != nil {
		if err := uc.recorder.RecordTask(ctx, task); err != nil {
			return nil, fmt.Errorf("record task in manifest: %w", err)
		}
	}
	return task, nil
}

// ensureProject provisions the template project on the first publish that
// names no project and reuses it afterwards. The lock spans the provision
// call so concurrent first publishes still create one project.
func (uc *PublishTaskUseCase) ensureProject(ctx context.Context) (int64, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.projectID != 0 {
		return uc.projectID, nil
	}
	if uc.projects == nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "publish task",
			errors.New("no project id given and no project template configured"))
	}

	project, err := uc.projects.ProvisionProject(ctx)
	if err != nil {
		return 0, fmt.Errorf("ensure project: %w", err)
	}
	uc.projectID = project.ID
	return uc.projectID, nil
}
