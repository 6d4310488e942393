package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/ports"
)

type ProvisionProjectUseCase struct {
	api  ports.AnnotationAPI
	spec domain.ProjectSpec
}

func NewProvisionProjectUseCase(api ports.AnnotationAPI, spec domain.ProjectSpec) *ProvisionProjectUseCase {
	return &ProvisionProjectUseCase{api: api, spec: spec}
}

func (uc *ProvisionProjectUseCase) ProvisionProject(ctx context.Context) (*domain.Project, error) {
	if uc.spec.Title == "" || uc.spec.LabelConfig == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "provision project",
			errors.New("project template needs a title and a label config"))
	}

	if err := uc.api.CheckConnection(ctx); err != nil {
		return nil, fmt.Errorf("check annotation tool: %w", err)
	}

	project, err := uc.api.CreateProject(ctx, uc.spec)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return project, nil
}
