package ports

import (
	"context"

	"github.com/mammoai/mammoannotator/internal/core/domain"
)

// StudyIntake registers a study and queues it for preparation.
type StudyIntake interface {
	IntakeStudy(ctx context.Context, pathOrID string, projectID int64) (*domain.Task, error)
}

// TaskReader is the read model for task state.
type TaskReader interface {
	GetTask(ctx context.Context, id string) (*domain.Task, error)
}

// StudyPreparer crops a study's views, composes the mosaic and assembles
// the annotation task.
type StudyPreparer interface {
	PrepareStudy(ctx context.Context, pathOrID string) (*domain.Task, error)
}

// StudyPublisher uploads a prepared task to the annotation tool.
type StudyPublisher interface {
	PublishTask(ctx context.Context, task *domain.Task, projectID int64) (*domain.Task, error)
}

// StudyProcessor runs the full prepare-and-publish pipeline for one
// queued study.
type StudyProcessor interface {
	ProcessStudy(ctx context.Context, ref domain.StudyRef) error
}

// ProjectProvisioner creates the annotation project from the configured
// template.
type ProjectProvisioner interface {
	ProvisionProject(ctx context.Context) (*domain.Project, error)
}

// AnnotationExporter downloads brush annotations and maps them back into
// original image coordinates. A non-zero lsTaskID restricts the export to
// one annotation task.
type AnnotationExporter interface {
	ExportAnnotations(ctx context.Context, projectID, lsTaskID int64) ([]domain.AnnotationExport, error)
}

// ProjectionRenderer renders per-view projection images from a study's
// DICOM series. An empty name list considers every series in the study.
type ProjectionRenderer interface {
	RenderProjections(ctx context.Context, studyDir string, seriesNames []string) ([]string, error)
}

// BatchRunner prepares and publishes studies in bulk, either discovered
// under a directory or from an explicit list.
type BatchRunner interface {
	RunBatch(ctx context.Context, dir, level string, projectID int64) (*domain.BatchReport, error)
	RunStudies(ctx context.Context, studyDirs []string, projectID int64) (*domain.BatchReport, error)
}
