package ports

import (
	"context"
	"image"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/mip"
)

// TaskRepository persists annotation task state.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	UpdateTaskPrepared(ctx context.Context, task *domain.Task) error
	UpdateTaskUploaded(ctx context.Context, id string, projectID, lsTaskID int64) error
	UpdateTaskStatus(ctx context.Context, id string, status domain.TaskStatus, errMessage string) error
}

// TaskRecorder appends uploaded tasks to a local manifest.
type TaskRecorder interface {
	RecordTask(ctx context.Context, task *domain.Task) error
}

// ExportSink records inverted annotation outputs.
type ExportSink interface {
	RecordExport(ctx context.Context, exp *domain.AnnotationExport) error
}

// StudyStore is the filesystem contract for the studies tree.
type StudyStore interface {
	ResolveStudy(ctx context.Context, pathOrID string) (domain.StudyRef, error)
	ListStudies(ctx context.Context, dir, level string) ([]string, error)
	ViewImagePaths(ctx context.Context, studyDir string) ([]string, error)
	EnsureDir(ctx context.Context, studyDir string, parts ...string) (string, error)
	SaveJPEG(ctx context.Context, path string, img image.Image) error
	SavePNG(ctx context.Context, path string, img image.Image) error
	WriteFile(ctx context.Context, path string, data []byte) error
	TaskURL(imagePath string) (string, error)
}

// Worklist reads study metadata rows from the input worklist file.
type Worklist interface {
	Entries(ctx context.Context) ([]domain.WorklistEntry, error)
}

// ReportReader extracts the radiology assessment attached to a study.
type ReportReader interface {
	Assessment(ctx context.Context, studyDir string) (string, error)
}

// AnnotationAPI is the annotation-tool HTTP contract.
type AnnotationAPI interface {
	CheckConnection(ctx context.Context) error
	CreateProject(ctx context.Context, spec domain.ProjectSpec) (*domain.Project, error)
	CreateTask(ctx context.Context, projectID int64, task *domain.Task) (int64, error)
	GetAnnotatedTask(ctx context.Context, lsTaskID int64) (*domain.AnnotatedTask, error)
	ExportBrushMasks(ctx context.Context, projectID int64) ([]domain.BrushMask, error)
}

// StudyQueue publishes and consumes study preparation jobs.
type StudyQueue interface {
	PublishStudy(ctx context.Context, ref domain.StudyRef) error
	SubscribeStudies(ctx context.Context, handler func(context.Context, domain.StudyRef) error) error
}

// SeriesSource reads DICOM series volumes from a study directory.
type SeriesSource interface {
	ListSeriesDirs(ctx context.Context, studyDir string) ([]string, error)
	LoadSeries(ctx context.Context, seriesDir string) (*mip.Series, error)
}
