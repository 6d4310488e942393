package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/mip"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStudyStore struct {
	root      string
	viewPaths []string
	studies   []string
	urlPrefix string

	listErr  error
	viewsErr error
	saveErr  error

	mu        sync.Mutex
	savedJPEG map[string]image.Image
	savedPNG  map[string]image.Image
	written   map[string][]byte
	dirs      []string
}

func newFakeStudyStore(root string) *fakeStudyStore {
	return &fakeStudyStore{
		root:      root,
		urlPrefix: "http://images.local/",
		savedJPEG: map[string]image.Image{},
		savedPNG:  map[string]image.Image{},
		written:   map[string][]byte{},
	}
}

func (f *fakeStudyStore) ResolveStudy(_ context.Context, pathOrID string) (domain.StudyRef, error) {
	dir := pathOrID
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(f.root, pathOrID)
	}
	return domain.StudyRef{
		PatientID: filepath.Base(filepath.Dir(dir)),
		StudyID:   filepath.Base(dir),
		StudyDir:  dir,
	}, nil
}

func (f *fakeStudyStore) ListStudies(context.Context, string, string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.studies, nil
}

func (f *fakeStudyStore) ViewImagePaths(context.Context, string) ([]string, error) {
	if f.viewsErr != nil {
		return nil, f.viewsErr
	}
	return f.viewPaths, nil
}

func (f *fakeStudyStore) EnsureDir(_ context.Context, studyDir string, parts ...string) (string, error) {
	dir := filepath.Join(append([]string{studyDir}, parts...)...)
	f.mu.Lock()
	f.dirs = append(f.dirs, dir)
	f.mu.Unlock()
	return dir, nil
}

func (f *fakeStudyStore) SaveJPEG(_ context.Context, path string, img image.Image) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	f.savedJPEG[path] = img
	f.mu.Unlock()
	return nil
}

func (f *fakeStudyStore) SavePNG(_ context.Context, path string, img image.Image) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	f.savedPNG[path] = img
	f.mu.Unlock()
	return nil
}

func (f *fakeStudyStore) WriteFile(_ context.Context, path string, data []byte) error {
	f.mu.Lock()
	f.written[path] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeStudyStore) TaskURL(imagePath string) (string, error) {
	rel, err := filepath.Rel(f.root, imagePath)
	if err != nil {
		return "", err
	}
	return f.urlPrefix + filepath.ToSlash(rel), nil
}

type fakeWorklist struct {
	entries []domain.WorklistEntry
	err     error
}

func (f *fakeWorklist) Entries(context.Context) ([]domain.WorklistEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

type fakeReports struct {
	assessment string
	err        error
	calls      int
}

func (f *fakeReports) Assessment(context.Context, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.assessment, nil
}

type fakeAnnotationAPI struct {
	connectionErr    error
	project          *domain.Project
	createProjectErr error
	createTaskErr    error
	annotated        map[int64]*domain.AnnotatedTask
	brushMasks       []domain.BrushMask
	exportErr        error

	mu             sync.Mutex
	nextTaskID     int64
	createdTasks   []*domain.Task
	annotatedCalls int
}

func (f *fakeAnnotationAPI) CheckConnection(context.Context) error { return f.connectionErr }

func (f *fakeAnnotationAPI) CreateProject(_ context.Context, spec domain.ProjectSpec) (*domain.Project, error) {
	if f.createProjectErr != nil {
		return nil, f.createProjectErr
	}
	if f.project != nil {
		return f.project, nil
	}
	return &domain.Project{ID: 7, Title: spec.Title}, nil
}

func (f *fakeAnnotationAPI) CreateTask(_ context.Context, _ int64, task *domain.Task) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createTaskErr != nil {
		return 0, f.createTaskErr
	}
	copyTask := *task
	f.createdTasks = append(f.createdTasks, &copyTask)
	f.nextTaskID++
	return f.nextTaskID, nil
}

func (f *fakeAnnotationAPI) GetAnnotatedTask(_ context.Context, lsTaskID int64) (*domain.AnnotatedTask, error) {
	f.mu.Lock()
	f.annotatedCalls++
	f.mu.Unlock()
	annotated, ok := f.annotated[lsTaskID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "fetch annotated task",
			fmt.Errorf("task %d", lsTaskID))
	}
	return annotated, nil
}

func (f *fakeAnnotationAPI) ExportBrushMasks(context.Context, int64) ([]domain.BrushMask, error) {
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	return f.brushMasks, nil
}

type uploadRecord struct {
	id        string
	projectID int64
	lsTaskID  int64
}

type statusRecord struct {
	id     string
	status domain.TaskStatus
	msg    string
}

type fakeTaskRepo struct {
	createErr   error
	preparedErr error
	uploadedErr error
	statusErr   error
	tasks       map[string]*domain.Task

	mu       sync.Mutex
	created  []*domain.Task
	prepared []*domain.Task
	uploaded []uploadRecord
	statuses []statusRecord
}

func (f *fakeTaskRepo) CreateTask(_ context.Context, task *domain.Task) error {
	if f.createErr != nil {
		return f.createErr
	}
	copyTask := *task
	f.mu.Lock()
	f.created = append(f.created, &copyTask)
	f.mu.Unlock()
	return nil
}

func (f *fakeTaskRepo) GetTask(_ context.Context, id string) (*domain.Task, error) {
	task, ok := f.tasks[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get task", fmt.Errorf("task %s", id))
	}
	return task, nil
}

func (f *fakeTaskRepo) UpdateTaskPrepared(_ context.Context, task *domain.Task) error {
	if f.preparedErr != nil {
		return f.preparedErr
	}
	copyTask := *task
	f.mu.Lock()
	f.prepared = append(f.prepared, &copyTask)
	f.mu.Unlock()
	return nil
}

func (f *fakeTaskRepo) UpdateTaskUploaded(_ context.Context, id string, projectID, lsTaskID int64) error {
	if f.uploadedErr != nil {
		return f.uploadedErr
	}
	f.mu.Lock()
	f.uploaded = append(f.uploaded, uploadRecord{id: id, projectID: projectID, lsTaskID: lsTaskID})
	f.mu.Unlock()
	return nil
}

func (f *fakeTaskRepo) UpdateTaskStatus(_ context.Context, id string, status domain.TaskStatus, errMessage string) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.mu.Lock()
	f.statuses = append(f.statuses, statusRecord{id: id, status: status, msg: errMessage})
	f.mu.Unlock()
	return nil
}

type fakeQueue struct {
	publishErr error
	published  []domain.StudyRef
}

func (f *fakeQueue) PublishStudy(_ context.Context, ref domain.StudyRef) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, ref)
	return nil
}

func (f *fakeQueue) SubscribeStudies(context.Context, func(context.Context, domain.StudyRef) error) error {
	return errors.New("not implemented")
}

type fakeRecorder struct {
	err error

	mu    sync.Mutex
	tasks []*domain.Task
}

func (f *fakeRecorder) RecordTask(_ context.Context, task *domain.Task) error {
	if f.err != nil {
		return f.err
	}
	copyTask := *task
	f.mu.Lock()
	f.tasks = append(f.tasks, &copyTask)
	f.mu.Unlock()
	return nil
}

type fakeProjectProvisioner struct {
	project *domain.Project
	err     error

	mu    sync.Mutex
	calls int
}

func (f *fakeProjectProvisioner) ProvisionProject(context.Context) (*domain.Project, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.project != nil {
		return f.project, nil
	}
	return &domain.Project{ID: 7, Title: "provisioned"}, nil
}

type fakeSink struct {
	err  error
	rows []domain.AnnotationExport
}

func (f *fakeSink) RecordExport(_ context.Context, exp *domain.AnnotationExport) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, *exp)
	return nil
}

type fakeSeriesSource struct {
	dirs    []string
	series  map[string]*mip.Series
	listErr error
	loadErr error
}

func (f *fakeSeriesSource) ListSeriesDirs(context.Context, string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.dirs, nil
}

func (f *fakeSeriesSource) LoadSeries(_ context.Context, seriesDir string) (*mip.Series, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	series, ok := f.series[seriesDir]
	if !ok {
		return nil, fmt.Errorf("no series at %s", seriesDir)
	}
	return series, nil
}

type fakePreparer struct {
	errFor map[string]error

	mu    sync.Mutex
	calls []string
}

func (f *fakePreparer) PrepareStudy(_ context.Context, pathOrID string) (*domain.Task, error) {
	f.mu.Lock()
	f.calls = append(f.calls, pathOrID)
	f.mu.Unlock()
	if err := f.errFor[pathOrID]; err != nil {
		return nil, err
	}
	return &domain.Task{
		ID:       "task-" + filepath.Base(pathOrID),
		StudyDir: pathOrID,
		CropDetails: map[string]domain.CropDetails{
			"right_sagittal": {CropStart: 10, CropEnd: 20, Rotation: 1, OriginalWidth: 6, OriginalHeight: 20},
		},
		Status: domain.TaskStatusPrepared,
	}, nil
}

type publishCall struct {
	taskID    string
	projectID int64
}

type fakePublisher struct {
	err error

	mu    sync.Mutex
	calls []publishCall
}

func (f *fakePublisher) PublishTask(_ context.Context, task *domain.Task, projectID int64) (*domain.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, publishCall{taskID: task.ID, projectID: projectID})
	out := *task
	out.LSProjectID = projectID
	out.LSTaskID = int64(100 + len(f.calls))
	out.Status = domain.TaskStatusUploaded
	return &out, nil
}
