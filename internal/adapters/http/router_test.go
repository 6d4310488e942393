package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mammoai/mammoannotator/internal/config"
	"github.com/mammoai/mammoannotator/internal/core/domain"
)

type fakeIntake struct {
	task         *domain.Task
	err          error
	gotStudy     string
	gotProjectID int64
}

func (f *fakeIntake) IntakeStudy(_ context.Context, pathOrID string, projectID int64) (*domain.Task, error) {
	f.gotStudy = pathOrID
	f.gotProjectID = projectID
	if f.err != nil {
		return nil, f.err
	}
	return f.task, nil
}

type fakeTaskReader struct {
	task *domain.Task
	err  error
}

func (f fakeTaskReader) GetTask(context.Context, string) (*domain.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.task, nil
}

type fakeProvisioner struct {
	project *domain.Project
	err     error
}

func (f fakeProvisioner) ProvisionProject(context.Context) (*domain.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.project, nil
}

func testConfig() config.Config {
	return config.Config{
		APIRateLimitRPS:   100,
		APIRateLimitBurst: 100,
		APIMaxInFlight:    8,
	}
}

func newTestHandler(cfg config.Config, intake *fakeIntake, tasks fakeTaskReader, projects fakeProvisioner) http.Handler {
	if intake == nil {
		intake = &fakeIntake{}
	}
	return NewRouter(cfg, intake, tasks, projects, nil).Handler()
}

func TestHealthz(t *testing.T) {
	handler := newTestHandler(testConfig(), nil, fakeTaskReader{}, fakeProvisioner{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", res.Code)
	}
	if res.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected X-Request-Id header on every response")
	}
}

func TestQueueStudyAccepted(t *testing.T) {
	intake := &fakeIntake{task: &domain.Task{
		ID:        "task-1",
		PatientID: "pat01",
		StudyID:   "study01",
		Status:    domain.TaskStatusQueued,
	}}
	handler := newTestHandler(testConfig(), intake, fakeTaskReader{}, fakeProvisioner{})

	body, _ := json.Marshal(map[string]any{"study": "pat01/study01", "project_id": 7})
	req := httptest.NewRequest(http.MethodPost, "/v1/studies", bytes.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("queue study status = %d, want 202: %s", res.Code, res.Body.String())
	}
	if intake.gotStudy != "pat01/study01" || intake.gotProjectID != 7 {
		t.Fatalf("intake called with study=%q project=%d", intake.gotStudy, intake.gotProjectID)
	}

	var got domain.Task
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "task-1" || got.Status != domain.TaskStatusQueued {
		t.Fatalf("queued task = %+v", got)
	}
}

func TestQueueStudyValidation(t *testing.T) {
	handler := newTestHandler(testConfig(), nil, fakeTaskReader{}, fakeProvisioner{})

	req := httptest.NewRequest(http.MethodPost, "/v1/studies", strings.NewReader("{not json"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", res.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/studies", strings.NewReader(`{"study":"  "}`))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("blank study status = %d, want 400", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/studies", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /v1/studies status = %d, want 405", res.Code)
	}
}

func TestQueueStudyMapsDomainErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "missing study dir", err: domain.WrapError(domain.ErrNotFound, "resolve study", errors.New("no dir")), want: http.StatusNotFound},
		{name: "broken dicom", err: domain.WrapError(domain.ErrFormat, "load series", errors.New("bad header")), want: http.StatusUnprocessableEntity},
		{name: "queue down", err: domain.WrapError(domain.ErrTemporary, "publish study", errors.New("no servers")), want: http.StatusServiceUnavailable},
		{name: "annotation tool failure", err: domain.WrapError(domain.ErrService, "create task", errors.New("502")), want: http.StatusBadGateway},
		{name: "unclassified", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(testConfig(), &fakeIntake{err: tc.err}, fakeTaskReader{}, fakeProvisioner{})

			body := strings.NewReader(`{"study":"pat01/study01"}`)
			req := httptest.NewRequest(http.MethodPost, "/v1/studies", body)
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)

			if res.Code != tc.want {
				t.Fatalf("status = %d, want %d", res.Code, tc.want)
			}
		})
	}
}

func TestGetTaskReturnsState(t *testing.T) {
	reader := fakeTaskReader{task: &domain.Task{
		ID:          "task-9",
		Status:      domain.TaskStatusUploaded,
		LSProjectID: 3,
		LSTaskID:    41,
	}}
	handler := newTestHandler(testConfig(), nil, reader, fakeProvisioner{})

	req := httptest.NewRequest(http.MethodGet, "/v1/studies/task-9", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("get task status = %d, want 200", res.Code)
	}
	var got domain.Task
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != domain.TaskStatusUploaded || got.LSTaskID != 41 {
		t.Fatalf("task = %+v", got)
	}
}

func TestGetTaskValidation(t *testing.T) {
	notFound := fakeTaskReader{err: domain.WrapError(domain.ErrNotFound, "get task", errors.New("id task-0"))}
	handler := newTestHandler(testConfig(), nil, notFound, fakeProvisioner{})

	req := httptest.NewRequest(http.MethodGet, "/v1/studies/", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("empty id status = %d, want 400", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/studies/task-0", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("unknown id status = %d, want 404", res.Code)
	}
}

func TestCreateProject(t *testing.T) {
	handler := newTestHandler(testConfig(), nil, fakeTaskReader{},
		fakeProvisioner{project: &domain.Project{ID: 12, Title: "MRI spring batch"}})

	req := httptest.NewRequest(http.MethodPost, "/v1/projects", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("create project status = %d, want 201: %s", res.Code, res.Body.String())
	}
	var got domain.Project
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != 12 {
		t.Fatalf("project = %+v", got)
	}
}

func TestCreateProjectRejectsBadTemplate(t *testing.T) {
	bad := fakeProvisioner{err: domain.WrapError(domain.ErrInvalidInput, "provision project", errors.New("no label config"))}
	handler := newTestHandler(testConfig(), nil, fakeTaskReader{}, bad)

	req := httptest.NewRequest(http.MethodPost, "/v1/projects", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("bad template status = %d, want 400", res.Code)
	}
}
