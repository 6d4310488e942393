// Package labelstudio is the HTTP client for the annotation tool's API
// (Label Studio v2 semantics): project and task creation, annotated task
// reads and brush mask export.
package labelstudio

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

func New(baseURL, token string) *Client {
	return NewWithOptions(baseURL, token, Options{})
}

type Options struct {
	HTTPTimeout        time.Duration
	RequestsPerSecond  float64
	Burst              int
	ResilienceExecutor *resilience.Executor
}

func NewWithOptions(baseURL, token string, options Options) *Client {
	timeout := options.HTTPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	rps := options.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := options.Burst
	if burst <= 0 {
		burst = 10
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		executor:   options.ResilienceExecutor,
	}
}

// CheckConnection verifies the URL and token by listing one project page.
func (c *Client) CheckConnection(ctx context.Context) error {
	var out struct {
		Count int `json:"count"`
	}
	return c.getJSON(ctx, "/api/projects?page_size=1", &out, "check connection")
}

// projectRequest is the creation payload. Field names follow the
// annotation tool's project API.
type projectRequest struct {
	Title                 string `json:"title"`
	Description           string `json:"description"`
	LabelConfig           string `json:"label_config"`
	ExpertInstruction     string `json:"expert_instruction,omitempty"`
	ShowInstruction       bool   `json:"show_instruction"`
	ShowSkipButton        bool   `json:"show_skip_button"`
	EnableEmptyAnnotation bool   `json:"enable_empty_annotation"`
	MaximumAnnotations    int    `json:"maximum_annotations,omitempty"`
	IsPublished           bool   `json:"is_published"`
}

func (c *Client) CreateProject(ctx context.Context, spec domain.ProjectSpec) (*domain.Project, error) {
	payload := projectRequest{
		Title:                 spec.Title,
		Description:           spec.Description,
		LabelConfig:           spec.LabelConfig,
		ExpertInstruction:     spec.ExpertInstruction,
		ShowInstruction:       spec.ShowInstruction,
		ShowSkipButton:        spec.ShowSkipButton,
		EnableEmptyAnnotation: spec.EnableEmptyAnnotation,
		MaximumAnnotations:    spec.MaximumAnnotations,
		IsPublished:           true,
	}

	var out struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	}
	if err := c.postJSON(ctx, "/api/projects/", payload, &out, "create project", http.StatusCreated); err != nil {
		return nil, err
	}
	return &domain.Project{ID: out.ID, Title: out.Title}, nil
}

// taskData is the task payload shown to annotators. The image URL feeds
// the labeling config's $image variable; the rest rides along so exports
// are self-describing.
type taskData struct {
	Image                string                        `json:"image"`
	PatientID            string                        `json:"patient_id"`
	StudyID              string                        `json:"study_id"`
	CropDetails          map[string]domain.CropDetails `json:"crop_details"`
	Assessment           string                        `json:"assessment,omitempty"`
	ExaminationTimestamp string                        `json:"examination_timestamp,omitempty"`
	Version              string                        `json:"mammoannotator_version,omitempty"`
}

type taskRequest struct {
	Data      taskData `json:"data"`
	Project   int64    `json:"project"`
	IsLabeled bool     `json:"is_labeled"`
	Overlap   int      `json:"overlap"`
}

func (c *Client) CreateTask(ctx context.Context, projectID int64, task *domain.Task) (int64, error) {
	payload := taskRequest{
		Data: taskData{
			Image:                task.ImageURL,
			PatientID:            task.PatientID,
			StudyID:              task.StudyID,
			CropDetails:          task.CropDetails,
			Assessment:           task.Assessment,
			ExaminationTimestamp: task.ExaminationTimestamp,
			Version:              task.Version,
		},
		Project: projectID,
	}

	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.postJSON(ctx, "/api/tasks/", payload, &out, "create task", http.StatusCreated); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// annotationResponse mirrors the relevant slice of the task read model:
// brush label values live in each annotation's result items.
type annotationResponse struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"created_at"`
	Result    []struct {
		Value struct {
			BrushLabels []string `json:"brushlabels"`
		} `json:"value"`
	} `json:"result"`
}

func (c *Client) GetAnnotatedTask(ctx context.Context, lsTaskID int64) (*domain.AnnotatedTask, error) {
	var out struct {
		ID   int64    `json:"id"`
		Data taskData `json:"data"`

		Annotations []annotationResponse `json:"annotations"`
	}
	path := fmt.Sprintf("/api/tasks/%d?fields=all", lsTaskID)
	if err := c.getJSON(ctx, path, &out, "fetch task"); err != nil {
		return nil, err
	}

	annotated := &domain.AnnotatedTask{
		LSTaskID:    out.ID,
		CropDetails: out.Data.CropDetails,
		PatientID:   out.Data.PatientID,
		StudyID:     out.Data.StudyID,
	}
	for _, ann := range out.Annotations {
		labels := make([]string, 0, len(ann.Result))
		for _, item := range ann.Result {
			labels = append(labels, item.Value.BrushLabels...)
		}
		annotated.Annotations = append(annotated.Annotations, domain.Annotation{
			ID:        ann.ID,
			Labels:    labels,
			CreatedAt: ann.CreatedAt,
		})
	}
	return annotated, nil
}

// ExportBrushMasks downloads the project's brush annotations as a PNG
// archive and unpacks each entry into a mask image.
func (c *Client) ExportBrushMasks(ctx context.Context, projectID int64) ([]domain.BrushMask, error) {
	path := fmt.Sprintf("/api/projects/%d/export?exportType=BRUSH_TO_PNG&download_all_tasks=true", projectID)
	archive, err := c.getBytes(ctx, path, "export masks")
	if err != nil {
		return nil, err
	}
	masks, err := parseMaskArchive(archive)
	if err != nil {
		return nil, domain.WrapError(domain.ErrService, "export masks", err)
	}
	return masks, nil
}
