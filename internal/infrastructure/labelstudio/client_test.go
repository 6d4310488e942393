package labelstudio

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mammoai/mammoannotator/internal/core/domain"
)

func TestCreateProjectSendsTemplatePayload(t *testing.T) {
	var gotAuth, gotPath string
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 42, "title": "Breast MRI Annotation"}`))
	}))
	defer server.Close()

	client := New(server.URL, "tok-123")
	project, err := client.CreateProject(context.Background(), domain.ProjectSpec{
		Title:           "Breast MRI Annotation",
		LabelConfig:     "<View/>",
		ShowInstruction: true,
	})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if project.ID != 42 {
		t.Fatalf("project id = %d, want 42", project.ID)
	}
	if gotAuth != "Token tok-123" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if gotPath != "/api/projects/" {
		t.Fatalf("path = %q", gotPath)
	}
	if payload["label_config"] != "<View/>" || payload["show_instruction"] != true {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestCreateTaskPostsTaskData(t *testing.T) {
	var payload struct {
		Data struct {
			Image       string                        `json:"image"`
			PatientID   string                        `json:"patient_id"`
			CropDetails map[string]domain.CropDetails `json:"crop_details"`
		} `json:"data"`
		Project int64 `json:"project"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tasks/" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 7}`))
	}))
	defer server.Close()

	client := New(server.URL, "tok")
	task := &domain.Task{
		PatientID: "pat01",
		StudyID:   "study01",
		ImageURL:  "http://images.local/pat01/study01/crops/all_views.jpeg",
		CropDetails: map[string]domain.CropDetails{
			"right_sagittal": {CropStart: 400, CropEnd: 800, Rotation: 1, OriginalWidth: 400, OriginalHeight: 800},
		},
	}
	id, err := client.CreateTask(context.Background(), 42, task)
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if id != 7 {
		t.Fatalf("task id = %d, want 7", id)
	}
	if payload.Project != 42 {
		t.Fatalf("project = %d, want 42", payload.Project)
	}
	if payload.Data.Image != task.ImageURL || payload.Data.PatientID != "pat01" {
		t.Fatalf("task data lost: %+v", payload.Data)
	}
	if payload.Data.CropDetails["right_sagittal"].CropStart != 400 {
		t.Fatalf("crop details lost: %+v", payload.Data.CropDetails)
	}
}

func TestCreateTaskAuthFailureNamesToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Invalid token"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := New(server.URL, "bad")
	_, err := client.CreateTask(context.Background(), 1, &domain.Task{})
	if !domain.IsKind(err, domain.ErrService) {
		t.Fatalf("expected service error, got %v", err)
	}
	if !strings.Contains(err.Error(), "LABELSTUDIO_TOKEN") {
		t.Fatalf("expected token hint in error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid token") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestGetAnnotatedTaskMapsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "tok")
	_, err := client.GetAnnotatedTask(context.Background(), 99)
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestGetAnnotatedTaskCollectsBrushLabels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tasks/12" || r.URL.Query().Get("fields") != "all" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{
			"id": 12,
			"data": {
				"patient_id": "pat01",
				"study_id": "study01",
				"crop_details": {"left_axial": {"crop_start": 10, "crop_end": 20, "original_width": 5, "original_height": 20}}
			},
			"annotations": [
				{"id": 34, "created_at": "2024-03-01T10:00:00Z", "result": [
					{"value": {"brushlabels": ["Mass"]}},
					{"value": {"brushlabels": ["Focus"]}}
				]}
			]
		}`))
	}))
	defer server.Close()

	client := New(server.URL, "tok")
	annotated, err := client.GetAnnotatedTask(context.Background(), 12)
	if err != nil {
		t.Fatalf("GetAnnotatedTask() error = %v", err)
	}
	if annotated.PatientID != "pat01" || annotated.StudyID != "study01" {
		t.Fatalf("study identity lost: %+v", annotated)
	}
	if annotated.CropDetails["left_axial"].CropEnd != 20 {
		t.Fatalf("crop details lost: %+v", annotated.CropDetails)
	}
	if len(annotated.Annotations) != 1 || annotated.Annotations[0].ID != 34 {
		t.Fatalf("annotations = %+v", annotated.Annotations)
	}
	labels := annotated.Annotations[0].Labels
	if len(labels) != 2 || labels[0] != "Mass" || labels[1] != "Focus" {
		t.Fatalf("labels = %v", labels)
	}
}

func buildMaskArchive(t *testing.T, names ...string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		entry, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if err := png.Encode(entry, img); err != nil {
			t.Fatalf("encode mask png: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExportBrushMasksUnpacksArchive(t *testing.T) {
	archive := buildMaskArchive(t,
		"task-12-annotation-34-by-1-tag-Mass-0.png",
		"task-12-annotation-34-by-1-tag-Non-mass enhancement-1.png",
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/projects/42/export" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("exportType") != "BRUSH_TO_PNG" || q.Get("download_all_tasks") != "true" {
			t.Fatalf("unexpected export query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write(archive)
	}))
	defer server.Close()

	client := New(server.URL, "tok")
	masks, err := client.ExportBrushMasks(context.Background(), 42)
	if err != nil {
		t.Fatalf("ExportBrushMasks() error = %v", err)
	}
	if len(masks) != 2 {
		t.Fatalf("got %d masks, want 2", len(masks))
	}
	if masks[0].LSTaskID != 12 || masks[0].LSAnnotationID != 34 || masks[0].Label != "Mass" {
		t.Fatalf("first mask = %+v", masks[0])
	}
	if masks[1].Label != "Non-mass enhancement" || masks[1].Serial != 1 {
		t.Fatalf("second mask = %+v", masks[1])
	}
	if masks[0].Mask == nil || masks[0].Mask.Bounds().Dx() != 2 {
		t.Fatalf("mask image not decoded: %+v", masks[0].Mask)
	}
}

func TestExportBrushMasksRejectsMalformedEntryName(t *testing.T) {
	archive := buildMaskArchive(t, "task-12-badentry.png")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer server.Close()

	client := New(server.URL, "tok")
	if _, err := client.ExportBrushMasks(context.Background(), 42); !domain.IsKind(err, domain.ErrService) {
		t.Fatalf("expected service error for malformed entry, got %v", err)
	}
}

func TestCheckConnectionSurfacesServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "tok")
	err := client.CheckConnection(context.Background())
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error for 502, got %v", err)
	}
	if !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}
