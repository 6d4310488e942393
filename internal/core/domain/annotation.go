package domain

import (
	"image"
	"time"
)

// ProjectSpec is the payload for creating an annotation project.
type ProjectSpec struct {
	Title                 string `json:"title"`
	Description           string `json:"description"`
	LabelConfig           string `json:"label_config"`
	ExpertInstruction     string `json:"expert_instruction,omitempty"`
	ShowInstruction       bool   `json:"show_instruction"`
	ShowSkipButton        bool   `json:"show_skip_button"`
	EnableEmptyAnnotation bool   `json:"enable_empty_annotation"`
	MaximumAnnotations    int    `json:"maximum_annotations,omitempty"`
}

// Project is an annotation-tool project as seen by this system.
type Project struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Annotation is one completed annotation on an uploaded task.
type Annotation struct {
	ID        int64    `json:"id"`
	Labels    []string `json:"labels"`
	CreatedAt string   `json:"created_at,omitempty"`
}

// AnnotatedTask pairs an uploaded task with its annotations as fetched
// back from the annotation tool.
type AnnotatedTask struct {
	LSTaskID    int64                  `json:"id"`
	CropDetails map[string]CropDetails `json:"crop_details"`
	PatientID   string                 `json:"patient_id"`
	StudyID     string                 `json:"study_id"`
	Annotations []Annotation           `json:"annotations"`
}

// BrushMask is one brush annotation image pulled out of an export
// archive, identified by the task and annotation it belongs to.
type BrushMask struct {
	LSTaskID       int64
	LSAnnotationID int64
	Label          string
	Serial         int
	Mask           image.Image
}

// AnnotationExport is one inverted mask written back into a study folder.
type AnnotationExport struct {
	ID              string    `json:"id"`
	TaskID          string    `json:"task_id,omitempty"`
	LSTaskID        int64     `json:"ls_task_id"`
	LSAnnotationID  int64     `json:"ls_annotation_id"`
	ViewKey         string    `json:"view_key"`
	Label           string    `json:"label,omitempty"`
	AnnotatedPixels int       `json:"annotated_pixels"`
	OutputPath      string    `json:"output_path"`
	CreatedAt       time.Time `json:"created_at"`
}
