package domain

import (
	"fmt"
	"time"
)

type Laterality string

const (
	LateralityLeft  Laterality = "left"
	LateralityRight Laterality = "right"
)

type View string

const (
	ViewSagittal View = "sagittal"
	ViewCoronal  View = "coronal"
	ViewAxial    View = "axial"
)

// ViewKey is the "<laterality>_<view>" form used to key crop details and
// annotation outputs, e.g. "right_sagittal".
func ViewKey(lat Laterality, view View) string {
	return fmt.Sprintf("%s_%s", lat, view)
}

// CropDetails records the exact forward transform applied to one view so
// annotations can be mapped back to original image coordinates.
type CropDetails struct {
	CropStart      int  `json:"crop_start"`
	CropEnd        int  `json:"crop_end"`
	Rotation       int  `json:"rotation"`
	HFlip          bool `json:"h_flip"`
	VFlip          bool `json:"v_flip"`
	OriginalWidth  int  `json:"original_width"`
	OriginalHeight int  `json:"original_height"`
}

type TaskStatus string

const (
	TaskStatusQueued   TaskStatus = "queued"
	TaskStatusPrepared TaskStatus = "prepared"
	TaskStatusUploaded TaskStatus = "uploaded"
	TaskStatusFailed   TaskStatus = "failed"
)

// Task is one prepared study ready for (or already in) the annotation tool.
type Task struct {
	ID                   string                 `json:"id,omitempty"`
	PatientID            string                 `json:"patient_id"`
	StudyID              string                 `json:"study_id"`
	StudyDir             string                 `json:"study_dir,omitempty"`
	ImagePath            string                 `json:"image_path"`
	ImageURL             string                 `json:"image"`
	CropDetails          map[string]CropDetails `json:"crop_details"`
	Assessment           string                 `json:"assessment,omitempty"`
	ExaminationTimestamp string                 `json:"examination_timestamp,omitempty"`
	Version              string                 `json:"mammoannotator_version"`

	Status      TaskStatus `json:"status,omitempty"`
	LSProjectID int64      `json:"ls_project_id,omitempty"`
	LSTaskID    int64      `json:"ls_task_id,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at,omitempty"`
}

// HasView reports whether the task carries crop geometry for the given key.
func (t *Task) HasView(key string) bool {
	_, ok := t.CropDetails[key]
	return ok
}

// StudyRef identifies a study on the queue between api and worker.
type StudyRef struct {
	TaskID     string    `json:"task_id"`
	PatientID  string    `json:"patient_id"`
	StudyID    string    `json:"study_id"`
	StudyDir   string    `json:"study_dir"`
	ProjectID  int64     `json:"project_id,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// BatchReport summarizes one batch run over a studies tree.
type BatchReport struct {
	Total         int
	Succeeded     int
	Failed        int
	FailedStudies []string
}

// WorklistEntry is one row of the input worklist.
type WorklistEntry struct {
	PatientID            string
	StudyID              string
	Assessment           string
	ExaminationTimestamp string
}
