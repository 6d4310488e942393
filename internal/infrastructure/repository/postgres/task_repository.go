package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mammoai/mammoannotator/internal/core/domain"
)

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) CreateTask(ctx context.Context, task *domain.Task) error {
	cropJSON, err := json.Marshal(task.CropDetails)
	if err != nil {
		return fmt.Errorf("marshal crop details: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO study_tasks (
	id, patient_id, study_id, study_dir, image_path, image_url, crop_details,
	assessment, examination_ts, version, ls_project_id, ls_task_id, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`,
		task.ID, task.PatientID, task.StudyID, task.StudyDir, task.ImagePath, task.ImageURL, cropJSON,
		task.Assessment, task.ExaminationTimestamp, task.Version, task.LSProjectID, task.LSTaskID,
		string(task.Status), task.Error, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *TaskRepository) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, patient_id, study_id, study_dir, image_path, image_url, crop_details,
	assessment, examination_ts, version, ls_project_id, ls_task_id, status, error_message, created_at, updated_at
FROM study_tasks
WHERE id = $1
`, id)

	var task domain.Task
	var cropRaw []byte
	var status string

	err := row.Scan(
		&task.ID, &task.PatientID, &task.StudyID, &task.StudyDir, &task.ImagePath, &task.ImageURL, &cropRaw,
		&task.Assessment, &task.ExaminationTimestamp, &task.Version, &task.LSProjectID, &task.LSTaskID,
		&status, &task.Error, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get task", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if err := json.Unmarshal(cropRaw, &task.CropDetails); err != nil {
		return nil, fmt.Errorf("unmarshal crop details: %w", err)
	}
	task.Status = domain.TaskStatus(status)
	return &task, nil
}

func (r *TaskRepository) UpdateTaskPrepared(ctx context.Context, task *domain.Task) error {
	cropJSON, err := json.Marshal(task.CropDetails)
	if err != nil {
		return fmt.Errorf("marshal crop details: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE study_tasks
SET study_dir = $2, image_path = $3, image_url = $4, crop_details = $5,
	assessment = $6, examination_ts = $7, version = $8, status = $9, error_message = '', updated_at = $10
WHERE id = $1
`,
		task.ID, task.StudyDir, task.ImagePath, task.ImageURL, cropJSON,
		task.Assessment, task.ExaminationTimestamp, task.Version,
		string(domain.TaskStatusPrepared), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update prepared task: %w", err)
	}
	return requireRow(result, task.ID, "update prepared task")
}

func (r *TaskRepository) UpdateTaskUploaded(ctx context.Context, id string, projectID, lsTaskID int64) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE study_tasks
SET ls_project_id = $2, ls_task_id = $3, status = $4, error_message = '', updated_at = $5
WHERE id = $1
`, id, projectID, lsTaskID, string(domain.TaskStatusUploaded), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update uploaded task: %w", err)
	}
	return requireRow(result, id, "update uploaded task")
}

func (r *TaskRepository) UpdateTaskStatus(ctx context.Context, id string, status domain.TaskStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE study_tasks
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return requireRow(result, id, "update task status")
}

// requireRow converts a zero-row update into a not-found error.
func requireRow(result sql.Result, id, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, op, fmt.Errorf("id %s", id))
	}
	return nil
}
