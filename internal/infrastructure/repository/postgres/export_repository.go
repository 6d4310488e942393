package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mammoai/mammoannotator/internal/core/domain"
)

// ExportRepository records one row per inverted annotation mask view.
type ExportRepository struct {
	db *sql.DB
}

func NewExportRepository(db *sql.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

func (r *ExportRepository) RecordExport(ctx context.Context, exp *domain.AnnotationExport) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO annotation_exports (
	id, task_id, ls_task_id, ls_annotation_id, view_key, label, annotated_pixels, output_path, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		exp.ID, exp.TaskID, exp.LSTaskID, exp.LSAnnotationID, exp.ViewKey, exp.Label,
		exp.AnnotatedPixels, exp.OutputPath, exp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert export record: %w", err)
	}
	return nil
}
