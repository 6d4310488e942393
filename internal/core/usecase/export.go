package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/mri"
	"github.com/mammoai/mammoannotator/internal/core/ports"
	"github.com/mammoai/mammoannotator/internal/core/raster"
)

// annotationsDirName holds the inverted masks inside a study directory,
// one subfolder per annotation.
const annotationsDirName = "annotations"

type ExportAnnotationsUseCase struct {
	api    ports.AnnotationAPI
	store  ports.StudyStore
	sink   ports.ExportSink
	logger *slog.Logger
}

// NewExportAnnotationsUseCase builds the annotation export flow. The sink
// is an optional summary writer; pass nil to export without one.
func NewExportAnnotationsUseCase(
	api ports.AnnotationAPI,
	store ports.StudyStore,
	sink ports.ExportSink,
	logger *slog.Logger,
) *ExportAnnotationsUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportAnnotationsUseCase{
		api:    api,
		store:  store,
		sink:   sink,
		logger: logger,
	}
}

// ExportAnnotations downloads the project's brush masks, maps each one
// back to per-view original coordinates and writes the resulting masks
// into the owning study's annotations folder. A non-zero lsTaskID keeps
// only that task's annotations. Annotations on unknown tasks or on tasks
// without crop geometry are skipped, not fatal; a mask that fails to
// invert aborts the export.
func (uc *ExportAnnotationsUseCase) ExportAnnotations(ctx context.Context, projectID, lsTaskID int64) ([]domain.AnnotationExport, error) {
	masks, err := uc.api.ExportBrushMasks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("download brush masks: %w", err)
	}
	if len(masks) == 0 {
		uc.logger.Info("no annotations to export", "ls_project_id", projectID)
		return nil, nil
	}

	tasks := make(map[int64]*domain.AnnotatedTask)
	exports := make([]domain.AnnotationExport, 0, len(masks))
	for _, mask := range masks {
		if lsTaskID != 0 && mask.LSTaskID != lsTaskID {
			continue
		}

		annotated, ok := tasks[mask.LSTaskID]
		if !ok {
			annotated, err = uc.api.GetAnnotatedTask(ctx, mask.LSTaskID)
			if domain.IsKind(err, domain.ErrNotFound) {
				uc.logger.Warn("skip annotation of unknown task",
					"ls_task_id", mask.LSTaskID,
					"ls_annotation_id", mask.LSAnnotationID)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("fetch annotated task %d: %w", mask.LSTaskID, err)
			}
			tasks[mask.LSTaskID] = annotated
		}

		if len(annotated.CropDetails) == 0 {
			uc.logger.Warn("skip annotation without crop details",
				"ls_task_id", mask.LSTaskID,
				"ls_annotation_id", mask.LSAnnotationID)
			continue
		}

		rows, err := uc.invertMask(ctx, annotated, mask)
		if err != nil {
			return nil, err
		}
		exports = append(exports, rows...)
	}
	return exports, nil
}

func (uc *ExportAnnotationsUseCase) invertMask(ctx context.Context, annotated *domain.AnnotatedTask, mask domain.BrushMask) ([]domain.AnnotationExport, error) {
	views, err := mri.InvertAnnotation(raster.MatFromImage(mask.Mask), annotated.CropDetails)
	if err != nil {
		return nil, fmt.Errorf("invert annotation %d: %w", mask.LSAnnotationID, err)
	}

	ref, err := uc.store.ResolveStudy(ctx, filepath.Join(annotated.PatientID, annotated.StudyID))
	if err != nil {
		return nil, fmt.Errorf("resolve study for task %d: %w", mask.LSTaskID, err)
	}
	outDir, err := uc.store.EnsureDir(ctx, ref.StudyDir, annotationsDirName, strconv.FormatInt(mask.LSAnnotationID, 10))
	if err != nil {
		return nil, fmt.Errorf("prepare annotations dir: %w", err)
	}

	keys := make([]string, 0, len(views))
	for key := range views {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	now := time.Now().UTC()
	rows := make([]domain.AnnotationExport, 0, len(keys))
	for _, key := range keys {
		view := views[key]
		outPath := filepath.Join(outDir, key+".png")
		if err := uc.store.SavePNG(ctx, outPath, view.Mask.Gray()); err != nil {
			return nil, fmt.Errorf("save inverted mask: %w", err)
		}

		row := domain.AnnotationExport{
			ID:              uuid.NewString(),
			LSTaskID:        mask.LSTaskID,
			LSAnnotationID:  mask.LSAnnotationID,
			ViewKey:         key,
			Label:           mask.Label,
			AnnotatedPixels: view.AnnotatedPixels,
			OutputPath:      outPath,
			CreatedAt:       now,
		}
		if uc.sink != nil {
			if err := uc.sink.RecordExport(ctx, &row); err != nil {
				return nil, fmt.Errorf("record export row: %w", err)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
