package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/mri"
	"github.com/mammoai/mammoannotator/internal/core/ports"
	"github.com/mammoai/mammoannotator/internal/version"
)

const (
	// cropsDirName holds the per-view crop tiles, the composed mosaic and
	// the task payload inside a study directory.
	cropsDirName = "crops"

	// taskFileName is the task payload written next to the crops for
	// offline inspection and re-upload.
	taskFileName = "task.json"
)

type PrepareStudyUseCase struct {
	store    ports.StudyStore
	worklist ports.Worklist
	reports  ports.ReportReader
}

// NewPrepareStudyUseCase builds the study preparation pipeline. The
// worklist and report reader are optional metadata sources; pass nil to
// prepare without an assessment.
func NewPrepareStudyUseCase(
	store ports.StudyStore,
	worklist ports.Worklist,
	reports ports.ReportReader,
) *PrepareStudyUseCase {
	return &PrepareStudyUseCase{
		store:    store,
		worklist: worklist,
		reports:  reports,
	}
}

func (uc *PrepareStudyUseCase) PrepareStudy(ctx context.Context, pathOrID string) (*domain.Task, error) {
	ref, err := uc.store.ResolveStudy(ctx, pathOrID)
	if err != nil {
		return nil, fmt.Errorf("resolve study: %w", err)
	}

	cropsDir, err := uc.store.EnsureDir(ctx, ref.StudyDir, cropsDirName)
	if err != nil {
		return nil, fmt.Errorf("prepare crops dir: %w", err)
	}

	tiles, err := uc.cropViews(ctx, ref.StudyDir, cropsDir)
	if err != nil {
		return nil, err
	}

	mosaic, err := mri.ComposeMosaic(tiles)
	if err != nil {
		return nil, fmt.Errorf("compose mosaic: %w", err)
	}

	mosaicPath := filepath.Join(cropsDir, mri.MosaicFileName)
	if err := uc.store.SaveJPEG(ctx, mosaicPath, mosaic.Canvas); err != nil {
		return nil, fmt.Errorf("save mosaic: %w", err)
	}

	imageURL, err := uc.store.TaskURL(mosaicPath)
	if err != nil {
		return nil, fmt.Errorf("build task image url: %w", err)
	}

	assessment, examinedAt, err := uc.studyMetadata(ctx, ref)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task := &domain.Task{
		ID:                   uuid.NewString(),
		PatientID:            ref.PatientID,
		StudyID:              ref.StudyID,
		StudyDir:             ref.StudyDir,
		ImagePath:            mosaicPath,
		ImageURL:             imageURL,
		CropDetails:          mosaic.Details,
		Assessment:           assessment,
		ExaminationTimestamp: examinedAt,
		Version:              version.Version,
		Status:               domain.TaskStatusPrepared,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := uc.writeTaskFile(ctx, cropsDir, task); err != nil {
		return nil, err
	}
	return task, nil
}

// cropViews loads every view image of the study, crops it and saves the
// normalized tile next to the mosaic.
func (uc *PrepareStudyUseCase) cropViews(ctx context.Context, studyDir, cropsDir string) ([]*mri.CroppedImage, error) {
	paths, err := uc.store.ViewImagePaths(ctx, studyDir)
	if err != nil {
		return nil, fmt.Errorf("list view images: %w", err)
	}
	if len(paths) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "list view images",
			fmt.Errorf("no view images in %s", studyDir))
	}

	tiles := make([]*mri.CroppedImage, 0, len(paths))
	for _, path := range paths {
		raw, err := mri.LoadRawImage(path)
		if err != nil {
			return nil, fmt.Errorf("load view %s: %w", filepath.Base(path), err)
		}
		tile, err := mri.CropRawImage(raw)
		if err != nil {
			return nil, fmt.Errorf("crop view %s: %w", filepath.Base(path), err)
		}
		if err := uc.store.SaveJPEG(ctx, filepath.Join(cropsDir, mri.CropFileName(path)), tile.Tile); err != nil {
			return nil, fmt.Errorf("save crop tile: %w", err)
		}
		tiles = append(tiles, tile)
	}
	return tiles, nil
}

// studyMetadata resolves the assessment and examination timestamp: the
// worklist row wins, the study's report PDF is the fallback.
func (uc *PrepareStudyUseCase) studyMetadata(ctx context.Context, ref domain.StudyRef) (assessment, examinedAt string, err error) {
	if uc.worklist != nil {
		entries, err := uc.worklist.Entries(ctx)
		if err != nil {
			return "", "", fmt.Errorf("read worklist: %w", err)
		}
		for _, entry := range entries {
			if entry.PatientID == ref.PatientID && entry.StudyID == ref.StudyID {
				assessment = entry.Assessment
				examinedAt = entry.ExaminationTimestamp
				break
			}
		}
	}

	if assessment == "" && uc.reports != nil {
		assessment, err = uc.reports.Assessment(ctx, ref.StudyDir)
		if err != nil {
			return "", "", fmt.Errorf("read report assessment: %w", err)
		}
	}
	return assessment, examinedAt, nil
}

func (uc *PrepareStudyUseCase) writeTaskFile(ctx context.Context, cropsDir string, task *domain.Task) error {
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("encode task payload: %w", err)
	}
	if err := uc.store.WriteFile(ctx, filepath.Join(cropsDir, taskFileName), data); err != nil {
		return fmt.Errorf("write %s: %w", taskFileName, err)
	}
	return nil
}
