package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/raster"
	"github.com/mammoai/mammoannotator/internal/version"
)

// writeViewImage encodes a portrait strip fixture to disk: black above
// whiteFrom, bright tissue from that row down.
func writeViewImage(t *testing.T, dir, name string, w, h, whiteFrom int) string {
	t.Helper()
	img := raster.NewGray(w, h)
	for y := whiteFrom; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: 200})
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}
	return path
}

func prepareFixture(t *testing.T) (root, studyDir string, store *fakeStudyStore) {
	t.Helper()
	root = t.TempDir()
	studyDir = filepath.Join(root, "pat01", "study01")
	if err := os.MkdirAll(studyDir, 0o755); err != nil {
		t.Fatalf("make study dir: %v", err)
	}
	store = newFakeStudyStore(root)
	store.viewPaths = []string{
		writeViewImage(t, studyDir, "t1_r_Sag.png", 400, 800, 361),
		writeViewImage(t, studyDir, "t1_l_Ax.png", 400, 800, 361),
	}
	return root, studyDir, store
}

func TestPrepareStudyBuildsTask(t *testing.T) {
	_, studyDir, store := prepareFixture(t)
	worklist := &fakeWorklist{entries: []domain.WorklistEntry{
		{PatientID: "pat02", StudyID: "study09", Assessment: "BIRADS: 1"},
		{PatientID: "pat01", StudyID: "study01", Assessment: "BIRADS: 4", ExaminationTimestamp: "2021-06-01 10:30:00"},
	}}
	reports := &fakeReports{assessment: "unused"}
	uc := NewPrepareStudyUseCase(store, worklist, reports)

	task, err := uc.PrepareStudy(context.Background(), "pat01/study01")
	if err != nil {
		t.Fatalf("PrepareStudy() error = %v", err)
	}

	if task.ID == "" || task.Status != domain.TaskStatusPrepared {
		t.Fatalf("task = %+v", task)
	}
	if task.PatientID != "pat01" || task.StudyID != "study01" || task.StudyDir != studyDir {
		t.Fatalf("task identity = %s/%s in %s", task.PatientID, task.StudyID, task.StudyDir)
	}
	if task.Assessment != "BIRADS: 4" || task.ExaminationTimestamp != "2021-06-01 10:30:00" {
		t.Fatalf("metadata = %q / %q", task.Assessment, task.ExaminationTimestamp)
	}
	if reports.calls != 0 {
		t.Fatalf("report consulted %d times despite worklist match", reports.calls)
	}
	if task.Version != version.Version {
		t.Fatalf("task version = %q, want %q", task.Version, version.Version)
	}

	mosaicPath := filepath.Join(studyDir, "crops", "all_views.jpeg")
	if task.ImagePath != mosaicPath {
		t.Fatalf("image path = %s, want %s", task.ImagePath, mosaicPath)
	}
	if task.ImageURL != "http://images.local/pat01/study01/crops/all_views.jpeg" {
		t.Fatalf("image url = %s", task.ImageURL)
	}
	if _, ok := store.savedJPEG[mosaicPath]; !ok {
		t.Fatalf("mosaic not saved, have %v", store.savedJPEG)
	}

	for _, tile := range []string{"t1_r_Sag_crop.png", "t1_l_Ax_crop.png"} {
		if _, ok := store.savedJPEG[filepath.Join(studyDir, "crops", tile)]; !ok {
			t.Fatalf("crop tile %s not saved", tile)
		}
	}

	if len(task.CropDetails) != 2 {
		t.Fatalf("crop details = %+v, want two views", task.CropDetails)
	}
	sag, ok := task.CropDetails["right_sagittal"]
	if !ok {
		t.Fatalf("crop details = %+v, missing right_sagittal", task.CropDetails)
	}
	// 800-row strip: margin 22 above the boundary at 361, half-height window.
	if sag.CropStart != 339 || sag.CropEnd != 739 || sag.Rotation != 1 {
		t.Fatalf("right sagittal details = %+v", sag)
	}
	if sag.OriginalWidth != 400 || sag.OriginalHeight != 800 {
		t.Fatalf("right sagittal details = %+v", sag)
	}
	ax, ok := task.CropDetails["left_axial"]
	if !ok || ax.Rotation != 3 {
		t.Fatalf("left axial details = %+v", ax)
	}
}

func TestPrepareStudyWritesTaskFile(t *testing.T) {
	_, studyDir, store := prepareFixture(t)
	uc := NewPrepareStudyUseCase(store, nil, nil)

	task, err := uc.PrepareStudy(context.Background(), "pat01/study01")
	if err != nil {
		t.Fatalf("PrepareStudy() error = %v", err)
	}

	data, ok := store.written[filepath.Join(studyDir, "crops", "task.json")]
	if !ok {
		t.Fatalf("task.json not written, have %v", store.written)
	}
	var onDisk domain.Task
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("task.json does not parse: %v", err)
	}
	if onDisk.ID != task.ID || onDisk.ImageURL != task.ImageURL {
		t.Fatalf("task.json = %+v, want the returned task", onDisk)
	}
}

func TestPrepareStudyReportFallback(t *testing.T) {
	_, _, store := prepareFixture(t)
	worklist := &fakeWorklist{entries: []domain.WorklistEntry{
		{PatientID: "pat02", StudyID: "study09", Assessment: "BIRADS: 1"},
	}}
	reports := &fakeReports{assessment: "BIRADS: 2"}
	uc := NewPrepareStudyUseCase(store, worklist, reports)

	task, err := uc.PrepareStudy(context.Background(), "pat01/study01")
	if err != nil {
		t.Fatalf("PrepareStudy() error = %v", err)
	}
	if task.Assessment != "BIRADS: 2" {
		t.Fatalf("assessment = %q, want report fallback", task.Assessment)
	}
	if task.ExaminationTimestamp != "" {
		t.Fatalf("examination timestamp = %q, want empty without a worklist row", task.ExaminationTimestamp)
	}
}

func TestPrepareStudyNoViews(t *testing.T) {
	store := newFakeStudyStore(t.TempDir())
	uc := NewPrepareStudyUseCase(store, nil, nil)

	_, err := uc.PrepareStudy(context.Background(), "pat01/study01")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("PrepareStudy() error = %v, want not found", err)
	}
}

func TestPrepareStudyRejectsLandscapeView(t *testing.T) {
	root := t.TempDir()
	studyDir := filepath.Join(root, "pat01", "study01")
	if err := os.MkdirAll(studyDir, 0o755); err != nil {
		t.Fatalf("make study dir: %v", err)
	}
	store := newFakeStudyStore(root)
	store.viewPaths = []string{writeViewImage(t, studyDir, "t1_r_Sag.png", 800, 400, 100)}
	uc := NewPrepareStudyUseCase(store, nil, nil)

	_, err := uc.PrepareStudy(context.Background(), "pat01/study01")
	if !domain.IsKind(err, domain.ErrGeometry) {
		t.Fatalf("PrepareStudy() error = %v, want geometry kind", err)
	}
}

func TestPrepareStudyWorklistFailure(t *testing.T) {
	_, _, store := prepareFixture(t)
	worklist := &fakeWorklist{err: errors.New("worklist unreadable")}
	uc := NewPrepareStudyUseCase(store, worklist, nil)

	if _, err := uc.PrepareStudy(context.Background(), "pat01/study01"); err == nil {
		t.Fatal("PrepareStudy() expected error from worklist")
	}
}
