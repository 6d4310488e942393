package worklist

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/mammoai/mammoannotator/internal/core/domain"
)

// manifestColumns is the upload manifest header. The identity and report
// columns mirror the input worklist; the view columns flag which crops
// the uploaded mosaic actually carries.
var manifestColumns = []string{
	columnPatientID,
	columnStudyID,
	columnReport,
	"ls_project_id",
	"ls_task_id",
	"left_sagittal",
	"right_sagittal",
	"left_axial",
	"right_axial",
}

// manifestViewKeys are the crop-presence columns, in header order.
var manifestViewKeys = []string{"left_sagittal", "right_sagittal", "left_axial", "right_axial"}

// ManifestRecorder appends uploaded tasks to a CSV manifest. The file is
// opened and the header written on the first recorded task, so an
// aborted run leaves no empty manifest behind. Safe for concurrent use.
type ManifestRecorder struct {
	path string

	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

func NewManifestRecorder(path string) *ManifestRecorder {
	return &ManifestRecorder{path: path}
}

// Path returns the manifest location.
func (m *ManifestRecorder) Path() string {
	return m.path
}

// RecordTask appends one uploaded task row.
func (m *ManifestRecorder) RecordTask(_ context.Context, task *domain.Task) error {
	if task == nil {
		return domain.WrapError(domain.ErrInvalidInput, "record task",
			fmt.Errorf("nil task"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writer == nil {
		if err := m.open(); err != nil {
			return err
		}
	}

	row := []string{
		task.PatientID,
		task.StudyID,
		task.Assessment,
		strconv.FormatInt(task.LSProjectID, 10),
		strconv.FormatInt(task.LSTaskID, 10),
	}
	for _, key := range manifestViewKeys {
		row = append(row, strconv.FormatBool(task.HasView(key)))
	}

	if err := m.writer.Write(row); err != nil {
		return fmt.Errorf("append manifest row: %w", err)
	}
	m.writer.Flush()
	if err := m.writer.Error(); err != nil {
		return fmt.Errorf("flush manifest: %w", err)
	}
	return nil
}

// open creates or resumes the manifest. Creation is exclusive, so batch
// workers recording to the same path produce exactly one header; a
// pre-existing non-empty file keeps its header and new rows append.
func (m *ManifestRecorder) open() error {
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
	if errors.Is(err, os.ErrExist) {
		return m.resume()
	}
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}

	m.file = f
	m.writer = csv.NewWriter(f)
	return m.writeHeader()
}

func (m *ManifestRecorder) resume() error {
	f, err := os.OpenFile(m.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat manifest: %w", err)
	}

	m.file = f
	m.writer = csv.NewWriter(f)
	if info.Size() == 0 {
		return m.writeHeader()
	}
	return nil
}

func (m *ManifestRecorder) writeHeader() error {
	if err := m.writer.Write(manifestColumns); err != nil {
		return fmt.Errorf("write manifest header: %w", err)
	}
	m.writer.Flush()
	if err := m.writer.Error(); err != nil {
		return fmt.Errorf("flush manifest header: %w", err)
	}
	return nil
}

// Close flushes and closes the manifest. Recording nothing leaves no
// file to close.
func (m *ManifestRecorder) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file == nil {
		return nil
	}
	m.writer.Flush()
	flushErr := m.writer.Error()
	closeErr := m.file.Close()
	m.file = nil
	m.writer = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
