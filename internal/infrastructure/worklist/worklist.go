// Package worklist reads the study worklist that drives batch uploads
// and writes the manifest files recording what was uploaded and what
// came back annotated.
package worklist

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mammoai/mammoannotator/internal/core/domain"
)

// Required worklist columns; the header names come from the anonymized
// RIS export feeding this system.
const (
	columnPatientID  = "anonPatientId"
	columnStudyID    = "anonExaminationStudyId"
	columnReport     = "ReportTextText"
	columnExaminedAt = "ExaminationTimestamp"
)

// Reader reads worklist rows from a CSV or XLSX file, chosen by
// extension.
type Reader struct {
	path string
}

func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Entries reads and validates every worklist row. Rows that are
// entirely empty are skipped; a row missing one of the identity columns
// fails the whole read.
func (r *Reader) Entries(_ context.Context) ([]domain.WorklistEntry, error) {
	rows, err := readRows(r.path)
	if err != nil {
		return nil, err
	}
	return entriesFromRows(rows)
}

func readRows(path string) ([][]string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return readCSVRows(path)
	case ".xlsx":
		return readXLSXRows(path)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "read worklist",
			fmt.Errorf("unsupported worklist format %q (want .csv or .xlsx)", ext))
	}
}

func readCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrNotFound, "read worklist", err)
		}
		return nil, fmt.Errorf("open worklist: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, domain.WrapError(domain.ErrFormat, "read worklist", err)
	}
	return rows, nil
}

func readXLSXRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrNotFound, "read worklist", err)
		}
		return nil, domain.WrapError(domain.ErrFormat, "read worklist", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, domain.WrapError(domain.ErrFormat, "read worklist",
			fmt.Errorf("workbook %s has no sheets", filepath.Base(path)))
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, domain.WrapError(domain.ErrFormat, "read worklist", err)
	}
	return rows, nil
}

func entriesFromRows(rows [][]string) ([]domain.WorklistEntry, error) {
	if len(rows) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read worklist",
			fmt.Errorf("worklist is empty"))
	}

	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[strings.TrimSpace(name)] = i
	}
	patientCol, ok := index[columnPatientID]
	if !ok {
		return nil, missingColumn(columnPatientID)
	}
	studyCol, ok := index[columnStudyID]
	if !ok {
		return nil, missingColumn(columnStudyID)
	}
	reportCol, hasReport := index[columnReport]
	examinedCol, hasExamined := index[columnExaminedAt]

	entries := make([]domain.WorklistEntry, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if emptyRow(row) {
			continue
		}
		patientID := cellAt(row, patientCol)
		studyID := cellAt(row, studyCol)
		if patientID == "" || studyID == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "read worklist",
				fmt.Errorf("row %d misses %s or %s", i+2, columnPatientID, columnStudyID))
		}

		entry := domain.WorklistEntry{PatientID: patientID, StudyID: studyID}
		if hasReport {
			entry.Assessment = cellAt(row, reportCol)
		}
		if hasExamined {
			entry.ExaminationTimestamp = cellAt(row, examinedCol)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func missingColumn(name string) error {
	return domain.WrapError(domain.ErrInvalidInput, "read worklist",
		fmt.Errorf("required column %s is missing", name))
}

// cellAt tolerates the trailing-cell trimming xlsx readers do.
func cellAt(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
