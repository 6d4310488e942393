package worklist

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/mammoai/mammoannotator/internal/core/domain"
)

// exportColumns is the header of the export summary, one row per
// inverted mask view.
var exportColumns = []string{
	"ls_task_id",
	"ls_annotation_id",
	"view_key",
	"label",
	"annotated_pixels",
	"output_path",
}

const exportSheet = "Sheet1"

// ExportWriter writes the annotation export summary as a CSV plus an
// XLSX copy for spreadsheet consumers.
type ExportWriter struct {
	dir string
}

func NewExportWriter(dir string) *ExportWriter {
	return &ExportWriter{dir: dir}
}

// WriteSummary writes project<ID>_annotations.csv and .xlsx under the
// writer's directory and returns both paths.
func (w *ExportWriter) WriteSummary(projectID int64, exports []domain.AnnotationExport) (string, string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("prepare summary dir: %w", err)
	}

	base := fmt.Sprintf("project%d_annotations", projectID)
	csvPath := filepath.Join(w.dir, base+".csv")
	xlsxPath := filepath.Join(w.dir, base+".xlsx")

	if err := writeSummaryCSV(csvPath, exports); err != nil {
		return "", "", err
	}
	if err := writeSummaryXLSX(xlsxPath, exports); err != nil {
		return "", "", err
	}
	return csvPath, xlsxPath, nil
}

func writeSummaryCSV(path string, exports []domain.AnnotationExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv summary: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(exportColumns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, exp := range exports {
		row := []string{
			strconv.FormatInt(exp.LSTaskID, 10),
			strconv.FormatInt(exp.LSAnnotationID, 10),
			exp.ViewKey,
			exp.Label,
			strconv.Itoa(exp.AnnotatedPixels),
			exp.OutputPath,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv summary: %w", err)
	}
	return nil
}

func writeSummaryXLSX(path string, exports []domain.AnnotationExport) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]any, len(exportColumns))
	for i, name := range exportColumns {
		header[i] = name
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}

	for i, exp := range exports {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("xlsx cell name: %w", err)
		}
		row := []any{
			exp.LSTaskID,
			exp.LSAnnotationID,
			exp.ViewKey,
			exp.Label,
			exp.AnnotatedPixels,
			exp.OutputPath,
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("write xlsx row: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save xlsx summary: %w", err)
	}
	return nil
}
