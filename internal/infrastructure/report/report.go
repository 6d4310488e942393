// Package report extracts the radiology assessment attached to a study
// as a PDF report.
package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/mammoai/mammoannotator/internal/core/domain"
)

const reportFileName = "report.pdf"

// Reader pulls assessment text out of per-study report files.
type Reader struct{}

func New() *Reader {
	return &Reader{}
}

// Assessment returns the first paragraph of <study>/report.pdf with its
// whitespace collapsed. A study without a report yields the empty
// string; a report that cannot be parsed is a format error.
func (r *Reader) Assessment(_ context.Context, studyDir string) (string, error) {
	path := filepath.Join(studyDir, reportFileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("stat report: %w", err)
	}

	text, err := readPlainText(path)
	if err != nil {
		return "", domain.WrapError(domain.ErrFormat, "read report", err)
	}
	return firstParagraph(text), nil
}

// readPlainText extracts the document text. The parser panics on some
// malformed files, so the recover path turns those into errors.
func readPlainText(path string) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf parser: %v", rec)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(content); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// firstParagraph returns the first blank-line separated block of text
// with every whitespace run collapsed to a single space.
func firstParagraph(text string) string {
	for _, block := range strings.Split(text, "\n\n") {
		collapsed := strings.Join(strings.Fields(block), " ")
		if collapsed != "" {
			return collapsed
		}
	}
	return ""
}
