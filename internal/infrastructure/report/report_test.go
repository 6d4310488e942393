package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mammoai/mammoannotator/internal/core/domain"
)

func TestAssessmentWithoutReportIsEmpty(t *testing.T) {
	got, err := New().Assessment(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Assessment() error = %v", err)
	}
	if got != "" {
		t.Fatalf("assessment = %q, want empty", got)
	}
}

func TestAssessmentRejectsMalformedReport(t *testing.T) {
	studyDir := t.TempDir()
	path := filepath.Join(studyDir, reportFileName)
	if err := os.WriteFile(path, []byte("this is not a pdf"), 0o644); err != nil {
		t.Fatalf("write report: %v", err)
	}

	_, err := New().Assessment(context.Background(), studyDir)
	if !domain.IsKind(err, domain.ErrFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestFirstParagraphCollapsesWhitespace(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{
			name: "leading blank lines",
			text: "\n\n  MRI breast with\tcontrast.  No suspicious enhancement.\n\nSecond paragraph.",
			want: "MRI breast with contrast. No suspicious enhancement.",
		},
		{
			name: "single block",
			text: "BI-RADS   2.",
			want: "BI-RADS 2.",
		},
		{
			name: "only whitespace",
			text: " \n \t \n\n ",
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := firstParagraph(tc.text); got != tc.want {
				t.Fatalf("firstParagraph(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}
