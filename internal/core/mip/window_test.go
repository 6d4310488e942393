package mip

import (
	"math"
	"testing"

	"github.com/mammoai/mammoannotator/internal/core/domain"
)

func TestAutoWindowTrimsBackground(t *testing.T) {
	// Edges span [0, 6] in 100 bins, so the first interior edge is 0.06
	// and excludeBlack drops only the zero. Kept population {2, 4, 6}:
	// mean 4, sample stddev 2.
	center, width, err := AutoWindow([]float64{0, 2, 4, 6}, 4.0, true, false, 100)
	if err != nil {
		t.Fatalf("AutoWindow() error = %v", err)
	}
	if math.Abs(center-6) > 1e-9 {
		t.Fatalf("center = %v, want 6", center)
	}
	if math.Abs(width-8) > 1e-9 {
		t.Fatalf("width = %v, want 8", width)
	}
}

func TestAutoWindowTrimsSaturation(t *testing.T) {
	// Edges span [0, 100]; excludeWhite drops the values at 100, leaving
	// {2, 4, 6} again.
	center, width, err := AutoWindow([]float64{0, 2, 4, 6, 100, 100}, 2.0, true, true, 100)
	if err != nil {
		t.Fatalf("AutoWindow() error = %v", err)
	}
	if math.Abs(center-6) > 1e-9 {
		t.Fatalf("center = %v, want 6", center)
	}
	if math.Abs(width-4) > 1e-9 {
		t.Fatalf("width = %v, want 4", width)
	}
}

func TestAutoWindowRejectsDegeneratePopulations(t *testing.T) {
	cases := []struct {
		name   string
		values []float64
		bins   int
		kind   error
	}{
		{"empty", nil, 100, domain.ErrNoTissue},
		{"constant", []float64{5, 5, 5}, 100, domain.ErrNoTissue},
		{"over-trimmed", []float64{0, 100}, 100, domain.ErrNoTissue},
		{"too few bins", []float64{0, 2, 4}, 1, domain.ErrInvalidInput},
	}
	for _, tc := range cases {
		if _, _, err := AutoWindow(tc.values, 4.0, true, false, tc.bins); !domain.IsKind(err, tc.kind) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.kind, err)
		}
	}
}

func TestWindowImageClipsAndRescales(t *testing.T) {
	m := flatMat(t, 1, 5, -10, 0, 50, 100, 200)

	img, err := WindowImage(m, 50, 100)
	if err != nil {
		t.Fatalf("WindowImage() error = %v", err)
	}
	if img.Bounds().Dx() != 5 || img.Bounds().Dy() != 1 {
		t.Fatalf("image is %v, want 5x1", img.Bounds())
	}
	for c, want := range []uint8{0, 0, 128, 255, 255} {
		if got := img.GrayAt(c, 0).Y; got != want {
			t.Fatalf("pixel %d = %d, want %d", c, got, want)
		}
	}
}

func TestWindowImageRejectsNonPositiveWidth(t *testing.T) {
	m := flatMat(t, 1, 1, 7)
	for _, width := range []float64{0, -3} {
		if _, err := WindowImage(m, 10, width); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("width %v: expected invalid input error, got %v", width, err)
		}
	}
}
