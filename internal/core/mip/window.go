package mip

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/raster"
)

const (
	// windowWidthInStdev spans the display window over this many standard
	// deviations of the trimmed intensity population.
	windowWidthInStdev = 4.0

	// windowBins is the histogram resolution used to trim background and
	// saturation before estimating the window.
	windowBins = 100
)

// AutoWindow estimates display window parameters from an intensity
// population. Histogram edges spanning [min, max] bound the trim:
// excludeBlack drops values at or below the first interior edge,
// excludeWhite drops values at or above the last interior edge. The
// surviving population yields center = mean + stddev and
// width = widthInStdev * stddev.
func AutoWindow(values []float64, widthInStdev float64, excludeBlack, excludeWhite bool, bins int) (center, width float64, err error) {
	if bins < 2 {
		return 0, 0, domain.WrapError(domain.ErrInvalidInput, "auto window",
			fmt.Errorf("need at least two histogram bins, got %d", bins))
	}
	if len(values) == 0 {
		return 0, 0, domain.WrapError(domain.ErrNoTissue, "auto window",
			fmt.Errorf("empty intensity population"))
	}

	lo := floats.Min(values)
	hi := floats.Max(values)
	if lo == hi {
		return 0, 0, domain.WrapError(domain.ErrNoTissue, "auto window",
			fmt.Errorf("constant intensity %.1f has no window", lo))
	}

	edges := floats.Span(make([]float64, bins+1), lo, hi)
	blackEdge := edges[1]
	whiteEdge := edges[bins-1]

	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if excludeBlack && v <= blackEdge {
			continue
		}
		if excludeWhite && v >= whiteEdge {
			continue
		}
		kept = append(kept, v)
	}
	if len(kept) < 2 {
		return 0, 0, domain.WrapError(domain.ErrNoTissue, "auto window",
			fmt.Errorf("%d of %d values survive histogram trimming", len(kept), len(values)))
	}

	mean, stddev := stat.MeanStdDev(kept, nil)
	if stddev == 0 || math.IsNaN(stddev) {
		return 0, 0, domain.WrapError(domain.ErrNoTissue, "auto window",
			fmt.Errorf("trimmed population has no spread around %.1f", mean))
	}
	return mean + stddev, widthInStdev * stddev, nil
}

// WindowImage clips the matrix to [center-width/2, center+width/2] and
// rescales that range linearly onto [0, 255].
func WindowImage(m *raster.Mat, center, width float64) (*image.Gray, error) {
	if width <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "window image",
			fmt.Errorf("window width %.2f must be positive", width))
	}

	lo := center - width/2
	out := raster.NewGray(m.Cols, m.Rows)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			scaled := (float64(m.At(r, c)) - lo) / width * 255
			if scaled < 0 {
				scaled = 0
			} else if scaled > 255 {
				scaled = 255
			}
			out.SetGray(c, r, color.Gray{Y: uint8(math.Round(scaled))})
		}
	}
	return out, nil
}
