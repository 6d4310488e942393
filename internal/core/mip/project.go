package mip

import (
	"fmt"
	"image"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/raster"
)

// chestThreshold is the windowed intensity a column's central-band mean
// must exceed to count as breast tissue rather than chest wall.
const chestThreshold = 150.0

// viewAxes maps each anatomical view to the volume axis its projection
// collapses.
var viewAxes = map[domain.View]raster.Axis{
	domain.ViewSagittal: raster.AxisSlices,
	domain.ViewCoronal:  raster.AxisRows,
	domain.ViewAxial:    raster.AxisCols,
}

// MIP restricts the volume to the given laterality's column half and
// collapses it with a per-ray maximum along the view's axis. Column index
// grows patient-right to patient-left, so the right breast occupies the
// lower-index half.
func (s *Series) MIP(lat domain.Laterality, view domain.View) (*raster.Mat, error) {
	axis, ok := viewAxes[view]
	if !ok {
		return nil, domain.WrapError(domain.ErrUnknownView, "project series",
			fmt.Errorf("no projection axis for view %q", view))
	}

	half := s.Volume.Cols / 2
	var restricted *raster.Volume
	switch lat {
	case domain.LateralityRight:
		restricted = s.Volume.SubColumns(0, half)
	case domain.LateralityLeft:
		restricted = s.Volume.SubColumns(half, s.Volume.Cols)
	default:
		return nil, domain.WrapError(domain.ErrUnknownView, "project series",
			fmt.Errorf("unknown laterality %q", lat))
	}
	return restricted.MaxAlong(axis), nil
}

// ChestStart locates the column where the chest wall gives way to breast
// tissue. The volume's middle slice is windowed with parameters estimated
// from the whole volume, then scanned column by column; the first column
// whose mean windowed intensity over the central third of rows clears the
// chest threshold is the boundary.
func (s *Series) ChestStart() (int, error) {
	values := make([]float64, len(s.Volume.Data))
	for i, v := range s.Volume.Data {
		values[i] = float64(v)
	}
	center, width, err := AutoWindow(values, windowWidthInStdev, true, false, windowBins)
	if err != nil {
		return 0, err
	}

	middle, err := WindowImage(s.Volume.Slice(s.Volume.Slices/2), center, width)
	if err != nil {
		return 0, err
	}

	w := middle.Bounds().Dx()
	h := middle.Bounds().Dy()
	r0, r1 := h/3, 2*h/3
	if r1 <= r0 {
		r0, r1 = 0, h
	}
	for c := 0; c < w; c++ {
		sum := 0.0
		for r := r0; r < r1; r++ {
			sum += float64(middle.GrayAt(c, r).Y)
		}
		if sum/float64(r1-r0) > chestThreshold {
			return c, nil
		}
	}
	return 0, domain.WrapError(domain.ErrBoundaryNotFound, "locate chest start",
		fmt.Errorf("no column mean above %.0f across %d columns", chestThreshold, w))
}

// WindowedMIP renders the laterality/view projection windowed with
// parameters estimated from chest-adjacent tissue: the full-width sagittal
// projection restricted to columns from ChestStart on.
func (s *Series) WindowedMIP(lat domain.Laterality, view domain.View) (*image.Gray, error) {
	chest, err := s.ChestStart()
	if err != nil {
		return nil, err
	}

	sagittal := s.Volume.MaxAlong(raster.AxisSlices)
	tissue := sagittal.Region(0, chest, sagittal.Rows, sagittal.Cols)
	values := make([]float64, len(tissue.Data))
	for i, v := range tissue.Data {
		values[i] = float64(v)
	}
	center, width, err := AutoWindow(values, windowWidthInStdev, true, false, windowBins)
	if err != nil {
		return nil, err
	}

	projection, err := s.MIP(lat, view)
	if err != nil {
		return nil, err
	}
	return WindowImage(projection, center, width)
}
