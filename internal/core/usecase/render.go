package usecase

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/mip"
	"github.com/mammoai/mammoannotator/internal/core/mri"
	"github.com/mammoai/mammoannotator/internal/core/ports"
	"github.com/mammoai/mammoannotator/internal/core/raster"
)

// renderedViews is the fixed set of projections written per study, in
// output order.
var renderedViews = []struct {
	lat  domain.Laterality
	view domain.View
}{
	{domain.LateralityRight, domain.ViewSagittal},
	{domain.LateralityLeft, domain.ViewSagittal},
	{domain.LateralityRight, domain.ViewAxial},
	{domain.LateralityLeft, domain.ViewAxial},
}

type RenderProjectionsUseCase struct {
	source ports.SeriesSource
	store  ports.StudyStore
}

func NewRenderProjectionsUseCase(source ports.SeriesSource, store ports.StudyStore) *RenderProjectionsUseCase {
	return &RenderProjectionsUseCase{source: source, store: store}
}

// RenderProjections subtracts the study's contrast series pair and writes
// the four windowed projections into the study directory, named so the
// preparation pipeline picks them up as view images. An explicit series
// name list narrows which series are considered.
func (uc *RenderProjectionsUseCase) RenderProjections(ctx context.Context, studyDir string, seriesNames []string) ([]string, error) {
	dirs, err := uc.source.ListSeriesDirs(ctx, studyDir)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	dirs, err = filterSeriesDirs(dirs, seriesNames)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "render projections",
			fmt.Errorf("no DICOM series under %s", studyDir))
	}

	series := make([]*mip.Series, 0, len(dirs))
	for _, dir := range dirs {
		s, err := uc.source.LoadSeries(ctx, dir)
		if err != nil {
			return nil, fmt.Errorf("load series %s: %w", filepath.Base(dir), err)
		}
		series = append(series, s)
	}

	sub, err := subtractionOf(series, len(seriesNames) > 0)
	if err != nil {
		return nil, err
	}

	written := make([]string, 0, len(renderedViews))
	for _, rv := range renderedViews {
		img, err := sub.WindowedMIP(rv.lat, rv.view)
		if err != nil {
			return nil, fmt.Errorf("render %s %s projection: %w", rv.lat, rv.view, err)
		}
		// Axial projections come out rotated a quarter turn against the
		// sagittal ones; three more turns puts them upright.
		if rv.view == domain.ViewAxial {
			img = raster.Rotate90Gray(img, 3)
		}

		name, err := mri.SubtractedViewFileName(rv.lat, rv.view)
		if err != nil {
			return nil, err
		}
		outPath := filepath.Join(studyDir, name)
		if err := uc.store.SaveJPEG(ctx, outPath, img); err != nil {
			return nil, fmt.Errorf("save projection: %w", err)
		}
		written = append(written, outPath)
	}
	return written, nil
}

// subtractionOf reduces the loaded series to the volume projections are
// rendered from. A single series is used as-is. Explicitly named series
// keep the order given, first as pre and last as post; otherwise the
// contrast pair is selected by series number.
func subtractionOf(series []*mip.Series, ordered bool) (*mip.Series, error) {
	if len(series) == 1 {
		return series[0], nil
	}
	pre, post := series[0], series[len(series)-1]
	if !ordered {
		var err error
		pre, post, err = mip.SelectContrastPair(series)
		if err != nil {
			return nil, fmt.Errorf("select contrast pair: %w", err)
		}
	}
	sub, err := mip.Subtract(post, pre)
	if err != nil {
		return nil, fmt.Errorf("subtract series: %w", err)
	}
	return sub, nil
}

func filterSeriesDirs(dirs, names []string) ([]string, error) {
	if len(names) == 0 {
		return dirs, nil
	}

	byName := make(map[string]string, len(dirs))
	for _, dir := range dirs {
		byName[filepath.Base(dir)] = dir
	}

	out := make([]string, 0, len(names))
	for _, name := range names {
		dir, ok := byName[name]
		if !ok {
			return nil, domain.WrapError(domain.ErrNotFound, "render projections",
				fmt.Errorf("series %q not found", name))
		}
		out = append(out, dir)
	}
	return out, nil
}
