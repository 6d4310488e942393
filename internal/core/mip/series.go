// Package mip assembles DICOM slice stacks into signed volumes and renders
// maximum intensity projections from them: series ordering and tag
// collapse, contrast subtraction, laterality-restricted projections and
// statistical auto-windowing.
package mip

import (
	"fmt"
	"sort"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/raster"
)

// SliceTags carries the per-slice acquisition attributes recorded
// alongside the pixel data.
type SliceTags struct {
	SeriesDescription  string
	SeriesNumber       int
	AcquisitionTime    string
	TriggerTime        string
	TemporalPositionID int
	InstanceNumber     int
	SliceLocation      float64
	SliceThickness     float64
	Rows               int
	Cols               int
	PixelSpacingRow    float64
	PixelSpacingCol    float64
	WindowCenter       float64
	WindowWidth        float64
	RescaleIntercept   float64
	RescaleSlope       float64
}

// SeriesTags are the attributes required to agree across every slice of
// one series.
type SeriesTags struct {
	Description     string
	Number          int
	Rows            int
	Cols            int
	PixelSpacingRow float64
	PixelSpacingCol float64
	SliceThickness  float64
}

// Slice pairs one acquisition image with its tags.
type Slice struct {
	Tags   SliceTags
	Pixels *raster.Mat
}

// Series is a slice stack ordered by signed location, collapsed into a
// [slice, row, col] volume with uniform geometry tags. Tags and SliceTags
// are empty on derived series such as subtractions.
type Series struct {
	SourcePath string
	Tags       SeriesTags
	SliceTags  []SliceTags
	Volume     *raster.Volume
}

// NewSeries orders the given slices by signed slice location and stacks
// their pixels into a volume. Identity and geometry tags must agree across
// all slices, and every slice's pixel dimensions must match what its tags
// promise.
func NewSeries(sourcePath string, slices []Slice) (*Series, error) {
	if len(slices) == 0 {
		return nil, domain.WrapError(domain.ErrFormat, "assemble series",
			fmt.Errorf("no slices under %s", sourcePath))
	}

	ordered := make([]Slice, len(slices))
	copy(ordered, slices)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Tags.SliceLocation < ordered[j].Tags.SliceLocation
	})

	first := ordered[0].Tags
	for _, s := range ordered[1:] {
		if tag := divergentTag(first, s.Tags); tag != "" {
			return nil, domain.WrapError(domain.ErrTagConsistency, "assemble series",
				fmt.Errorf("%s diverges across slices of %s", tag, sourcePath))
		}
	}

	volume := raster.NewVolume(len(ordered), first.Rows, first.Cols)
	sliceTags := make([]SliceTags, len(ordered))
	for i, s := range ordered {
		if s.Pixels == nil || s.Pixels.Rows != first.Rows || s.Pixels.Cols != first.Cols {
			got := "missing"
			if s.Pixels != nil {
				got = fmt.Sprintf("%dx%d", s.Pixels.Rows, s.Pixels.Cols)
			}
			return nil, domain.WrapError(domain.ErrTagConsistency, "assemble series",
				fmt.Errorf("slice %d pixel data is %s, tags promise %dx%d", i, got, first.Rows, first.Cols))
		}
		volume.SetSlice(i, s.Pixels)
		sliceTags[i] = s.Tags
	}

	return &Series{
		SourcePath: sourcePath,
		Tags: SeriesTags{
			Description:     first.SeriesDescription,
			Number:          first.SeriesNumber,
			Rows:            first.Rows,
			Cols:            first.Cols,
			PixelSpacingRow: first.PixelSpacingRow,
			PixelSpacingCol: first.PixelSpacingCol,
			SliceThickness:  first.SliceThickness,
		},
		SliceTags: sliceTags,
		Volume:    volume,
	}, nil
}

// divergentTag names the first uniform tag on which two slices disagree.
func divergentTag(a, b SliceTags) string {
	switch {
	case a.SeriesDescription != b.SeriesDescription:
		return "series description"
	case a.SeriesNumber != b.SeriesNumber:
		return "series number"
	case a.Rows != b.Rows:
		return "rows"
	case a.Cols != b.Cols:
		return "columns"
	case a.PixelSpacingRow != b.PixelSpacingRow || a.PixelSpacingCol != b.PixelSpacingCol:
		return "pixel spacing"
	case a.SliceThickness != b.SliceThickness:
		return "slice thickness"
	}
	return ""
}
