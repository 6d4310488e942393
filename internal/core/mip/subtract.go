package mip

import (
	"fmt"
	"sort"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/raster"
)

// Subtract returns the element-wise signed difference post minus pre,
// without clamping. Both volumes must share an exact shape. Acquisition
// tags do not survive subtraction and are dropped from the result.
func Subtract(post, pre *Series) (*Series, error) {
	if !post.Volume.SameShape(pre.Volume) {
		return nil, domain.WrapError(domain.ErrShapeMismatch, "subtract series",
			fmt.Errorf("post is %s, pre is %s", post.Volume.ShapeString(), pre.Volume.ShapeString()))
	}

	diff := raster.NewVolume(post.Volume.Slices, post.Volume.Rows, post.Volume.Cols)
	for i, v := range post.Volume.Data {
		diff.Data[i] = v - pre.Volume.Data[i]
	}

	return &Series{
		SourcePath: post.SourcePath + " - " + pre.SourcePath,
		Volume:     diff,
	}, nil
}

// SelectContrastPair picks the pre- and post-contrast series of one study.
// Ordered by series number, the first acquisition is pre-contrast and the
// last is post-contrast.
func SelectContrastPair(series []*Series) (pre, post *Series, err error) {
	if len(series) < 2 {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "select contrast pair",
			fmt.Errorf("need at least two series, got %d", len(series)))
	}

	ordered := make([]*Series, len(series))
	copy(ordered, series)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Tags.Number < ordered[j].Tags.Number
	})
	return ordered[0], ordered[len(ordered)-1], nil
}
