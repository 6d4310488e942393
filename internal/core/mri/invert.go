package mri

import (
	"fmt"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/raster"
)

// InvertedView is one view's annotation mapped back into the original
// image frame.
type InvertedView struct {
	// Mask has the view's original dimensions; annotated pixels are
	// non-zero and confined to rows [CropStart, CropEnd).
	Mask *raster.Mat

	// AnnotatedPixels counts the non-zero quadrant pixels before the
	// inverse transform.
	AnnotatedPixels int
}

// InvertAnnotation maps a mosaic-sized annotation mask back to original
// per-view coordinates. For each view present in details it slices the
// matching quadrant, resets negative sentinel values to white, and undoes
// the forward transform in exact reverse order: vertical flip, horizontal
// flip, rotation, then the resize back to (height/2) x width. Views whose
// quadrant carries no annotated pixels are omitted from the result.
func InvertAnnotation(mask *raster.Mat, details map[string]domain.CropDetails) (map[string]InvertedView, error) {
	if mask == nil || mask.Rows != mask.Cols || mask.Rows%2 != 0 || mask.Rows == 0 {
		rows, cols := 0, 0
		if mask != nil {
			rows, cols = mask.Rows, mask.Cols
		}
		return nil, domain.WrapError(domain.ErrComposition, "invert annotation",
			fmt.Errorf("mask %dx%d is not an even square mosaic", rows, cols))
	}

	tileSide := mask.Rows / 2
	out := make(map[string]InvertedView, len(details))

	for key, d := range details {
		offsets, ok := quadrantLayout[key]
		if !ok {
			return nil, domain.WrapError(domain.ErrUnknownView, "invert annotation",
				fmt.Errorf("no quadrant for %s", key))
		}

		r0 := offsets[0] * tileSide
		c0 := offsets[1] * tileSide
		quad := mask.Region(r0, c0, r0+tileSide, c0+tileSide)

		// Annotated pixels arriving through signed RGBA packing are
		// negative; restore them to white before counting.
		for i, v := range quad.Data {
			if v < 0 {
				quad.Data[i] = 255
			}
		}

		annotated := quad.NonZero()
		if annotated == 0 {
			continue
		}

		if d.VFlip {
			quad = quad.FlipV()
		}
		if d.HFlip {
			quad = quad.FlipH()
		}
		quad = quad.Rotate90(-d.Rotation)

		bandRows := d.CropEnd - d.CropStart
		if bandRows <= 0 || d.CropStart < 0 || d.CropEnd > d.OriginalHeight || d.OriginalWidth <= 0 {
			return nil, domain.WrapError(domain.ErrGeometry, "invert annotation",
				fmt.Errorf("view %s has inconsistent crop window [%d, %d) in %dx%d",
					key, d.CropStart, d.CropEnd, d.OriginalWidth, d.OriginalHeight))
		}
		band := quad.ScaleNearest(bandRows, d.OriginalWidth)

		canvas := raster.NewMat(d.OriginalHeight, d.OriginalWidth)
		band.PasteInto(canvas, d.CropStart, 0)

		out[key] = InvertedView{Mask: canvas, AnnotatedPixels: annotated}
	}

	return out, nil
}
