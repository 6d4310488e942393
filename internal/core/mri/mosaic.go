package mri

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/raster"
)

// MosaicFileName is the canvas written into every study's crops folder.
const MosaicFileName = "all_views.jpeg"

// quadrant offsets in units of the tile side: {row, col}.
var quadrantLayout = map[string][2]int{
	domain.ViewKey(domain.LateralityRight, domain.ViewSagittal): {0, 0},
	domain.ViewKey(domain.LateralityLeft, domain.ViewSagittal):  {0, 1},
	domain.ViewKey(domain.LateralityRight, domain.ViewAxial):    {1, 0},
	domain.ViewKey(domain.LateralityLeft, domain.ViewAxial):     {1, 1},
}

// Mosaic is the composed four-quadrant canvas plus the per-view geometry
// of everything placed on it.
type Mosaic struct {
	Canvas  *image.Gray
	Side    int
	Details map[string]domain.CropDetails
}

// ComposeMosaic places each cropped view into its quadrant of a
// 2*side x 2*side canvas. Missing views stay black. Inputs must share one
// square tile size and carry distinct view identities.
func ComposeMosaic(tiles []*CroppedImage) (*Mosaic, error) {
	if len(tiles) == 0 {
		return nil, domain.WrapError(domain.ErrComposition, "compose mosaic",
			fmt.Errorf("no cropped views given"))
	}

	tileSide := tiles[0].Tile.Bounds().Dx()
	canvas := raster.NewGray(2*tileSide, 2*tileSide)
	details := make(map[string]domain.CropDetails, len(tiles))

	for _, tile := range tiles {
		key := tile.Key()
		if _, dup := details[key]; dup {
			return nil, domain.WrapError(domain.ErrComposition, "compose mosaic",
				fmt.Errorf("duplicate view %s", key))
		}
		offsets, ok := quadrantLayout[key]
		if !ok {
			return nil, domain.WrapError(domain.ErrUnknownView, "compose mosaic",
				fmt.Errorf("no quadrant for %s", key))
		}

		w := tile.Tile.Bounds().Dx()
		h := tile.Tile.Bounds().Dy()
		if w != h || w != tileSide {
			return nil, domain.WrapError(domain.ErrComposition, "compose mosaic",
				fmt.Errorf("view %s tile is %dx%d, want %dx%d", key, w, h, tileSide, tileSide))
		}

		x0 := offsets[1] * tileSide
		y0 := offsets[0] * tileSide
		rect := image.Rect(x0, y0, x0+tileSide, y0+tileSide)
		draw.Draw(canvas, rect, tile.Tile, tile.Tile.Bounds().Min, draw.Src)
		details[key] = tile.Details
	}

	return &Mosaic{Canvas: canvas, Side: tileSide, Details: details}, nil
}
