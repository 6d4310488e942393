package mri

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/raster"
)

// orientation is one row of the enumerated normalization table. Rotation
// counts counter-clockwise quarter turns applied before the flips.
type orientation struct {
	rotation int
	hFlip    bool
	vFlip    bool
}

type viewIdentity struct {
	lat  domain.Laterality
	view domain.View
}

// orientationRules is the complete table. Any pair outside it is rejected,
// never defaulted.
var orientationRules = map[viewIdentity]orientation{
	{domain.LateralityRight, domain.ViewSagittal}: {rotation: 1},
	{domain.LateralityRight, domain.ViewAxial}:    {rotation: 1},
	{domain.LateralityLeft, domain.ViewSagittal}:  {rotation: 3, vFlip: true},
	{domain.LateralityLeft, domain.ViewAxial}:     {rotation: 3},
}

// CroppedImage is the normalized square tile for one view plus the exact
// geometry needed to invert it.
type CroppedImage struct {
	Laterality domain.Laterality
	View       domain.View
	SourcePath string
	Tile       *image.Gray
	Details    domain.CropDetails
}

// Key returns the "<laterality>_<view>" identity of this tile.
func (c *CroppedImage) Key() string {
	return domain.ViewKey(c.Laterality, c.View)
}

// CropPositions computes the half-height crop window. The start sits one
// margin above the tissue boundary, clamped into [0, height/2] so the
// window always fits.
func CropPositions(height, whiteStart int) (start, end int) {
	start = whiteStart - marginFor(height)
	if start < 0 {
		start = 0
	}
	if half := height / 2; start > half {
		start = half
	}
	return start, start + height/2
}

// CropRawImage crops the clinically relevant half of a raw view, applies
// the orientation rule for its (laterality, view), and resizes the result
// to the fixed square side.
func CropRawImage(raw *RawImage) (*CroppedImage, error) {
	rule, ok := orientationRules[viewIdentity{raw.Laterality, raw.View}]
	if !ok {
		return nil, domain.WrapError(domain.ErrUnknownView, "crop raw image",
			fmt.Errorf("no orientation rule for %s", raw.Key()))
	}

	start, end := CropPositions(raw.Height, raw.WhiteStart)
	band := raster.CropRowsGray(raw.Pixels, start, end)
	tile := raster.ScaleGray(Reorient(band, rule.rotation, rule.hFlip, rule.vFlip), side, side)

	return &CroppedImage{
		Laterality: raw.Laterality,
		View:       raw.View,
		SourcePath: raw.Path,
		Tile:       tile,
		Details: domain.CropDetails{
			CropStart:      start,
			CropEnd:        end,
			Rotation:       rule.rotation,
			HFlip:          rule.hFlip,
			VFlip:          rule.vFlip,
			OriginalWidth:  raw.Width,
			OriginalHeight: raw.Height,
		},
	}, nil
}

// Reorient applies the fixed transform order: rotate counter-clockwise,
// then reverse columns, then reverse rows.
func Reorient(img *image.Gray, rotation int, hFlip, vFlip bool) *image.Gray {
	out := raster.Rotate90Gray(img, rotation)
	if hFlip {
		out = raster.FlipHGray(out)
	}
	if vFlip {
		out = raster.FlipVGray(out)
	}
	return out
}

// CropFileName maps a view image path to its crop tile name, keeping the
// extension: "sub_r_Sag.jpeg" -> "sub_r_Sag_crop.jpeg".
func CropFileName(srcPath string) string {
	base := filepath.Base(srcPath)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "_crop" + ext
}
