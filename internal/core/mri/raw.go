// Package mri implements the study image pipeline: per-view loading and
// tissue detection, half-height cropping with orientation normalization,
// four-quadrant mosaic composition, and the exact inverse mapping of
// annotation masks back to original image coordinates.
package mri

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/raster"
)

const (
	// side is the square tile size every cropped view is resized to.
	side = 360

	// cropMarginRatio scales the image height into the safety margin kept
	// above the detected tissue boundary.
	cropMarginRatio = 0.0277

	// whiteThreshold is the mean intensity (of 255) a row's central third
	// must exceed to count as tissue.
	whiteThreshold = 50.0

	// Aspect ratio (width/height) bounds for a plausible view strip.
	minAspect = 0.1
	maxAspect = 0.9
)

// RawImage is one per-view projection image with its derived metadata.
type RawImage struct {
	Path       string
	Laterality domain.Laterality
	View       domain.View
	Width      int
	Height     int
	Pixels     *image.Gray
	WhiteStart int
}

// LoadRawImage reads a view image from disk and derives its metadata.
// The filename must carry the view identity in its last two underscore
// separated stem tokens, e.g. "sub_r_Sag.jpeg".
func LoadRawImage(path string) (*RawImage, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpeg", ".jpg", ".png":
	default:
		return nil, domain.WrapError(domain.ErrFormat, "load raw image",
			fmt.Errorf("unsupported extension %q in %s", ext, filepath.Base(path)))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw image: %w", err)
	}
	defer f.Close()

	decoded, _, err := image.Decode(f)
	if err != nil {
		return nil, domain.WrapError(domain.ErrFormat, "decode raw image", err)
	}
	return NewRawImage(path, decoded)
}

// NewRawImage builds a RawImage from decoded pixels, validating geometry,
// parsing the filename grammar and locating the tissue boundary.
func NewRawImage(path string, decoded image.Image) (*RawImage, error) {
	lat, view, err := ParseViewFileName(path)
	if err != nil {
		return nil, err
	}

	pixels := raster.ToGray(decoded)
	width := pixels.Bounds().Dx()
	height := pixels.Bounds().Dy()

	if height <= width {
		return nil, domain.WrapError(domain.ErrGeometry, "validate raw image",
			fmt.Errorf("expected portrait strip, got %dx%d", width, height))
	}
	aspect := float64(width) / float64(height)
	if aspect <= minAspect || aspect >= maxAspect {
		return nil, domain.WrapError(domain.ErrGeometry, "validate raw image",
			fmt.Errorf("aspect ratio %.3f outside (%.1f, %.1f)", aspect, minAspect, maxAspect))
	}

	whiteStart, err := findWhiteStart(pixels)
	if err != nil {
		return nil, err
	}

	return &RawImage{
		Path:       path,
		Laterality: lat,
		View:       view,
		Width:      width,
		Height:     height,
		Pixels:     pixels,
		WhiteStart: whiteStart,
	}, nil
}

// Key returns the "<laterality>_<view>" identity of this image.
func (r *RawImage) Key() string {
	return domain.ViewKey(r.Laterality, r.View)
}

// ParseViewFileName extracts laterality and view from the last two
// underscore separated stem tokens of a file name.
func ParseViewFileName(path string) (domain.Laterality, domain.View, error) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.Split(stem, "_")
	if len(parts) < 2 {
		return "", "", domain.WrapError(domain.ErrFormat, "parse view file name",
			fmt.Errorf("need at least two underscore tokens in %q", base))
	}

	var lat domain.Laterality
	switch parts[len(parts)-2] {
	case "l":
		lat = domain.LateralityLeft
	case "r":
		lat = domain.LateralityRight
	default:
		return "", "", domain.WrapError(domain.ErrFormat, "parse view file name",
			fmt.Errorf("unknown laterality token %q in %q", parts[len(parts)-2], base))
	}

	var view domain.View
	switch parts[len(parts)-1] {
	case "Sag":
		view = domain.ViewSagittal
	case "Ax":
		view = domain.ViewAxial
	default:
		return "", "", domain.WrapError(domain.ErrFormat, "parse view file name",
			fmt.Errorf("unknown view token %q in %q", parts[len(parts)-1], base))
	}
	return lat, view, nil
}

// SubtractedViewFileName names a rendered subtraction projection so the
// filename grammar parses it back: "sub_<l|r>_<Sag|Ax>.jpeg".
func SubtractedViewFileName(lat domain.Laterality, view domain.View) (string, error) {
	var latToken string
	switch lat {
	case domain.LateralityLeft:
		latToken = "l"
	case domain.LateralityRight:
		latToken = "r"
	default:
		return "", domain.WrapError(domain.ErrUnknownView, "name subtracted view",
			fmt.Errorf("no filename token for laterality %q", lat))
	}

	var viewToken string
	switch view {
	case domain.ViewSagittal:
		viewToken = "Sag"
	case domain.ViewAxial:
		viewToken = "Ax"
	default:
		return "", domain.WrapError(domain.ErrUnknownView, "name subtracted view",
			fmt.Errorf("no filename token for view %q", view))
	}
	return fmt.Sprintf("sub_%s_%s.jpeg", latToken, viewToken), nil
}

// findWhiteStart scans rows top to bottom and returns the first whose mean
// intensity over the central horizontal third exceeds the white threshold.
func findWhiteStart(pixels *image.Gray) (int, error) {
	w := pixels.Bounds().Dx()
	h := pixels.Bounds().Dy()
	x0 := w / 3
	x1 := 2 * w / 3
	for y := 0; y < h; y++ {
		if raster.RowMean(pixels, y, x0, x1) > whiteThreshold {
			return y, nil
		}
	}
	return 0, domain.WrapError(domain.ErrNoTissue, "find white start",
		fmt.Errorf("no row above threshold %.0f in %d rows", whiteThreshold, h))
}

// marginFor converts an image height into the crop safety margin.
func marginFor(height int) int {
	return int(math.Round(float64(height) * cropMarginRatio))
}
