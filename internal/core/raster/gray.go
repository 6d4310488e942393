// Package raster holds the small pixel-matrix toolkit shared by the crop
// and projection pipelines. Grayscale images are stdlib *image.Gray with a
// tight stride; signed data uses Mat (2-D) and Volume (3-D) over int32.
// Every operation returns a freshly allocated result and never mutates its
// input.
package raster

import (
	"image"

	"golang.org/x/image/draw"
)

// NewGray allocates a w x h grayscale image with stride == width.
func NewGray(w, h int) *image.Gray {
	return image.NewGray(image.Rect(0, 0, w, h))
}

// CloneGray copies src into a tight-stride image.
func CloneGray(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := NewGray(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.SetGray(x, y, src.GrayAt(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// ToGray converts any decoded image to grayscale using the standard
// luminance conversion of the image package.
func ToGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return CloneGray(g)
	}
	b := src.Bounds()
	dst := NewGray(b.Dx(), b.Dy())
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// Rotate90Gray rotates counter-clockwise by the given number of quarter
// turns (taken mod 4). Rotating by 4 turns is the identity.
func Rotate90Gray(src *image.Gray, turns int) *image.Gray {
	turns = ((turns % 4) + 4) % 4
	out := CloneGray(src)
	for i := 0; i < turns; i++ {
		out = rotateOnceGray(out)
	}
	return out
}

// rotateOnceGray is one counter-clockwise quarter turn:
// out[i][j] = src[j][cols-1-i].
func rotateOnceGray(src *image.Gray) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := NewGray(h, w)
	for i := 0; i < w; i++ {
		for j := 0; j < h; j++ {
			out.SetGray(j, i, src.GrayAt(w-1-i, j))
		}
	}
	return out
}

// FlipHGray reverses the column order of every row.
func FlipHGray(src *image.Gray) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := NewGray(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.SetGray(w-1-x, y, src.GrayAt(x, y))
		}
	}
	return out
}

// FlipVGray reverses the row order.
func FlipVGray(src *image.Gray) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := NewGray(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.SetGray(x, h-1-y, src.GrayAt(x, y))
		}
	}
	return out
}

// ScaleGray resizes with bilinear interpolation. Used for view tiles where
// smooth intensity matters.
func ScaleGray(src *image.Gray, w, h int) *image.Gray {
	if src.Bounds().Dx() == w && src.Bounds().Dy() == h {
		return CloneGray(src)
	}
	dst := NewGray(w, h)
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// CropRowsGray copies the row band [y0, y1) at full width.
func CropRowsGray(src *image.Gray, y0, y1 int) *image.Gray {
	w := src.Bounds().Dx()
	out := NewGray(w, y1-y0)
	for y := y0; y < y1; y++ {
		for x := 0; x < w; x++ {
			out.SetGray(x, y-y0, src.GrayAt(x, y))
		}
	}
	return out
}

// RowMean returns the mean intensity of row y over columns [x0, x1).
func RowMean(src *image.Gray, y, x0, x1 int) float64 {
	if x1 <= x0 {
		return 0
	}
	sum := 0
	for x := x0; x < x1; x++ {
		sum += int(src.GrayAt(x, y).Y)
	}
	return float64(sum) / float64(x1-x0)
}
