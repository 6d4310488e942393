package raster

import (
	"image"
	"image/color"
)

// Mat is a row-major signed 2-D matrix. Signedness matters twice: series
// subtraction must keep negative differences, and annotation masks decoded
// from RGBA carry a negative sentinel for opaque pixels.
type Mat struct {
	Rows, Cols int
	Data       []int32
}

func NewMat(rows, cols int) *Mat {
	return &Mat{Rows: rows, Cols: cols, Data: make([]int32, rows*cols)}
}

func (m *Mat) At(r, c int) int32     { return m.Data[r*m.Cols+c] }
func (m *Mat) Set(r, c int, v int32) { m.Data[r*m.Cols+c] = v }

func (m *Mat) Clone() *Mat {
	out := NewMat(m.Rows, m.Cols)
	copy(out.Data, m.Data)
	return out
}

// Rotate90 rotates counter-clockwise by the given number of quarter turns
// (taken mod 4, negatives allowed).
func (m *Mat) Rotate90(turns int) *Mat {
	turns = ((turns % 4) + 4) % 4
	out := m.Clone()
	for i := 0; i < turns; i++ {
		out = out.rotateOnce()
	}
	return out
}

func (m *Mat) rotateOnce() *Mat {
	out := NewMat(m.Cols, m.Rows)
	for i := 0; i < m.Cols; i++ {
		for j := 0; j < m.Rows; j++ {
			out.Set(i, j, m.At(j, m.Cols-1-i))
		}
	}
	return out
}

// FlipH reverses the column order of every row.
func (m *Mat) FlipH() *Mat {
	out := NewMat(m.Rows, m.Cols)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			out.Set(r, m.Cols-1-c, m.At(r, c))
		}
	}
	return out
}

// FlipV reverses the row order.
func (m *Mat) FlipV() *Mat {
	out := NewMat(m.Rows, m.Cols)
	for r := 0; r < m.Rows; r++ {
		copy(out.Data[(m.Rows-1-r)*m.Cols:(m.Rows-r)*m.Cols], m.Data[r*m.Cols:(r+1)*m.Cols])
	}
	return out
}

// ScaleNearest resizes with nearest-neighbor sampling. Mask inversion uses
// it so resized masks contain only values present in the input.
func (m *Mat) ScaleNearest(rows, cols int) *Mat {
	if rows == m.Rows && cols == m.Cols {
		return m.Clone()
	}
	out := NewMat(rows, cols)
	for r := 0; r < rows; r++ {
		sr := r * m.Rows / rows
		for c := 0; c < cols; c++ {
			sc := c * m.Cols / cols
			out.Set(r, c, m.At(sr, sc))
		}
	}
	return out
}

// Region copies the half-open block [r0, r1) x [c0, c1).
func (m *Mat) Region(r0, c0, r1, c1 int) *Mat {
	out := NewMat(r1-r0, c1-c0)
	for r := r0; r < r1; r++ {
		for c := c0; c < c1; c++ {
			out.Set(r-r0, c-c0, m.At(r, c))
		}
	}
	return out
}

// PasteInto writes m into dst with its top-left corner at (rowOff, colOff).
func (m *Mat) PasteInto(dst *Mat, rowOff, colOff int) {
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			dst.Set(rowOff+r, colOff+c, m.At(r, c))
		}
	}
}

// NonZero counts pixels with a non-zero value.
func (m *Mat) NonZero() int {
	n := 0
	for _, v := range m.Data {
		if v != 0 {
			n++
		}
	}
	return n
}

// Gray converts to an 8-bit image, clamping to [0, 255].
func (m *Mat) Gray() *image.Gray {
	out := NewGray(m.Cols, m.Rows)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			v := m.At(r, c)
			if v < 0 {
				v = 0
			}
			if v > 255 {
				v = 255
			}
			out.SetGray(c, r, color.Gray{Y: uint8(v)})
		}
	}
	return out
}

// MatFromGray lifts an 8-bit image into a signed matrix.
func MatFromGray(src *image.Gray) *Mat {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := NewMat(h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(y, x, int32(src.GrayAt(x, y).Y))
		}
	}
	return out
}

// MatFromImage decodes an annotation mask into signed values. Grayscale
// sources keep their intensities. Color sources are packed little-endian
// R | G<<8 | B<<16 | A<<24 and reinterpreted as signed 32-bit, so a fully
// opaque mask pixel comes out negative and an untouched transparent pixel
// stays zero. The inverter treats negative values as annotated.
func MatFromImage(src image.Image) *Mat {
	switch img := src.(type) {
	case *image.Gray:
		return MatFromGray(img)
	case *image.Gray16:
		b := img.Bounds()
		out := NewMat(b.Dy(), b.Dx())
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				out.Set(y, x, int32(img.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
		return out
	default:
		b := src.Bounds()
		out := NewMat(b.Dy(), b.Dx())
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				r, g, bl, a := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
				packed := uint32(r>>8) | uint32(g>>8)<<8 | uint32(bl>>8)<<16 | uint32(a>>8)<<24
				out.Set(y, x, int32(packed))
			}
		}
		return out
	}
}
