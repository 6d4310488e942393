package raster

import "fmt"

// Axis selects the reduction axis of a volume projection.
type Axis int

const (
	AxisSlices Axis = iota
	AxisRows
	AxisCols
)

// Volume is a slice-major signed 3-D stack indexed [slice][row][col].
type Volume struct {
	Slices, Rows, Cols int
	Data               []int32
}

func NewVolume(slices, rows, cols int) *Volume {
	return &Volume{
		Slices: slices,
		Rows:   rows,
		Cols:   cols,
		Data:   make([]int32, slices*rows*cols),
	}
}

func (v *Volume) At(s, r, c int) int32 {
	return v.Data[(s*v.Rows+r)*v.Cols+c]
}

func (v *Volume) Set(s, r, c int, val int32) {
	v.Data[(s*v.Rows+r)*v.Cols+c] = val
}

// ShapeString renders the shape for error messages.
func (v *Volume) ShapeString() string {
	return fmt.Sprintf("%dx%dx%d", v.Slices, v.Rows, v.Cols)
}

// SameShape reports whether both volumes have identical dimensions.
func (v *Volume) SameShape(o *Volume) bool {
	return v.Slices == o.Slices && v.Rows == o.Rows && v.Cols == o.Cols
}

// SetSlice copies a rows x cols matrix into slice index s.
func (v *Volume) SetSlice(s int, m *Mat) {
	copy(v.Data[s*v.Rows*v.Cols:(s+1)*v.Rows*v.Cols], m.Data)
}

// Slice copies out the rows x cols matrix at slice index s.
func (v *Volume) Slice(s int) *Mat {
	out := NewMat(v.Rows, v.Cols)
	copy(out.Data, v.Data[s*v.Rows*v.Cols:(s+1)*v.Rows*v.Cols])
	return out
}

// SubColumns copies the column band [c0, c1) across all slices and rows.
func (v *Volume) SubColumns(c0, c1 int) *Volume {
	out := NewVolume(v.Slices, v.Rows, c1-c0)
	for s := 0; s < v.Slices; s++ {
		for r := 0; r < v.Rows; r++ {
			for c := c0; c < c1; c++ {
				out.Set(s, r, c-c0, v.At(s, r, c))
			}
		}
	}
	return out
}

// MaxAlong collapses the volume with a per-ray maximum over the given
// axis. Result orientation: AxisSlices -> rows x cols, AxisRows ->
// slices x cols, AxisCols -> slices x rows.
func (v *Volume) MaxAlong(axis Axis) *Mat {
	switch axis {
	case AxisSlices:
		out := NewMat(v.Rows, v.Cols)
		for r := 0; r < v.Rows; r++ {
			for c := 0; c < v.Cols; c++ {
				best := v.At(0, r, c)
				for s := 1; s < v.Slices; s++ {
					if val := v.At(s, r, c); val > best {
						best = val
					}
				}
				out.Set(r, c, best)
			}
		}
		return out
	case AxisRows:
		out := NewMat(v.Slices, v.Cols)
		for s := 0; s < v.Slices; s++ {
			for c := 0; c < v.Cols; c++ {
				best := v.At(s, 0, c)
				for r := 1; r < v.Rows; r++ {
					if val := v.At(s, r, c); val > best {
						best = val
					}
				}
				out.Set(s, c, best)
			}
		}
		return out
	default:
		out := NewMat(v.Slices, v.Rows)
		for s := 0; s < v.Slices; s++ {
			for r := 0; r < v.Rows; r++ {
				best := v.At(s, r, 0)
				for c := 1; c < v.Cols; c++ {
					if val := v.At(s, r, c); val > best {
						best = val
					}
				}
				out.Set(s, r, best)
			}
		}
		return out
	}
}
