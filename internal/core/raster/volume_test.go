package raster

import "testing"

// volume layout helper: vals[slice][row][col].
func volumeFrom(vals [][][]int32) *Volume {
	v := NewVolume(len(vals), len(vals[0]), len(vals[0][0]))
	for s := range vals {
		for r := range vals[s] {
			for c := range vals[s][r] {
				v.Set(s, r, c, vals[s][r][c])
			}
		}
	}
	return v
}

func TestVolumeMaxAlongAxes(t *testing.T) {
	v := volumeFrom([][][]int32{
		{
			{1, 8},
			{3, 4},
		},
		{
			{5, 2},
			{7, 6},
		},
	})

	matEquals(t, v.MaxAlong(AxisSlices), [][]int32{
		{5, 8},
		{7, 6},
	})
	matEquals(t, v.MaxAlong(AxisRows), [][]int32{
		{3, 8},
		{7, 6},
	})
	matEquals(t, v.MaxAlong(AxisCols), [][]int32{
		{8, 4},
		{5, 7},
	})
}

func TestVolumeSubColumnsRestrictsLaterality(t *testing.T) {
	v := volumeFrom([][][]int32{
		{
			{1, 2, 3, 4},
			{5, 6, 7, 8},
		},
	})

	right := v.SubColumns(0, 2)
	matEquals(t, right.MaxAlong(AxisSlices), [][]int32{
		{1, 2},
		{5, 6},
	})

	left := v.SubColumns(2, 4)
	matEquals(t, left.MaxAlong(AxisSlices), [][]int32{
		{3, 4},
		{7, 8},
	})
}

func TestVolumeSliceRoundTrip(t *testing.T) {
	v := NewVolume(2, 2, 2)
	m := matFrom([][]int32{
		{9, -3},
		{0, 4},
	})
	v.SetSlice(1, m)
	matEquals(t, v.Slice(1), [][]int32{
		{9, -3},
		{0, 4},
	})
	matEquals(t, v.Slice(0), [][]int32{
		{0, 0},
		{0, 0},
	})
}

func TestVolumeSameShape(t *testing.T) {
	a := NewVolume(1, 2, 3)
	b := NewVolume(1, 2, 3)
	c := NewVolume(2, 2, 3)
	if !a.SameShape(b) {
		t.Fatalf("expected identical shapes to match")
	}
	if a.SameShape(c) {
		t.Fatalf("expected shape mismatch for %s vs %s", a.ShapeString(), c.ShapeString())
	}
}
