package mip

import (
	"strings"
	"testing"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/raster"
)

func TestSubtractComputesSignedDifference(t *testing.T) {
	post := &Series{SourcePath: "ser005", Volume: volumeOf(t, [][][]int32{{{10, 5}}})}
	pre := &Series{SourcePath: "ser002", Volume: volumeOf(t, [][][]int32{{{3, 9}}})}

	sub, err := Subtract(post, pre)
	if err != nil {
		t.Fatalf("Subtract() error = %v", err)
	}
	assertMat(t, sub.Volume.Slice(0), [][]int32{{7, -4}})

	if sub.SourcePath != "ser005 - ser002" {
		t.Fatalf("SourcePath = %q, want %q", sub.SourcePath, "ser005 - ser002")
	}
	if sub.Tags != (SeriesTags{}) || len(sub.SliceTags) != 0 {
		t.Fatalf("subtraction kept acquisition tags: %+v", sub.Tags)
	}
}

func TestSubtractRejectsShapeMismatch(t *testing.T) {
	post := &Series{SourcePath: "ser005", Volume: raster.NewVolume(1, 1, 2)}
	pre := &Series{SourcePath: "ser002", Volume: raster.NewVolume(2, 1, 1)}

	_, err := Subtract(post, pre)
	if !domain.IsKind(err, domain.ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch error, got %v", err)
	}
	for _, shape := range []string{"1x1x2", "2x1x1"} {
		if !strings.Contains(err.Error(), shape) {
			t.Fatalf("error %q does not name shape %s", err, shape)
		}
	}
}

func TestSelectContrastPairOrdersBySeriesNumber(t *testing.T) {
	series := []*Series{
		{SourcePath: "ser007", Tags: SeriesTags{Number: 7}},
		{SourcePath: "ser002", Tags: SeriesTags{Number: 2}},
		{SourcePath: "ser005", Tags: SeriesTags{Number: 5}},
	}

	pre, post, err := SelectContrastPair(series)
	if err != nil {
		t.Fatalf("SelectContrastPair() error = %v", err)
	}
	if pre.Tags.Number != 2 || post.Tags.Number != 7 {
		t.Fatalf("pair = (%d, %d), want (2, 7)", pre.Tags.Number, post.Tags.Number)
	}
	if series[0].Tags.Number != 7 {
		t.Fatal("input order was mutated")
	}
}

func TestSelectContrastPairNeedsTwoSeries(t *testing.T) {
	_, _, err := SelectContrastPair([]*Series{{SourcePath: "ser005"}})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}
