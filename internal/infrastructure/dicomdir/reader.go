// Package dicomdir reads DICOM series from study directories on the
// local filesystem. One series is one study subdirectory holding the
// per-slice .dcm files of a single acquisition stack.
package dicomdir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/mip"
	"github.com/mammoai/mammoannotator/internal/core/raster"
)

const dicomExt = ".dcm"

// Source reads slice stacks with github.com/suyashkumar/dicom and
// assembles them into ordered series volumes.
type Source struct{}

func New() *Source {
	return &Source{}
}

// ListSeriesDirs returns the study subdirectories holding at least one
// .dcm file, in name order. Other subdirectories (crop output, notes)
// are not series and are skipped.
func (s *Source) ListSeriesDirs(_ context.Context, studyDir string) ([]string, error) {
	entries, err := os.ReadDir(studyDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrNotFound, "list series dirs",
				fmt.Errorf("study directory %s", studyDir))
		}
		return nil, fmt.Errorf("list series dirs: %w", err)
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(studyDir, entry.Name())
		hasSlices, err := holdsDicomFiles(dir)
		if err != nil {
			return nil, err
		}
		if hasSlices {
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}

// LoadSeries parses every .dcm file under seriesDir and stacks the
// slices into an ordered volume.
func (s *Source) LoadSeries(ctx context.Context, seriesDir string) (*mip.Series, error) {
	files, err := listDicomFiles(seriesDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, domain.WrapError(domain.ErrFormat, "load series",
			fmt.Errorf("no %s files under %s", dicomExt, seriesDir))
	}

	slices := make([]mip.Slice, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slice, err := loadSlice(path)
		if err != nil {
			return nil, fmt.Errorf("slice %s: %w", filepath.Base(path), err)
		}
		slices = append(slices, slice)
	}
	return mip.NewSeries(seriesDir, slices)
}

func holdsDicomFiles(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("scan series dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), dicomExt) {
			return true, nil
		}
	}
	return false, nil
}

func listDicomFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrNotFound, "load series",
				fmt.Errorf("series directory %s", dir))
		}
		return nil, fmt.Errorf("load series: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), dicomExt) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

func loadSlice(path string) (mip.Slice, error) {
	dataset, err := dicom.ParseFile(path, nil)
	if err != nil {
		return mip.Slice{}, domain.WrapError(domain.ErrFormat, "parse dicom file", err)
	}
	tags, err := sliceTags(dataset)
	if err != nil {
		return mip.Slice{}, err
	}
	pixels, err := slicePixels(dataset)
	if err != nil {
		return mip.Slice{}, err
	}
	return mip.Slice{Tags: tags, Pixels: pixels}, nil
}

// sliceTags collapses the acquisition attributes of one slice. Geometry
// and ordering tags are required; the rest default to zero values except
// rescale slope, whose absence means identity.
func sliceTags(dataset dicom.Dataset) (mip.SliceTags, error) {
	rows, ok := tagInt(dataset, tag.Rows)
	if !ok {
		return mip.SliceTags{}, missingTag("Rows")
	}
	cols, ok := tagInt(dataset, tag.Columns)
	if !ok {
		return mip.SliceTags{}, missingTag("Columns")
	}
	spacingRow, spacingCol, ok := tagFloatPair(dataset, tag.PixelSpacing)
	if !ok {
		return mip.SliceTags{}, missingTag("PixelSpacing")
	}
	location, ok := tagFloat(dataset, tag.SliceLocation)
	if !ok {
		return mip.SliceTags{}, missingTag("SliceLocation")
	}

	tags := mip.SliceTags{
		Rows:            rows,
		Cols:            cols,
		PixelSpacingRow: spacingRow,
		PixelSpacingCol: spacingCol,
		SliceLocation:   location,
		RescaleSlope:    1,
	}
	tags.SeriesDescription, _ = tagString(dataset, tag.SeriesDescription)
	tags.SeriesNumber, _ = tagInt(dataset, tag.SeriesNumber)
	tags.AcquisitionTime, _ = tagString(dataset, tag.AcquisitionTime)
	tags.TriggerTime, _ = tagString(dataset, tag.TriggerTime)
	tags.TemporalPositionID, _ = tagInt(dataset, tag.TemporalPositionIdentifier)
	tags.InstanceNumber, _ = tagInt(dataset, tag.InstanceNumber)
	tags.SliceThickness, _ = tagFloat(dataset, tag.SliceThickness)
	tags.WindowCenter, _ = tagFloat(dataset, tag.WindowCenter)
	tags.WindowWidth, _ = tagFloat(dataset, tag.WindowWidth)
	tags.RescaleIntercept, _ = tagFloat(dataset, tag.RescaleIntercept)
	if slope, ok := tagFloat(dataset, tag.RescaleSlope); ok {
		tags.RescaleSlope = slope
	}
	return tags, nil
}

// slicePixels extracts the single native frame of one slice as a signed
// matrix. Raw stored values are kept: windowing happens downstream from
// volume statistics, not from the modality LUT.
func slicePixels(dataset dicom.Dataset) (*raster.Mat, error) {
	element, err := dataset.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, domain.WrapError(domain.ErrFormat, "read pixel data",
			fmt.Errorf("no PixelData element"))
	}
	info := dicom.MustGetPixelDataInfo(element.Value)
	if info.IsEncapsulated {
		return nil, domain.WrapError(domain.ErrFormat, "read pixel data",
			fmt.Errorf("encapsulated transfer syntax is not supported"))
	}
	if len(info.Frames) != 1 {
		return nil, domain.WrapError(domain.ErrFormat, "read pixel data",
			fmt.Errorf("expected a single-frame slice, got %d frames", len(info.Frames)))
	}
	native, err := info.Frames[0].GetNativeFrame()
	if err != nil {
		return nil, domain.WrapError(domain.ErrFormat, "read pixel data", err)
	}
	return matFromFrame(native)
}

// matFromFrame copies the first sample of every pixel into a signed
// matrix, validating the frame geometry.
func matFromFrame(native *frame.NativeFrame) (*raster.Mat, error) {
	if native.Rows <= 0 || native.Cols <= 0 {
		return nil, domain.WrapError(domain.ErrFormat, "read pixel data",
			fmt.Errorf("frame geometry %dx%d", native.Rows, native.Cols))
	}
	if len(native.Data) != native.Rows*native.Cols {
		return nil, domain.WrapError(domain.ErrFormat, "read pixel data",
			fmt.Errorf("frame holds %d pixels, geometry promises %d",
				len(native.Data), native.Rows*native.Cols))
	}

	m := raster.NewMat(native.Rows, native.Cols)
	for i, samples := range native.Data {
		if len(samples) == 0 {
			return nil, domain.WrapError(domain.ErrFormat, "read pixel data",
				fmt.Errorf("pixel %d has no samples", i))
		}
		m.Data[i] = int32(samples[0])
	}
	return m, nil
}

func missingTag(name string) error {
	return domain.WrapError(domain.ErrFormat, "read dicom tags",
		fmt.Errorf("required tag %s is missing or malformed", name))
}

// tagString returns the first string of an element, trimmed of the
// padding DICOM string values carry.
func tagString(dataset dicom.Dataset, t tag.Tag) (string, bool) {
	element, err := dataset.FindElementByTag(t)
	if err != nil {
		return "", false
	}
	if v, ok := element.Value.GetValue().([]string); ok && len(v) > 0 {
		return strings.TrimSpace(v[0]), true
	}
	return "", false
}

// tagInt reads an integer attribute, accepting both binary (US) and
// integer-string (IS) representations.
func tagInt(dataset dicom.Dataset, t tag.Tag) (int, bool) {
	element, err := dataset.FindElementByTag(t)
	if err != nil {
		return 0, false
	}
	switch v := element.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			return v[0], true
		}
	case []string:
		if len(v) > 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(v[0])); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// tagFloat reads the first value of a numeric attribute, accepting the
// decimal-string (DS) representation MR exports use.
func tagFloat(dataset dicom.Dataset, t tag.Tag) (float64, bool) {
	element, err := dataset.FindElementByTag(t)
	if err != nil {
		return 0, false
	}
	return floatAt(element.Value.GetValue(), 0)
}

// tagFloatPair reads a two-valued numeric attribute such as PixelSpacing.
func tagFloatPair(dataset dicom.Dataset, t tag.Tag) (float64, float64, bool) {
	element, err := dataset.FindElementByTag(t)
	if err != nil {
		return 0, 0, false
	}
	raw := element.Value.GetValue()
	first, ok := floatAt(raw, 0)
	if !ok {
		return 0, 0, false
	}
	second, ok := floatAt(raw, 1)
	if !ok {
		return 0, 0, false
	}
	return first, second, true
}

func floatAt(raw any, idx int) (float64, bool) {
	switch v := raw.(type) {
	case []float64:
		if idx < len(v) {
			return v[idx], true
		}
	case []int:
		if idx < len(v) {
			return float64(v[idx]), true
		}
	case []string:
		if idx < len(v) {
			f, err := strconv.ParseFloat(strings.TrimSpace(v[idx]), 64)
			if err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
