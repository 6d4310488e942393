package labelstudio

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image/png"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/mammoai/mammoannotator/internal/core/domain"
)

// parseMaskArchive unpacks a BRUSH_TO_PNG export. Entries are named
// task-<task>-annotation-<annotation>-by-<user>-tag-<label>-<serial>.png;
// the label may itself contain hyphens, so it is rebuilt from everything
// between the tag marker and the trailing serial.
func parseMaskArchive(archive []byte) ([]domain.BrushMask, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open mask archive: %w", err)
	}

	masks := make([]domain.BrushMask, 0, len(reader.File))
	for _, file := range reader.File {
		if file.FileInfo().IsDir() || !strings.HasSuffix(file.Name, ".png") {
			continue
		}

		mask, err := parseMaskName(path.Base(file.Name))
		if err != nil {
			return nil, err
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open mask entry %s: %w", file.Name, err)
		}
		img, err := png.Decode(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("decode mask entry %s: %w", file.Name, err)
		}
		mask.Mask = img
		masks = append(masks, mask)
	}

	sort.Slice(masks, func(i, j int) bool {
		if masks[i].LSTaskID != masks[j].LSTaskID {
			return masks[i].LSTaskID < masks[j].LSTaskID
		}
		if masks[i].LSAnnotationID != masks[j].LSAnnotationID {
			return masks[i].LSAnnotationID < masks[j].LSAnnotationID
		}
		if masks[i].Label != masks[j].Label {
			return masks[i].Label < masks[j].Label
		}
		return masks[i].Serial < masks[j].Serial
	})
	return masks, nil
}

func parseMaskName(name string) (domain.BrushMask, error) {
	base := strings.TrimSuffix(name, ".png")
	parts := strings.Split(base, "-")
	if len(parts) < 4 || parts[0] != "task" || parts[2] != "annotation" {
		return domain.BrushMask{}, fmt.Errorf("unexpected mask entry name %q", name)
	}

	taskID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return domain.BrushMask{}, fmt.Errorf("mask entry %q: bad task id: %w", name, err)
	}
	annotationID, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return domain.BrushMask{}, fmt.Errorf("mask entry %q: bad annotation id: %w", name, err)
	}

	tagIdx := -1
	for i := 4; i < len(parts); i++ {
		if parts[i] == "tag" {
			tagIdx = i
			break
		}
	}
	if tagIdx < 0 || tagIdx == len(parts)-1 {
		return domain.BrushMask{}, fmt.Errorf("mask entry %q: no label segment", name)
	}

	labelParts := parts[tagIdx+1:]
	serial := 0
	if len(labelParts) > 1 {
		if n, err := strconv.Atoi(labelParts[len(labelParts)-1]); err == nil {
			serial = n
			labelParts = labelParts[:len(labelParts)-1]
		}
	}

	return domain.BrushMask{
		LSTaskID:       taskID,
		LSAnnotationID: annotationID,
		Label:          strings.Join(labelParts, "-"),
		Serial:         serial,
	}, nil
}
