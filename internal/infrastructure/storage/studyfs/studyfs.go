// Package studyfs adapts the studies directory tree: study resolution and
// enumeration, view image discovery, and the image/file writes of the
// preparation pipeline. Task URLs are study paths re-rooted under the
// public image server.
package studyfs

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/mri"
)

// jpegQuality matches the quality the view images are produced with;
// mosaics are annotation sources, not diagnostic images.
const jpegQuality = 95

type Store struct {
	root           string
	imageServerURL string
}

func New(root, imageServerURL string) (*Store, error) {
	if root == "" {
		root = "./data/studies"
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve studies root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create studies root: %w", err)
	}
	return &Store{
		root:           abs,
		imageServerURL: strings.TrimRight(imageServerURL, "/"),
	}, nil
}

// Root returns the absolute studies root the store operates on.
func (s *Store) Root() string {
	return s.root
}

// ResolveStudy accepts an absolute study path or a path relative to the
// studies root (typically "<patient>/<study>") and derives the study
// identity from the last two path components.
func (s *Store) ResolveStudy(_ context.Context, pathOrID string) (domain.StudyRef, error) {
	if pathOrID == "" {
		return domain.StudyRef{}, domain.WrapError(domain.ErrInvalidInput, "resolve study",
			fmt.Errorf("empty study path"))
	}

	dir := pathOrID
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.root, dir)
	}
	dir = filepath.Clean(dir)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return domain.StudyRef{}, domain.WrapError(domain.ErrNotFound, "resolve study",
			fmt.Errorf("study directory %s", dir))
	}

	return domain.StudyRef{
		PatientID: filepath.Base(filepath.Dir(dir)),
		StudyID:   filepath.Base(dir),
		StudyDir:  dir,
	}, nil
}

// ListStudies enumerates study directories under dir. Level "study"
// names the directory itself, "patient" its children and "root" its
// grandchildren.
func (s *Store) ListStudies(ctx context.Context, dir, level string) ([]string, error) {
	if dir == "" {
		dir = s.root
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.root, dir)
	}
	dir = filepath.Clean(dir)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, domain.WrapError(domain.ErrNotFound, "list studies",
			fmt.Errorf("directory %s", dir))
	}

	switch level {
	case "study":
		return []string{dir}, nil
	case "patient":
		return subDirs(dir)
	case "root":
		patients, err := subDirs(dir)
		if err != nil {
			return nil, err
		}
		var studies []string
		for _, patient := range patients {
			children, err := subDirs(patient)
			if err != nil {
				return nil, err
			}
			studies = append(studies, children...)
		}
		return studies, nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "list studies",
			fmt.Errorf("unknown level %q (want study, patient or root)", level))
	}
}

func subDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}
	dirs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dirs = append(dirs, filepath.Join(dir, entry.Name()))
	}
	return dirs, nil
}

// ViewImagePaths lists the files in the study directory whose names parse
// as view images; other study files (reports, DICOM folders, crops)
// are ignored.
func (s *Store) ViewImagePaths(_ context.Context, studyDir string) ([]string, error) {
	entries, err := os.ReadDir(studyDir)
	if err != nil {
		return nil, domain.WrapError(domain.ErrNotFound, "list view images",
			fmt.Errorf("read study directory %s: %w", studyDir, err))
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, _, err := mri.ParseViewFileName(entry.Name()); err != nil {
			continue
		}
		paths = append(paths, filepath.Join(studyDir, entry.Name()))
	}
	return paths, nil
}

func (s *Store) EnsureDir(_ context.Context, studyDir string, parts ...string) (string, error) {
	dir := filepath.Join(append([]string{studyDir}, parts...)...)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	return dir, nil
}

func (s *Store) SaveJPEG(_ context.Context, path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("encode jpeg %s: %w", path, err)
	}
	return nil
}

func (s *Store) SavePNG(_ context.Context, path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode png %s: %w", path, err)
	}
	return nil
}

func (s *Store) WriteFile(_ context.Context, path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// TaskURL rewrites a path under the studies root as a URL on the image
// server, with forward slashes regardless of platform.
func (s *Store) TaskURL(imagePath string) (string, error) {
	abs := imagePath
	if !filepath.IsAbs(abs) {
		var err error
		abs, err = filepath.Abs(abs)
		if err != nil {
			return "", fmt.Errorf("resolve image path: %w", err)
		}
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", fmt.Errorf("relativize image path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.WrapError(domain.ErrInvalidInput, "build task url",
			fmt.Errorf("image %s is outside the studies root", imagePath))
	}
	return s.imageServerURL + "/" + filepath.ToSlash(rel), nil
}
