package domain

import (
	"errors"
	"fmt"
)

var (
	// Pixel pipeline failures.
	ErrFormat           = errors.New("unsupported or malformed input")
	ErrGeometry         = errors.New("image geometry out of bounds")
	ErrNoTissue         = errors.New("no tissue boundary found")
	ErrBoundaryNotFound = errors.New("no chest boundary found")
	ErrUnknownView      = errors.New("unknown laterality/view combination")
	ErrComposition      = errors.New("invalid mosaic input")

	// Volume pipeline failures.
	ErrShapeMismatch  = errors.New("volume shape mismatch")
	ErrTagConsistency = errors.New("inconsistent series tags")

	// Service and infrastructure failures.
	ErrService      = errors.New("annotation service failure")
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
