package httpadapter

import (
	"net/http"

	"github.com/mammoai/mammoannotator/internal/core/domain"
)

// mapErrorToHTTPStatus translates domain error kinds to response codes.
// Pixel and volume pipeline failures are 422: the request was well formed
// but the study itself cannot be prepared.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrFormat),
		domain.IsKind(err, domain.ErrGeometry),
		domain.IsKind(err, domain.ErrNoTissue),
		domain.IsKind(err, domain.ErrBoundaryNotFound),
		domain.IsKind(err, domain.ErrUnknownView),
		domain.IsKind(err, domain.ErrComposition),
		domain.IsKind(err, domain.ErrShapeMismatch),
		domain.IsKind(err, domain.ErrTagConsistency):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
