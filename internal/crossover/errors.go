package crossover

import (
	"errors"
	"net/http"

	"github.com/CReSIS/OLD-OPS-sub000/internal/geometry"
)

// Error kinds. Every failure returned by this package wraps exactly one.
var (
	ErrUnsupportedLocation = errors.New("unsupported location")
	ErrUnsupportedApp      = errors.New("unsupported app")
	ErrNotFound            = errors.New("not found")
	ErrStore               = errors.New("store error")
	ErrProjection          = geometry.ErrProjection
	ErrConsistency         = errors.New("consistency fault")
	ErrInvalidRequest      = errors.New("invalid request")
)

// MatchingPointPathsMessage is reported when the two sides of an
// inter-segment intersection cannot be paired.
const MatchingPointPathsMessage = "ERROR FINDING MATCHING CROSSOVER POINT PATHS ON INTERSECTING LINES"

// errorKind maps an error to its status code and HTTP status.
func errorKind(err error) (string, int) {
	switch {
	case errors.Is(err, ErrUnsupportedLocation):
		return "unsupported_location", http.StatusBadRequest
	case errors.Is(err, ErrUnsupportedApp):
		return "unsupported_app", http.StatusBadRequest
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request", http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return "not_found", http.StatusNotFound
	case errors.Is(err, ErrConsistency):
		return "consistency_fault", http.StatusConflict
	case errors.Is(err, ErrProjection):
		return "projection_error", http.StatusInternalServerError
	case errors.Is(err, ErrStore):
		return "store_error", http.StatusServiceUnavailable
	default:
		return "internal_error", http.StatusInternalServerError
	}
}
