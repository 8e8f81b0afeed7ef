package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sadopc/autotrackr/internal/matcher"
	"github.com/sadopc/autotrackr/internal/store"
)

// ErrInvalidRequest is returned for malformed or incomplete input.
var ErrInvalidRequest = errors.New("invalid request")

// Error kinds reported to boundary callers.
const (
	KindConstraintViolation = "constraint_violation"
	KindNotFound            = "not_found"
	KindInvalidPattern      = "invalid_pattern"
	KindInvalidRequest      = "invalid_request"
	KindMethodNotAllowed    = "method_not_allowed"
	KindInternal            = "internal"
)

// ErrorPayload is the structured error body returned to callers.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e ErrorPayload) Error() string {
	return e.Kind + ": " + e.Message
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// ErrorStatus maps an error from the core to a status code and payload.
func ErrorStatus(err error) (int, ErrorPayload) {
	switch {
	case errors.Is(err, store.ErrConstraintViolation):
		return http.StatusConflict, ErrorPayload{Kind: KindConstraintViolation, Message: err.Error()}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrorPayload{Kind: KindNotFound, Message: err.Error()}
	case errors.Is(err, matcher.ErrInvalidPattern):
		return http.StatusUnprocessableEntity, ErrorPayload{Kind: KindInvalidPattern, Message: err.Error()}
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, store.ErrInvalidRuleType):
		return http.StatusBadRequest, ErrorPayload{Kind: KindInvalidRequest, Message: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorPayload{Kind: KindInternal, Message: "internal error"}
	}
}
