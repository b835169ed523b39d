package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/heritage-site/pkg/pastevent"
)

// RetryAfterSeconds is advertised when credential verification is unavailable.
const RetryAfterSeconds = "5"

// ErrorBody is the payload of every error response
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request. Fields is only set for validation
// failures.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Fields  []pastevent.FieldError `json:"fields,omitempty"`
}

// writeError maps err to a status code and error body. Internal details are
// logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := classify(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", RetryAfterSeconds)
	}
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorBody{Error: detail})
}

func classify(err error) (int, ErrorDetail) {
	var authErr *pastevent.AuthError
	var validationErr *pastevent.ValidationError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &authErr):
		switch authErr.Kind {
		case pastevent.CredentialUnavailable:
			return http.StatusServiceUnavailable, ErrorDetail{
				Code:    "verification_unavailable",
				Message: "credential verification is temporarily unavailable, retry shortly",
			}
		case pastevent.CredentialMissing:
			return http.StatusUnauthorized, ErrorDetail{Code: "unauthenticated", Message: "authentication required"}
		default:
			return http.StatusUnauthorized, ErrorDetail{Code: "invalid_credential", Message: "credential rejected"}
		}
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, ErrorDetail{
			Code:    "validation_failed",
			Message: "request validation failed",
			Fields:  validationErr.Fields,
		}
	case errors.Is(err, pastevent.ErrPastEventNotFound):
		return http.StatusNotFound, ErrorDetail{Code: "not_found", Message: "past event not found"}
	case errors.Is(err, pastevent.ErrImageNotFound):
		return http.StatusNotFound, ErrorDetail{Code: "not_found", Message: "image not found"}
	case errors.Is(err, pastevent.ErrSlugConflict):
		return http.StatusConflict, ErrorDetail{Code: "slug_conflict", Message: "slug already exists"}
	case errors.Is(err, pastevent.ErrUnsupportedImageType):
		return http.StatusUnsupportedMediaType, ErrorDetail{Code: "unsupported_media_type", Message: "only jpeg, png, webp and gif images are accepted"}
	case errors.Is(err, pastevent.ErrImageTooLarge), errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge, ErrorDetail{Code: "too_large", Message: "image exceeds 5 MiB"}
	case errors.Is(err, pastevent.ErrInvalidImageKey):
		return http.StatusBadRequest, ErrorDetail{Code: "invalid_filename", Message: "invalid image filename"}
	default:
		return http.StatusInternalServerError, ErrorDetail{Code: "internal", Message: "internal server error"}
	}
}

func badRequest(field, message string) error {
	verr := &pastevent.ValidationError{}
	verr.Add(field, message)
	return verr
}
