package httpx

import (
	"errors"
	"net/http"

	"github.com/castellan-platform/castellan/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Permission failures and missing records share the same 403 response so
// the API never reveals whether a protected record exists.
func RespondError(w http.ResponseWriter, err error) {
	var validation *shared.ValidationError
	switch {
	case errors.Is(err, shared.ErrPermissionDenied):
		Problem(w, http.StatusForbidden, "Permission Denied", "")
	case errors.Is(err, shared.ErrLockBusy):
		Problem(w, http.StatusConflict, "Concurrent Operation In Progress", "another moderation action on this user is still running")
	case errors.As(err, &validation):
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: validation.Error(),
			Fields: validation.Fields,
		})
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
