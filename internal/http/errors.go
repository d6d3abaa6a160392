package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	apperrors "github.com/culturemaker/cmk-api/internal/errors"
)

// statusForError maps service errors onto an HTTP status and a stable error code.
func statusForError(err error) (int, string) {
	switch {
	case apperrors.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case apperrors.IsConflict(err):
		return http.StatusConflict, "conflict"
	case apperrors.IsNotFound(err), errors.Is(err, domainauth.ErrRecordNotFound):
		return http.StatusNotFound, "not_found"
	case apperrors.IsUnauthorized(err), errors.Is(err, domainauth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, domainauth.ErrOrphanedCredential):
		return http.StatusForbidden, "account_not_found"
	case errors.Is(err, domainauth.ErrWrongLoginPage):
		return http.StatusForbidden, "wrong_login_page"
	case domainauth.IsRetryable(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeServiceError writes err as a JSON error. Internal errors are logged and their
// text is not echoed to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code, errCode := statusForError(err)
	field := apperrors.GetField(err)
	if code >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "status", code, "error", err)
		if code == http.StatusInternalServerError {
			err = errors.New(http.StatusText(code))
		}
	}
	WriteError(w, ErrorParams{Code: code, ErrCode: errCode, Err: err, Field: field})
}
