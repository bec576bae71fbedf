package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/domain/project"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errBadRequest = errors.New("bad request")

// StatusFor maps a service error to an HTTP status and a stable code.
func StatusFor(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "TOO_LARGE"
	case errors.Is(err, access.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, item.ErrRegistryCorruption):
		return http.StatusInternalServerError, "REGISTRY_CORRUPTION"
	case errors.Is(err, item.ErrNotFound), errors.Is(err, project.ErrProjectNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, item.ErrInvalidNumber):
		return http.StatusBadRequest, "INVALID_NUMBER"
	case errors.Is(err, item.ErrValidationFailed):
		return http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, item.ErrDuplicateInBatch):
		return http.StatusConflict, "DUPLICATE_IN_BATCH"
	case errors.Is(err, project.ErrProjectExists):
		return http.StatusConflict, "PROJECT_EXISTS"
	case errors.Is(err, project.ErrInvalidInput),
		errors.Is(err, access.ErrInvalidRole),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, item.ErrStorageIO):
		return http.StatusInternalServerError, "STORAGE_IO"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		if code == "REGISTRY_CORRUPTION" {
			logger.Error("registry corruption", "error", err)
		} else {
			logger.Error("request failed", "error", err)
		}
		if code == "INTERNAL" {
			msg = "internal error"
		}
	}
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
