package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/domain/project"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
	cause        error
}

func (e *APIError) Error() string {
	if e.RecoveryHint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// MapError maps domain errors to MCP error codes. Unknown errors map to
// INTERNAL without exposing their text.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	mapped := &APIError{Message: err.Error(), cause: err}
	switch {
	case errors.Is(err, access.ErrUnauthorized):
		mapped.Code = "UNAUTHORIZED"
	case errors.Is(err, access.ErrForbidden):
		mapped.Code, mapped.RecoveryHint = "FORBIDDEN", "Use a token with a higher role"
	case errors.Is(err, item.ErrRegistryCorruption):
		mapped.Code, mapped.RecoveryHint = "REGISTRY_CORRUPTION", "Run renumber_items to repair"
	case errors.Is(err, item.ErrNotFound), errors.Is(err, project.ErrProjectNotFound):
		mapped.Code, mapped.RecoveryHint = "NOT_FOUND", "Check the project key and item id"
	case errors.Is(err, item.ErrInvalidNumber):
		mapped.Code, mapped.RecoveryHint = "INVALID_NUMBER", "Use a positive integer"
	case errors.Is(err, item.ErrValidationFailed), errors.Is(err, project.ErrInvalidInput):
		mapped.Code = "VALIDATION_FAILED"
	case errors.Is(err, item.ErrDuplicateInBatch):
		mapped.Code, mapped.RecoveryHint = "DUPLICATE_IN_BATCH", "Fix the table; nothing was imported"
	case errors.Is(err, project.ErrProjectExists):
		mapped.Code = "PROJECT_EXISTS"
	case errors.Is(err, item.ErrStorageIO):
		mapped.Code, mapped.RecoveryHint = "STORAGE_IO", "Retry later"
	default:
		mapped.Code, mapped.Message = "INTERNAL", "internal error"
	}
	return mapped
}
