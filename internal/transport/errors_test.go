package transport

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/domain/project"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{item.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{project.ErrProjectNotFound, http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("line 3: %w", item.ErrInvalidNumber), http.StatusBadRequest, "INVALID_NUMBER"},
		{item.ErrValidationFailed, http.StatusBadRequest, "VALIDATION_FAILED"},
		{item.ErrDuplicateInBatch, http.StatusConflict, "DUPLICATE_IN_BATCH"},
		{project.ErrProjectExists, http.StatusConflict, "PROJECT_EXISTS"},
		{fmt.Errorf("%w: %w", item.ErrRegistryCorruption, item.ErrStorageIO), http.StatusInternalServerError, "REGISTRY_CORRUPTION"},
		{item.ErrStorageIO, http.StatusInternalServerError, "STORAGE_IO"},
		{access.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{access.ErrInvalidRole, http.StatusBadRequest, "INVALID_INPUT"},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, "TOO_LARGE"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := StatusFor(tt.err)
			require.Equal(t, tt.status, status)
			require.Equal(t, tt.code, code)
		})
	}
}
