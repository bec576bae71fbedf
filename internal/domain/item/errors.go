package item

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the item or its project doesn't exist.
	ErrNotFound = errors.New("item not found")
	// ErrInvalidNumber indicates a number outside 1..MaxNumber.
	ErrInvalidNumber = errors.New("invalid item number")
	// ErrValidationFailed indicates missing fields or a malformed import.
	ErrValidationFailed = errors.New("validation failed")
	// ErrDuplicateInBatch indicates an import that repeats or collides on a number.
	ErrDuplicateInBatch = errors.New("duplicate number in import")
	// ErrStorageIO indicates the store or filesystem failed.
	ErrStorageIO = errors.New("storage failure")
	// ErrRegistryCorruption indicates two items share a number, or a shift never settled.
	ErrRegistryCorruption = errors.New("registry corruption")
)

// storageError wraps err so it matches both ErrStorageIO and the cause.
func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageIO, err)
}
