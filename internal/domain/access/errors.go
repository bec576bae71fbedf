package access

import "errors"

var (
	// ErrUnauthorized indicates a missing, unknown or expired token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates a valid session without the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidRole indicates an unknown role name.
	ErrInvalidRole = errors.New("invalid role")
)
