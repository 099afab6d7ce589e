package provisioning

import "errors"

var (
	// ErrNotFound indicates a required reference row or identity is missing.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates the store rejected a row on a unique constraint.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrCodeFormat indicates an existing employee code could not be parsed.
	ErrCodeFormat = errors.New("employee code format")
	// ErrNotVisible indicates a new identity did not become readable in time.
	ErrNotVisible = errors.New("identity not visible")
)
