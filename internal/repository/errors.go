package repository

import "errors"

var (
	// ErrVersionConflict reports a lost compare-and-swap on a versioned row.
	ErrVersionConflict = errors.New("version conflict")
	// ErrAlreadyExists reports an insert colliding with an existing identifier.
	ErrAlreadyExists = errors.New("already exists")
	// ErrPendingRequestExists reports a second pending coach change request for one student.
	ErrPendingRequestExists = errors.New("student already has a pending coach change request")
)
