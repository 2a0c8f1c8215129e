package ports

import "errors"

var (
	// ErrNotFound is returned by repositories when no entity matches.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by repositories when an insert collides with an existing identity.
	ErrConflict = errors.New("already exists")
)
