package domain

import "errors"

// ErrConflict is wrapped by repositories when a write hits a unique constraint.
var ErrConflict = errors.New("unique constraint conflict")
