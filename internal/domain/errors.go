// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates an invalid state transition for an entity.
var ErrConflict = errors.New("conflict: invalid state transition")

// ErrValidation indicates malformed or missing caller input.
var ErrValidation = errors.New("validation failed")
