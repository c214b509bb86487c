package entity

import "errors"

// Sentinel errors for entity operations. Use errors.Is to test for them.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrExists indicates an entity with the same ID already exists.
	ErrExists = errors.New("entity already exists")

	// ErrInvalidKind indicates an unknown entity kind.
	ErrInvalidKind = errors.New("invalid entity kind")

	// ErrInvalidEntity indicates the entity failed validation.
	ErrInvalidEntity = errors.New("invalid entity")
)
