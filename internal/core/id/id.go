// Package id provides identifier generation for sessions, items, products and movements.
// Random ids are UUIDv7 (time-ordered); ids derived from a business key are UUIDv5.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// ID is a type alias for UUID, used across all entities.
type ID = uuid.UUID

// keyNamespace scopes key-derived ids to this service.
var keyNamespace = uuid.MustParse("6f1c3c2e-8d0a-4f5e-9b7a-2f4d1e0c9a31")

// New generates a new UUIDv7.
// Time ordering keeps B-tree inserts local and lets lists sort by id.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// FromKey derives a stable id from the given key parts.
// The same parts always produce the same id.
func FromKey(parts ...string) ID {
	return uuid.NewSHA1(keyNamespace, []byte(strings.Join(parts, ":")))
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns zero-value UUID.
func Nil() ID {
	return uuid.Nil
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}
