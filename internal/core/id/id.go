// Package id provides UUIDv7 generation for all inventory entities.
// UUIDv7 is time-ordered, so movement ids sort by creation time.
package id

import (
	"github.com/google/uuid"

	"retailstock/internal/core/apperror"
)

// ID is a type alias for UUID, used across all entities.
type ID = uuid.UUID

// New generates a new UUIDv7 (time-ordered UUID).
func New() ID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// ParseField parses s as the value of the named request field and returns a
// validation error that names the field on failure.
func ParseField(field, s string) (ID, error) {
	v, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, apperror.NewValidation("invalid " + field).
			WithDetail("field", field).
			WithDetail("value", s)
	}
	return v, nil
}

// ParseOptional parses s, returning nil for an empty string.
func ParseOptional(field, s string) (*ID, error) {
	if s == "" {
		return nil, nil
	}
	v, err := ParseField(field, s)
	if err != nil {
		return nil, err
	}
	return &v, nil
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
func IsNil(id ID) bool {
	return id == uuid.Nil
}

// Compare orders ids bytewise; used to lock stock keys in a stable order.
func Compare(a, b ID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
