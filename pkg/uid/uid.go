// Package uid wraps identifier generation so call sites never depend on
// the underlying UUID library directly.
package uid

import "github.com/google/uuid"

// New returns a random identifier in canonical string form.
func New() string {
	return uuid.NewString()
}

// IsValid reports whether id parses as a UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
