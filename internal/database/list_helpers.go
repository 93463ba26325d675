package database

import "errors"

// ErrNotFound is returned when a requested merge run does not exist.
var ErrNotFound = errors.New("not found")

// IS NULL OR helper: convert an empty string to nil so PostgreSQL sees NULL
// and the ($1::text IS NULL OR ...) pattern skips the filter.
func pqString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
