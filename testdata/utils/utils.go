// Package utils holds small helpers shared by tests.
package utils

// Ptr returns a pointer to v, convenient for optional fields in test
// fixtures.
func Ptr[T any](v T) *T {
	return &v
}
