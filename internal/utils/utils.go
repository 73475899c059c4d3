package utils

import "strings"

func ToPtr[T any](v T) *T {
	return &v
}

func FromPtr[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

// NilIfZero returns nil for the zero value of T.
func NilIfZero[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

// SplitList splits a comma separated flag value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
