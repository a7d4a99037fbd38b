package models

import (
	"errors"
	"strings"
)

// Shared error kinds. Every package wraps one of these so the HTTP layer can
// classify failures with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrEngine       = errors.New("engine failure")
	ErrUpstream     = errors.New("upstream request failed")
)

// Message strips the sentinel prefix from a wrapped error so the client sees
// only the descriptive part, e.g. "URL is required".
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, sentinel := range []error{ErrInvalidInput, ErrNotFound, ErrEngine, ErrUpstream} {
		if prefix := sentinel.Error() + ": "; strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}
