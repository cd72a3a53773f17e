// Package service implements meeting, availability and short link
// operations on top of the repositories.  It owns validation and merge
// rules; storage details stay in the repository package.
package service

import (
	"errors"
	"sort"
	"strings"

	"github.com/iliyamo/datepoll/internal/repository"
)

// ErrNotFound is returned when a meeting or short link does not exist.
var ErrNotFound = repository.ErrNotFound

// ErrLocked is returned when lock enforcement is on and the caller's
// session does not own a locked record.
var ErrLocked = errors.New("participant responses are locked")

// ValidationError captures field level validation issues that callers can
// surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error lists the offending fields in a stable order.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(v.FieldErrors))
	for _, f := range v.fields() {
		msgs = append(msgs, v.FieldErrors[f])
	}
	return strings.Join(msgs, "; ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; !exists {
		v.FieldErrors[field] = message
	}
}

func (v *ValidationError) fields() []string {
	out := make([]string, 0, len(v.FieldErrors))
	for f := range v.FieldErrors {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// orNil returns v as an error only when it holds issues.
func (v *ValidationError) orNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}
