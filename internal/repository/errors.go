// Package repository maps meetings, availability records and short links
// onto key-value entries.  Errors returned here are either ErrNotFound or a
// *StoreError; handlers translate the former into 404 and the latter into a
// generic 500.
package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the requested record is absent or expired.
var ErrNotFound = errors.New("not found")

// StoreError reports a backend failure or a stored payload that could not
// be decoded.
type StoreError struct {
	Op  string // get, set, delete, scan, decode, ...
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Key: key, Err: err}
}
