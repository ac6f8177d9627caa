// Package dbxerr defines the error classes shared by the index layers.
//
// Errors are wrapped with context and marked with one of the sentinels
// below, so callers test the class with errors.Is regardless of how much
// context was added on the way up.
package dbxerr

import (
	"os"

	"github.com/cockroachdb/errors"
)

var (
	// ErrFormat reports a malformed or missing parameter block, or a page
	// whose header or checksum does not match what the index expects.
	ErrFormat = errors.New("format error")
	// ErrIO reports an open, read, write, sync or rename failure.
	ErrIO = errors.New("i/o error")
	// ErrAlreadyCompressed is returned when compression is requested on an
	// index that is already compressed.
	ErrAlreadyCompressed = errors.New("index already compressed")
	// ErrNotFound reports a database or index file that does not exist.
	ErrNotFound = errors.New("index not found")
	// ErrReadOnly is returned for mutations through a read-only handle.
	ErrReadOnly = errors.New("index opened read-only")
)

// IO wraps err as an ErrIO.
func IO(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrIO)
}

// Format returns a new ErrFormat with the given message.
func Format(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrFormat)
}

// NotFound wraps err as an ErrNotFound.
func NotFound(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrNotFound)
}

// FromOpen classifies an error returned by os.Open and friends.
func FromOpen(err error, path string) error {
	if os.IsNotExist(err) {
		return NotFound(err, "open %s", path)
	}
	return IO(err, "open %s", path)
}

// ReadOnly returns a new ErrReadOnly with the given message.
func ReadOnly(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrReadOnly)
}
