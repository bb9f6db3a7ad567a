package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClosed is returned by operations on a store that has been closed.
	ErrClosed = errors.New("store: closed")

	// ErrNotReady is returned when the last initialization attempt failed.
	ErrNotReady = errors.New("store: not ready")
)

// OpenError reports that the backing file could not be opened, migrated or
// compacted.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("store: open %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// CorruptionError marks an error whose message matches a known signature of
// a damaged or unusable backing file.
type CorruptionError struct {
	Signature string
	Err       error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("store corrupted (%s): %v", e.Signature, e.Err)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// malformedPayload is the signature used for rows whose stored JSON no
// longer parses.
const malformedPayload = "malformed persisted JSON"

// corruptionSignatures are matched as substrings of the error message.
var corruptionSignatures = []string{
	"database disk image is malformed",
	"file is not a database",
	"UNIQUE constraint failed",
	malformedPayload,
	"unable to open database file",
	"sql: database is closed",
	"sql: connection is already closed",
}

// DetectCorruption reports whether err carries a storage-corruption
// signature. The returned CorruptionError wraps err.
func DetectCorruption(err error) (*CorruptionError, bool) {
	if err == nil {
		return nil, false
	}
	var ce *CorruptionError
	if errors.As(err, &ce) {
		return ce, true
	}
	msg := err.Error()
	for _, sig := range corruptionSignatures {
		if strings.Contains(msg, sig) {
			return &CorruptionError{Signature: sig, Err: err}, true
		}
	}
	return nil, false
}
