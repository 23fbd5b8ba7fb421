package storage

import "errors"

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: immutable object mismatch")
	// ErrNotCanonical is returned when a canonical-only store is handed bytes
	// that are not a canonical message.
	ErrNotCanonical = errors.New("storage: not a canonical message")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsNotCanonical(err error) bool { return errors.Is(err, ErrNotCanonical) }
