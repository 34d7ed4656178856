package internal

import (
	"errors"
)

var (
	ErrInvalidIndex = errors.New("invalid chunk index")
	ErrStaleIndex   = errors.New("stale chunk index")
	ErrCorruptChunk = errors.New("chunk content does not match its hash")

	// range fetch failures
	ErrInvalidRange = errors.New("invalid byte range")
	ErrNotFound     = errors.New("source not found")
	ErrShortRead    = errors.New("short read")
	ErrTransport    = errors.New("transport failure")

	ErrLocked = errors.New("sync already running")
)
