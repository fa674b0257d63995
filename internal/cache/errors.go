package cache

import "errors"

var (
	// ErrNotFound is returned by GetTopicUUID when no topic matches.
	ErrNotFound = errors.New("cache: topic not found")

	// ErrTransientIO marks a Redis round-trip failure the caller should
	// retry rather than treat as fatal (session-level, not startup).
	ErrTransientIO = errors.New("cache: transient I/O error")

	// ErrFatalIO marks a cache connection failure discovered at startup.
	ErrFatalIO = errors.New("cache: fatal I/O error")
)
