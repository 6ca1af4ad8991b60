package status

import "errors"

// Kernel syscall status taxonomy. Every syscall failure maps to exactly one
// of these sentinels; callers match with errors.Is.
var (
	// ErrInvalidArgs covers null/zero/oversized inputs and malformed selectors.
	ErrInvalidArgs = errors.New("invalid arguments")

	// ErrBadHandle covers handles that are absent from the caller's table or
	// refer to an object of the wrong type.
	ErrBadHandle = errors.New("bad handle")

	// ErrAccessDenied covers handles whose rights mask does not include a
	// required right.
	ErrAccessDenied = errors.New("access denied")

	// ErrBadState covers objects that exist but are unusable, e.g. a process
	// whose address space has been torn down.
	ErrBadState = errors.New("bad state")

	// ErrNoMemory covers address or object resolution failure: no region at
	// the requested address, or a region with no backing object.
	ErrNoMemory = errors.New("no memory")

	// ErrBufferTooSmall is recoverable: the true required size accompanies it
	// so the caller can retry.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrUnavailable means a best-effort subsystem declined without a precise
	// reason, e.g. the trace ring is full or the probe slot is exhausted.
	ErrUnavailable = errors.New("unavailable")

	// ErrOutOfMemory means a kernel-side scratch allocation failed.
	ErrOutOfMemory = errors.New("out of memory")
)
