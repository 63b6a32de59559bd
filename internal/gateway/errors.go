package gateway

import (
	"errors"
	"fmt"
	"time"
)

// ErrAuth indicates the backend rejected our credentials. Fatal: the engine
// halts intake and shuts down cleanly when it sees this.
var ErrAuth = errors.New("gateway: authentication failed")

// ErrValidation indicates a local precondition violation (for example an
// empty send). Raised before any backend call is made.
var ErrValidation = errors.New("validation failed")

// ErrStaleWrite indicates an edit or update carried a revision that does
// not exceed the stored one. Dropped and logged, never applied.
var ErrStaleWrite = errors.New("stale write rejected")

// TransientError wraps a network-level failure that is safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient network error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RateLimitedError reports backend throttling. RetryAfter is the server's
// delay hint; zero means none was provided.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// TransferError reports a failed file download or upload. The attachment is
// marked Failed; the user may retry.
type TransferError struct {
	FileID int64
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("file %d transfer failed: %v", e.FileID, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// IsRetryable reports whether the engine should retry the failed call with
// backoff rather than surfacing a Failed status immediately.
func IsRetryable(err error) bool {
	var transient *TransientError
	var limited *RateLimitedError
	return errors.As(err, &transient) || errors.As(err, &limited)
}

// RetryDelayHint extracts the server-provided delay for rate-limited errors,
// or zero when the error carries no hint.
func RetryDelayHint(err error) time.Duration {
	var limited *RateLimitedError
	if errors.As(err, &limited) {
		return limited.RetryAfter
	}
	return 0
}
