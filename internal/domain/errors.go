package domain

import (
	"context"
	"errors"
	"net"
)

// Failure kinds. Callers wrap these with context and test with errors.Is.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrLoadFailure          = errors.New("load failure")
	ErrEmbeddingFailure     = errors.New("embedding failure")
	ErrModelCallFailure     = errors.New("model call failure")
	ErrNotFound             = errors.New("not found")
	ErrCorruptIndex         = errors.New("corrupt index")
	ErrStorageFailure       = errors.New("storage failure")
	ErrTimeout              = errors.New("timeout")
	ErrBusy                 = errors.New("operation already in progress")
)

// IsTimeout reports whether err came from an expired deadline, either the
// caller's context or the transport's own timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
