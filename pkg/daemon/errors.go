package daemon

import (
	"errors"
	"fmt"
)

// Sentinel errors of the daemon lifecycle
var (
	ErrInvalidConfig    = errors.New("invalid daemon configuration")
	ErrCycleCancelled   = errors.New("poll cycle cancelled")
	ErrCyclePanicked    = errors.New("poll cycle panicked")
	ErrHTTPServerFailed = errors.New("HTTP server failed")
)

// DaemonError wraps errors with the operation and phase they occurred in
type DaemonError struct {
	Op    string // Operation that failed
	Err   error  // Underlying error
	Phase string // Phase of daemon operation (startup, running, shutdown)
}

func (e *DaemonError) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("daemon %s during %s: %s", e.Op, e.Phase, e.Err)
	}
	return fmt.Sprintf("daemon %s: %s", e.Op, e.Err)
}

func (e *DaemonError) Unwrap() error {
	return e.Err
}

// Is implements the errors.Is interface
func (e *DaemonError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDaemonError creates a new DaemonError with context
func NewDaemonError(op, phase string, err error) *DaemonError {
	return &DaemonError{
		Op:    op,
		Phase: phase,
		Err:   err,
	}
}

// IsRecoverable reports whether the daemon keeps serving after err. A
// cancelled or panicked cycle leaves the previous snapshot published and the
// next cycle starts from scratch.
func IsRecoverable(err error) bool {
	var daemonErr *DaemonError
	if errors.As(err, &daemonErr) {
		return errors.Is(daemonErr.Err, ErrCycleCancelled) || errors.Is(daemonErr.Err, ErrCyclePanicked)
	}
	return false
}
