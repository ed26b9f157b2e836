package analysis

import "fmt"

// TimeoutError names the requested depth in the message surfaced to the
// caller; the wrapped error stays uci.ErrTimeout for status mapping.
type TimeoutError struct {
	Depth int
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Analysis exceeded time limit (depth=%d).", e.Depth)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
