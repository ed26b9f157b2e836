package uci

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when the engine produces no terminal line for a
	// command within its budget.
	ErrTimeout = errors.New("engine response timeout")

	// ErrEngineCrashed is returned to every waiter when the engine process
	// exits while commands are still pending.
	ErrEngineCrashed = errors.New("engine process exited unexpectedly")
)

// SpawnError wraps a failure to start the engine executable.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start engine %q: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
