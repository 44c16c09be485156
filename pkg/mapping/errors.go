package mapping

import (
	"errors"
	"fmt"
)

var (
	// ErrNoHandler is returned when an export names a handler that was never
	// registered.
	ErrNoHandler = errors.New("no handler registered")

	// ErrContextDone is the panic value when a Context is used after its
	// invocation returned.
	ErrContextDone = errors.New("mapping context used after its handler returned")
)

// HandlerError reports a failed handler invocation. The host has already been
// told through env.abort.
type HandlerError struct {
	Handler string
	File    string
	Line    uint32
	Panic   bool
	Err     error
}

func (e *HandlerError) Error() string {
	if e.Panic {
		return fmt.Sprintf("handler '%s' panicked at %s:%d: %v", e.Handler, e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("handler '%s' failed: %v", e.Handler, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError carries a recovered panic value that was not an error.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprint(e.Value)
}
