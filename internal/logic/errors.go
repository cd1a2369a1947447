package logic

import (
	"errors"
	"fmt"
)

// ErrUnknownPin is wrapped in an EventError when an edge arrives for a pin
// the controller does not own.
var ErrUnknownPin = errors.New("unknown pin")

// StartupError is fatal: the process cannot run without the resource.
type StartupError struct {
	Op  string
	Err error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup: %s: %v", e.Op, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// EventError is contained to the handling of a single edge.
type EventError struct {
	Pin int
	Op  string
	Err error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("pin %d: %s: %v", e.Pin, e.Op, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}

// AsError is errors.As with the target type as a type parameter.
func AsError[T error](err error) (T, bool) {
	var target T
	return target, errors.As(err, &target)
}

// IsFatal reports whether err carries a StartupError.
func IsFatal(err error) bool {
	_, ok := AsError[*StartupError](err)
	return ok
}
