package task

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Common errors returned by the task package.
var (
	// ErrInvalidTask is returned when a task definition cannot be enqueued or run.
	ErrInvalidTask = errors.New("invalid task")

	// ErrDuplicateTask is returned when a name is registered twice.
	ErrDuplicateTask = errors.New("task already registered")

	// ErrTaskNotFound is returned when a name does not resolve to any registry entry.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotATask is returned when a registry entry is not a runnable task definition.
	ErrNotATask = errors.New("not a valid task")

	// ErrUnserializableArgument is returned when an argument cannot be encoded as JSON.
	ErrUnserializableArgument = errors.New("argument is not JSON serializable")

	// ErrInvalidTransition is returned when a result state change would move
	// backwards or skip a required state.
	ErrInvalidTransition = errors.New("invalid task result transition")
)

// TaskError is the structured record of one failed attempt.
type TaskError struct {
	// ExceptionType identifies the category of the failure, e.g. "net/url.Error".
	ExceptionType string `json:"exception_type"`

	// Traceback is the formatted, human-readable failure description.
	Traceback string `json:"traceback"`
}

// PanicError wraps a value recovered from a panicking task body.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// CaptureError formats err into a TaskError. The result depends only on err.
func CaptureError(err error) TaskError {
	if err == nil {
		return TaskError{}
	}

	var b strings.Builder
	depth := 0
	for e := err; e != nil; e = errors.Unwrap(e) {
		if depth == 0 {
			fmt.Fprintf(&b, "%s: %s\n", typePath(e), e.Error())
		} else {
			fmt.Fprintf(&b, "%scaused by %s: %s\n", strings.Repeat("  ", depth), typePath(e), e.Error())
		}
		depth++
	}

	var pe *PanicError
	if errors.As(err, &pe) && len(pe.Stack) > 0 {
		b.WriteString("\n")
		b.Write(pe.Stack)
	}

	return TaskError{
		ExceptionType: typePath(err),
		Traceback:     strings.TrimRight(b.String(), "\n"),
	}
}

// typePath returns the package-qualified name of the dynamic type of v.
func typePath(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}
