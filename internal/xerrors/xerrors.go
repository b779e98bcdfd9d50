package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// withStack carries the call stack captured at creation time so the log
// layer can render it later without re-walking the stack.
type withStack struct {
	err error
	pcs []uintptr
}

func (w *withStack) Error() string       { return w.err.Error() }
func (w *withStack) Unwrap() error       { return w.err }
func (w *withStack) StackPCs() []uintptr { return w.pcs }

func captureStack(skip int) []uintptr {
	const maxDepth = 64
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func stacked(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &withStack{err: err, pcs: captureStack(skip)}
}

// WithStack attaches the current stack to err unless one is already present.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	type hasStack interface{ StackPCs() []uintptr }
	var hs hasStack
	if errors.As(err, &hs) && hs != nil && len(hs.StackPCs()) > 0 {
		return err
	}
	return stacked(err, 2)
}

// wrap annotates an error with a message and the caller's position.
type wrap struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrap) Error() string { return w.msg + ": " + w.err.Error() }
func (w *wrap) Unwrap() error { return w.err }
func (w *wrap) PC() uintptr   { return w.pc }

func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	if n := runtime.Callers(2+skip, pcs[:]); n == 0 {
		return 0
	}
	return pcs[0]
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: msg, pc: callerPC(1)}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: fmt.Sprintf(format, args...), pc: callerPC(1)}
}

func New(msg string) error             { return stacked(errors.New(msg), 2) }
func Newf(f string, args ...any) error { return stacked(fmt.Errorf(f, args...), 2) }
