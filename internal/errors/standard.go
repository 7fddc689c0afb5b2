// Package errors defines the compiler's internal error kind.
//
// An InternalError reports a broken invariant inside the compiler itself
// (an unresolved type reaching code generation, a register pool underflow, a
// misaligned frame offset). It never describes a problem in the user's
// program; those are reported as diagnostics.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// Component names the compiler stage that detected the violation
type Component string

const (
	ComponentLayout   Component = "LAYOUT"
	ComponentRegalloc Component = "REGALLOC"
	ComponentCodegen  Component = "CODEGEN"
	ComponentSema     Component = "SEMA"
)

// InternalError provides a consistent format for invariant violations
type InternalError struct {
	Component Component
	Message   string
	Caller    string
}

// Error implements the error interface
func (e *InternalError) Error() string {
	return fmt.Sprintf("internal compiler error [%s] %s (caller: %s)", e.Component, e.Message, e.Caller)
}

// Internal creates a new internal error, recording the calling function.
func Internal(component Component, format string, args ...any) *InternalError {
	pc, _, _, ok := runtime.Caller(1)
	caller := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &InternalError{
		Component: component,
		Message:   fmt.Sprintf(format, args...),
		Caller:    caller,
	}
}

// IsInternal reports whether err wraps an *InternalError.
func IsInternal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}

// Recover converts a panic carrying an *InternalError into *errp. Any other
// panic value is re-raised. It must be called directly by a deferred
// function.
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*InternalError); ok {
		*errp = ie
		return
	}
	panic(r)
}
