// Package diagnostic defines the user-facing diagnostics produced while
// parsing and analyzing a compile unit. Diagnostics are data: they are
// accumulated in a List and returned to the caller, never thrown.
package diagnostic

import (
	"fmt"

	"github.com/calpha-lang/calpha/internal/position"
)

// Level represents the severity of a diagnostic. The numeric values match
// the editor protocol's DiagnosticSeverity.
type Level int

const (
	Error Level = iota + 1
	Warning
	Info
	Hint
)

func (l Level) String() string {
	switch l {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	case Hint:
		return "hint"
	default:
		return "unknown"
	}
}

// Code identifies the kind of problem.
type Code string

const (
	SyntaxError Code = "E0001"

	UnknownType          Code = "E0101"
	DuplicateDeclaration Code = "E0102"
	UndeclaredIdentifier Code = "E0103"
	NotAssignable        Code = "E0104"
	TypeMismatch         Code = "E0105"
	InvalidVariableType  Code = "E0106"
	InvalidOperand       Code = "E0107"
	ArityMismatch        Code = "E0108"
	NotIndexable         Code = "E0109"
	NonIntegerIndex      Code = "E0110"
	NotALayout           Code = "E0111"
	UnknownMember        Code = "E0112"
	NotANamespace        Code = "E0113"
	InvalidCast          Code = "E0114"
	RecursiveLayout      Code = "E0115"
	InvalidSyscall       Code = "E0116"
	NonBooleanCondition  Code = "E0117"
	ReturnValueMismatch  Code = "E0118"
	ReturnOutsideFunc    Code = "E0119"
	MissingReturn        Code = "E0120"
	MisplacedStatement   Code = "E0121"
	TooManyParameters    Code = "E0122"
	AggregateByValue     Code = "E0123"
	InvalidMain          Code = "E0124"
	NotCallable          Code = "E0125"
	ImportFailed         Code = "E0126"

	UnusedVariable Code = "W0201"
)

// RelatedInformation points at another location relevant to a diagnostic,
// such as a previous declaration.
type RelatedInformation struct {
	Message string
	Range   position.Range
}

// Diagnostic represents a single diagnostic message.
type Diagnostic struct {
	Level   Level
	Code    Code
	Message string
	Range   position.Range
	Related []RelatedInformation
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s[%s]: %s", d.Range.Start, d.Level, d.Code, d.Message)
}

// List is an ordered collection of diagnostics. Order is emission order.
type List []Diagnostic

// Add appends a diagnostic.
func (l *List) Add(d Diagnostic) { *l = append(*l, d) }

// Errorf appends an error-level diagnostic.
func (l *List) Errorf(code Code, rng position.Range, format string, args ...any) *Diagnostic {
	*l = append(*l, Diagnostic{Level: Error, Code: code, Range: rng, Message: fmt.Sprintf(format, args...)})
	return &(*l)[len(*l)-1]
}

// Warnf appends a warning-level diagnostic.
func (l *List) Warnf(code Code, rng position.Range, format string, args ...any) *Diagnostic {
	*l = append(*l, Diagnostic{Level: Warning, Code: code, Range: rng, Message: fmt.Sprintf(format, args...)})
	return &(*l)[len(*l)-1]
}

// HasErrors reports whether any diagnostic has error level.
func (l List) HasErrors() bool {
	for _, d := range l {
		if d.Level == Error {
			return true
		}
	}
	return false
}

// Errors returns the error-level diagnostics.
func (l List) Errors() List { return l.filter(Error) }

// Warnings returns the warning-level diagnostics.
func (l List) Warnings() List { return l.filter(Warning) }

func (l List) filter(level Level) List {
	var out List
	for _, d := range l {
		if d.Level == level {
			out = append(out, d)
		}
	}
	return out
}

// WithCode returns the diagnostics carrying the given code.
func (l List) WithCode(code Code) List {
	var out List
	for _, d := range l {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// Err returns an error summarizing the list, or nil if it holds no errors.
func (l List) Err() error {
	errs := l.Errors()
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%s", errs[0])
	}
	return fmt.Errorf("%s (and %d more errors)", errs[0], len(errs)-1)
}
