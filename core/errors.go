package mal

import (
	"errors"
	"fmt"
)

// ErrEndOfInput is returned by the reader when a form was expected but the
// token stream ran out.
var ErrEndOfInput = errors.New("end of input")

// ErrMacroApplication is returned when a macro value reaches ordinary
// application, e.g. ((macro* (x) x) 1).
var ErrMacroApplication = errors.New("macro cannot be applied as a function")

// UnbalancedError reports a list or string opened at Pos and never closed.
// A line-oriented front end treats it as a request for more input.
type UnbalancedError struct {
	Delim string
	Pos   int
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("unbalanced %s opened at position %d", e.Delim, e.Pos)
}

// IsIncomplete reports whether err means the input so far is a valid prefix.
func IsIncomplete(err error) bool {
	var ue *UnbalancedError
	return errors.As(err, &ue)
}

type UndefinedSymbolError struct {
	Name string
}

func (e *UndefinedSymbolError) Error() string {
	return fmt.Sprintf("undefined symbol: %s", e.Name)
}

type InvalidTypeError struct {
	Expected string
	Actual   Value
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("invalid type: expected %s, got %s %s", e.Expected, e.Actual.KindName(), e.Actual.String())
}

// LengthMismatchError covers both special-form arity and parameter/argument
// count violations.
type LengthMismatchError struct {
	Context  string
	Expected string
	Got      int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %d", e.Context, e.Expected, e.Got)
}

type NotAFunctionError struct {
	Value Value
}

func (e *NotAFunctionError) Error() string {
	return fmt.Sprintf("not a function: %s", e.Value.String())
}

// ThrowError carries the payload of a user-raised throw.
type ThrowError struct {
	Payload string
}

func (e *ThrowError) Error() string {
	return fmt.Sprintf("thrown: %s", e.Payload)
}
