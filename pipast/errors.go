package pipast

import (
	"errors"
	"fmt"
)

var (
	ErrUnresolved         = errors.New("unresolved reference")
	ErrUnimplemented      = errors.New("unimplemented")
	ErrKindMismatch       = errors.New("match kind mismatch")
	ErrNoEntry            = errors.New("no entry table")
	ErrBadOperand         = errors.New("bad operand")
	ErrTerminatorPosition = errors.New("terminator is not the last action")
	ErrMissNotLast        = errors.New("miss rule is not the last rule")
	ErrDuplicateTable     = errors.New("duplicate table name")
)

// LoadError is returned when a program cannot be loaded.
type LoadError struct {
	// Decl is the name of the declaration containing the problem.
	Decl string
	// Rule is the index of the rule containing the problem, or -1.
	Rule  int
	Cause error
}

func (e LoadError) Error() string {
	if e.Rule < 0 {
		return fmt.Sprintf("%s: %v", e.Decl, e.Cause)
	}
	return fmt.Sprintf("%s rule %d: %v", e.Decl, e.Rule, e.Cause)
}

func (e LoadError) Unwrap() error {
	return e.Cause
}
