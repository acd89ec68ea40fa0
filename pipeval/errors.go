package pipeval

import "fmt"

// Codes for StructuralError
const (
	CodeGotoPending = "goto-pending"
	CodeStepBudget  = "step-budget"
	CodeNoTable     = "no-table"
	CodeBadAction   = "bad-action"
)

// Codes for FieldError
const (
	CodeWidthMismatch = "width-mismatch"
	CodeTooWide       = "too-wide"
	CodeOutOfBounds   = "out-of-bounds"
	CodeKeySource     = "key-source"
	CodeReadOnly      = "read-only"
	CodeBadSpace      = "bad-space"
	CodeBadOperand    = "bad-operand"
	CodeNoMatch       = "no-match"
)

// StructuralError is returned when a program breaks a precondition of the evaluator.
// A program which produces a StructuralError should not be run again.
type StructuralError struct {
	Code  string
	Table string
	Msg   string
}

func (e StructuralError) Error() string {
	return fmt.Sprintf("structural error in table %q (%s): %s", e.Table, e.Code, e.Msg)
}

// FieldError is returned when an action's operands are invalid for a packet.
// It only affects the packet being evaluated.
type FieldError struct {
	Action string
	Code   string
	Msg    string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field error in %s (%s): %s", e.Action, e.Code, e.Msg)
}
