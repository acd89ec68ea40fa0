package pipstore

import (
	"fmt"

	"pipdataplane.org/pip"
)

type ErrProgramNotFound struct {
	ID   pip.ProgramID
	Name string
}

func (e ErrProgramNotFound) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("program %q not found", e.Name)
	}
	return fmt.Sprintf("program %v not found", e.ID)
}

// ErrInvalidProgram is returned when a program's source does not parse or validate.
type ErrInvalidProgram struct {
	Err error
}

func (e ErrInvalidProgram) Error() string {
	return fmt.Sprintf("invalid program: %v", e.Err)
}

func (e ErrInvalidProgram) Unwrap() error {
	return e.Err
}
