package session

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrSessionClosed  = errors.New("session closed")
)

// PrimitiveError reports that the connection primitive rejected an operation,
// such as a description it could not apply.
type PrimitiveError struct {
	Op  string
	Err error
}

func (e *PrimitiveError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PrimitiveError) Unwrap() error { return e.Err }

func primitiveErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PrimitiveError{Op: op, Err: err}
}
