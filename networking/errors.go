package networking

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionClosed  = errors.New("networking: connection closed by peer")
	ErrInvalidCommand    = errors.New("networking: invalid command")
	ErrUnexpectedCommand = errors.New("networking: unexpected command")
	ErrReplyTooLong      = errors.New("networking: reply exceeds frame size")
	ErrUnknownReply      = errors.New("networking: unknown reply code")
	ErrMalformedReply    = errors.New("networking: malformed reply")
)

// TransportError is a read or write failure on the control connection.
// It is always fatal to the session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("networking: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UnexpectedCommandError reports a well-formed command arriving out of sequence.
type UnexpectedCommandError struct {
	Expected string
	Got      string
}

func (e *UnexpectedCommandError) Error() string {
	return fmt.Sprintf("networking: expected %s command, got %s", e.Expected, e.Got)
}

func (e *UnexpectedCommandError) Is(target error) bool {
	return target == ErrUnexpectedCommand
}
