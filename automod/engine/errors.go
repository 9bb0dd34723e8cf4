package engine

import (
	"errors"
	"fmt"
)

var (
	ErrEngineClosed = errors.New("moderation engine is shut down")
	ErrInvalidEvent = errors.New("invalid message event")
)

// Failure of a call to the chat platform or the report channel. These are logged and counted, and never interrupt moderation.
type CollaboratorError struct {
	// Collaborator operation, eg "delete_message"
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}
