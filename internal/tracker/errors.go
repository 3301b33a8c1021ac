package tracker

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the text carries no complete tracker block.
	ErrNotFound = errors.New("tracker block not found")

	// ErrParse indicates a tracker payload is neither a JSON nor a YAML object.
	ErrParse = errors.New("tracker payload could not be parsed")

	// ErrUnknownFormat indicates an unsupported serialization format name.
	ErrUnknownFormat = errors.New("unknown tracker format")
)

// ParseError carries the offending payload so it can be shown next to the message.
type ParseError struct {
	Payload string
	JSONErr error
	YAMLErr error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse tracker payload: json: %v; yaml: %v", e.JSONErr, e.YAMLErr)
}

// Unwrap returns ErrParse for errors.Is() compatibility.
func (e *ParseError) Unwrap() error {
	return ErrParse
}
