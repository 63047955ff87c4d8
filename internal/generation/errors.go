package generation

import (
	"errors"
	"fmt"
)

var (
	// ErrProvider marks failures of the provider call
	ErrProvider = errors.New("generation provider failed")

	// ErrMalformedOutput marks replies that do not hold decodable JSON
	ErrMalformedOutput = errors.New("malformed generation output")

	// ErrSchemaViolation marks decoded replies that break the contract
	ErrSchemaViolation = errors.New("generation output violates contract")
)

// Kind classifies a generation failure
type Kind string

const (
	KindProvider  Kind = "provider"
	KindMalformed Kind = "malformed"
	KindInvalid   Kind = "invalid"
)

// Error is a failed Generate call
type Error struct {
	Contract string
	Kind     Kind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("generate %s: %s: %v", e.Contract, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error kind
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindProvider:
		return target == ErrProvider
	case KindMalformed:
		return target == ErrMalformedOutput
	case KindInvalid:
		return target == ErrSchemaViolation
	}
	return false
}
