package signal

import "fmt"

// FailureKind classifies why a message could not be turned into an intent.
type FailureKind string

const (
	UnrecognizedFormat FailureKind = "unrecognized_format"
	InvalidNumber      FailureKind = "invalid_number"
	InvalidLevels      FailureKind = "invalid_levels"
)

// ParseError is returned by Parser.Parse. Compare with errors.Is against
// ErrUnrecognizedFormat, ErrInvalidNumber or ErrInvalidLevels.
type ParseError struct {
	Kind     FailureKind
	Template string
	Field    string
	Value    string
	Err      error
}

var (
	ErrUnrecognizedFormat = &ParseError{Kind: UnrecognizedFormat}
	ErrInvalidNumber      = &ParseError{Kind: InvalidNumber}
	ErrInvalidLevels      = &ParseError{Kind: InvalidLevels}
)

func (e *ParseError) Error() string {
	switch e.Kind {
	case InvalidNumber:
		return fmt.Sprintf("parse signal: invalid number %q for %s", e.Value, e.Field)
	case InvalidLevels:
		return fmt.Sprintf("parse signal: %v", e.Err)
	}
	return "parse signal: unrecognized format"
}

func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	return ok && t.Kind == e.Kind
}

func (e *ParseError) Unwrap() error { return e.Err }
