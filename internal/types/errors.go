package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for the status API and the circuit breaker.
type ErrorKind string

const (
	ErrKindConfiguration   ErrorKind = "configuration"
	ErrKindData            ErrorKind = "data"
	ErrKindGateway         ErrorKind = "gateway"
	ErrKindStateCorruption ErrorKind = "state_corruption"
)

var (
	ErrNoPrice        = errors.New("no price available")
	ErrOrderRejected  = errors.New("order rejected")
	ErrEngineStopped  = errors.New("engine not running")
	ErrUnknownProfile = errors.New("unknown risk profile")
)

// KindError wraps an error with its taxonomy kind.
type KindError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindError) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *KindError) Unwrap() error { return e.Err }

func NewConfigurationErr(format string, args ...any) error {
	return &KindError{Kind: ErrKindConfiguration, Err: fmt.Errorf(format, args...)}
}

func NewDataErr(format string, args ...any) error {
	return &KindError{Kind: ErrKindData, Err: fmt.Errorf(format, args...)}
}

func NewGatewayErr(err error) error {
	return &KindError{Kind: ErrKindGateway, Err: err}
}

// NewStateCorruptionErr flags an invariant violation. Callers must disable
// trading and alert; the violation is never auto-corrected.
func NewStateCorruptionErr(format string, args ...any) error {
	return &KindError{Kind: ErrKindStateCorruption, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the taxonomy kind from err, defaulting to gateway for plain
// errors crossing the collaborator boundary.
func KindOf(err error) ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ErrKindGateway
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ke *KindError
	return errors.As(err, &ke) && ke.Kind == kind
}
