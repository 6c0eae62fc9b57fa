package revolt

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEntityType is returned when a raw payload carries a variant
	// discriminator the cache cannot construct.
	ErrUnknownEntityType = errors.New("revolt: unknown entity type")

	// ErrTransport is matched by every failure coming from the REST collaborator.
	ErrTransport = errors.New("revolt: transport failure")

	// ErrResolution is matched when relationship hydration fails.
	ErrResolution = errors.New("revolt: relationship resolution failed")

	// ErrInvalidPayload is returned for payloads without an id.
	ErrInvalidPayload = errors.New("revolt: invalid payload")

	ErrNotConnected = errors.New("revolt: stream not connected")
)

// UnknownEntityTypeError carries the rejected discriminator.
type UnknownEntityTypeError struct {
	Entity string
	Type   string
}

func (e *UnknownEntityTypeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("unknown %s type: missing discriminator", e.Entity)
	}
	return fmt.Sprintf("unknown %s type %q", e.Entity, e.Type)
}

func (e *UnknownEntityTypeError) Is(target error) bool {
	return target == ErrUnknownEntityType
}

// HTTPError is a non-2xx response from the REST API.
type HTTPError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrTransport
}

// ResolutionError reports which referenced entity could not be fetched.
// It unwraps to the underlying failure, so errors.Is(err, ErrTransport)
// holds when the fetch itself failed.
type ResolutionError struct {
	Entity string
	ID     string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s %s: %v", e.Entity, e.ID, e.Err)
}

func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolution
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

func transportError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}
