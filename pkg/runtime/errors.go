package runtime

import (
	"errors"
	"fmt"
)

// Error is a non-2xx response from the engine.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("runtime error: %s (status %d)", e.Message, e.Status)
}

// ConnectionError means the engine socket could not be reached at all.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot connect to the container runtime at %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsErrConnectionFailed tells us whether an error came from failing to reach
// the engine socket, as opposed to the engine rejecting a request.
func IsErrConnectionFailed(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// NoSuchContainer is returned when the engine reports 404 for a container.
type NoSuchContainer struct {
	ID string
}

func (e *NoSuchContainer) Error() string {
	return "no such container: " + e.ID
}

// IsErrNotFound tells us whether the error is a missing-container error.
func IsErrNotFound(err error) bool {
	var nsc *NoSuchContainer
	return errors.As(err, &nsc)
}

// notFound translates a 404 engine error into NoSuchContainer, leaving every
// other error untouched.
func notFound(err error, id string) error {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Status == 404 {
		return &NoSuchContainer{ID: id}
	}
	return err
}
