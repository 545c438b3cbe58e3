package gmf

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a registered name or a pipeline element
	// doesn't exist.
	ErrNotFound = errors.New("gmf: not found")
	// ErrAlreadyExists is returned when a name is registered twice.
	ErrAlreadyExists = errors.New("gmf: already exists")
	// ErrInvalidState is returned when a pipeline call doesn't match its
	// state, e.g. Run without bound task.
	ErrInvalidState = errors.New("gmf: invalid state")
	// ErrInvalidArg is returned for nil components and empty pipelines.
	ErrInvalidArg = errors.New("gmf: invalid argument")
)

// ErrorRun is reported with the Error state when a job of the pipeline
// failed.
type ErrorRun struct {
	Pipeline string
	Err      error
}

func (e *ErrorRun) Error() string {
	return fmt.Sprintf("pipeline %s: %v", e.Pipeline, e.Err)
}

// Unwrap returns the job error.
func (e *ErrorRun) Unwrap() error {
	return e.Err
}

// execErrors wraps errors that might occure when multiple elements or
// endpoints are failing.
type execErrors []error

func (e execErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Unwrap allows errors.Is to match any of the errors.
func (e execErrors) Unwrap() []error {
	return e
}

// ret returns untyped nil if error is list is empty.
func (e execErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
