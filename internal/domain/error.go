package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrValidation          = errors.New("validation failed")
	ErrMissingPrecondition = errors.New("missing precondition")
	ErrUnknownWorkflow     = errors.New("unknown workflow")
	ErrUnknownStatus       = errors.New("unknown task status")
	ErrNoActionBound       = errors.New("no action bound to control")
	ErrQueueFull           = errors.New("too many poll loops running")
)

// ServiceError is a non-2xx reply of the report service carrying its detail message.
type ServiceError struct {
	StatusCode int
	Detail     string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("report service error (status %d): %s", e.StatusCode, e.Detail)
}
