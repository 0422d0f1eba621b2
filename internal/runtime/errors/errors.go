package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrExecutorRequired  = sterrors.New("reqflow: executor is required")
	ErrProcessorRequired = sterrors.New("reqflow: processor is required")
	ErrTransportRequired = sterrors.New("reqflow: transport is required")
	ErrServiceRequired   = sterrors.New("reqflow: reqrep service is required")
	ErrConfigRequired    = sterrors.New("reqflow: configuration is required")
	ErrURLRequired       = sterrors.New("reqflow: url is required")
)

// ConfigValidationError wraps the reason a configuration was rejected.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("reqflow: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error { return e.Err }
