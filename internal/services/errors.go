package services

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrCodeValidation         ErrorCode = "validation_failed"
	ErrCodeNotFound           ErrorCode = "not_found"
	ErrCodeConflict           ErrorCode = "conflict"
	ErrCodeZeroDenominator    ErrorCode = "zero_denominator"
	ErrCodeBackendUnavailable ErrorCode = "backend_unavailable"
	ErrCodeSchemaViolation    ErrorCode = "schema_violation"
	ErrCodeInternal           ErrorCode = "internal"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e == nil {
		return "service error"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s (code=%s): %v", e.Message, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s (code=%s)", e.Message, e.Code)
}

func (e *ServiceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func svcErr(code ErrorCode, msg string, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: msg, Cause: cause}
}

// CodeOf walks the error chain for a ServiceError code; unknown errors read
// as internal.
func CodeOf(err error) ErrorCode {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}
