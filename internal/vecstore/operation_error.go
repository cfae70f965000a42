package vecstore

import "fmt"

type OperationErrorCode string

const (
	OperationErrorValidation         OperationErrorCode = "validation_failed"
	OperationErrorDimensionMismatch  OperationErrorCode = "dimension_mismatch"
	OperationErrorInvalidArgument    OperationErrorCode = "invalid_argument"
	OperationErrorUnsupportedFilter  OperationErrorCode = "unsupported_filter"
	OperationErrorBackendUnavailable OperationErrorCode = "backend_unavailable"
	OperationErrorTimeout            OperationErrorCode = "timeout"
)

type OperationError struct {
	Code      OperationErrorCode
	Operation string
	Message   string
	Cause     error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "vector store operation failed"
	}
	if e.Message != "" {
		return fmt.Sprintf(
			"vector store operation failed (op=%s code=%s): %s",
			e.Operation,
			e.Code,
			e.Message,
		)
	}
	if e.Cause != nil {
		return fmt.Sprintf(
			"vector store operation failed (op=%s code=%s): %v",
			e.Operation,
			e.Code,
			e.Cause,
		)
	}
	return fmt.Sprintf("vector store operation failed (op=%s code=%s)", e.Operation, e.Code)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func opErr(op string, code OperationErrorCode, msg string, cause error) error {
	return &OperationError{
		Code:      code,
		Operation: op,
		Message:   msg,
		Cause:     cause,
	}
}

// IsRetryable reports whether err is a transient backend failure worth retrying.
// Validation, dimension, and filter errors indicate a caller defect and are never retried.
func IsRetryable(err error) bool {
	code := CodeOf(err)
	return code == OperationErrorBackendUnavailable || code == OperationErrorTimeout
}

func CodeOf(err error) OperationErrorCode {
	if err == nil {
		return ""
	}
	for {
		if oe, ok := err.(*OperationError); ok {
			return oe.Code
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return ""
		}
		err = u.Unwrap()
		if err == nil {
			return ""
		}
	}
}
