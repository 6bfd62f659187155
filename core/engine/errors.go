package engine

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorCodeUnspecified       ErrorCode = "UNSPECIFIED"
	ErrorCodeConfiguration     ErrorCode = "CONFIGURATION"
	ErrorCodeChainRead         ErrorCode = "CHAIN_READ"
	ErrorCodeEstimation        ErrorCode = "ESTIMATION"
	ErrorCodeSimulationRevert  ErrorCode = "SIMULATION_REVERT"
	ErrorCodeRelayTransport    ErrorCode = "RELAY_TRANSPORT"
	ErrorCodeNonceInvalidated  ErrorCode = "NONCE_INVALIDATED"
	ErrorCodeAttemptsExhausted ErrorCode = "ATTEMPTS_EXHAUSTED"
	ErrorCodeAborted           ErrorCode = "ABORTED"
)

// StructuredError provides consistent error handling with error codes
type StructuredError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// GetCode returns the error code
func (e *StructuredError) GetCode() ErrorCode {
	return e.Code
}

// GetDetails returns additional error details
func (e *StructuredError) GetDetails() map[string]interface{} {
	return e.Details
}

// NewStructuredError creates a new structured error
func NewStructuredError(code ErrorCode, message string, cause error, details ...map[string]interface{}) *StructuredError {
	var detailsMap map[string]interface{}
	if len(details) > 0 {
		detailsMap = details[0]
	}

	return &StructuredError{
		Code:    code,
		Message: message,
		Details: detailsMap,
		Cause:   cause,
	}
}

// NewConfigurationError is raised before any chain I/O when the process is misconfigured.
func NewConfigurationError(reason string, cause error) *StructuredError {
	return NewStructuredError(ErrorCodeConfiguration,
		fmt.Sprintf("invalid configuration: %s", reason),
		cause,
		map[string]interface{}{"reason": reason})
}

func NewEstimationError(cause error) *StructuredError {
	return NewStructuredError(ErrorCodeEstimation, "action plan cannot currently execute", cause)
}

func NewSimulationRevertError(cause error) *StructuredError {
	return NewStructuredError(ErrorCodeSimulationRevert, "bundle reverts on latest state, refusing to broadcast", cause)
}

func NewRelayTransportError(method string, cause error) *StructuredError {
	return NewStructuredError(ErrorCodeRelayTransport,
		fmt.Sprintf("relay %s failed", method),
		cause,
		map[string]interface{}{"method": method})
}

func NewNonceInvalidatedError(targetBlock uint64) *StructuredError {
	return NewStructuredError(ErrorCodeNonceInvalidated,
		"bundle nonces were consumed by another transaction",
		nil,
		map[string]interface{}{"target_block": targetBlock})
}

// IsStructuredError checks if an error is, or wraps, a structured error and returns it
func IsStructuredError(err error) (*StructuredError, bool) {
	var structErr *StructuredError
	if errors.As(err, &structErr) {
		return structErr, true
	}
	return nil, false
}

// GetErrorCode extracts error code from an error, returns UNSPECIFIED if not a structured error
func GetErrorCode(err error) ErrorCode {
	if structErr, ok := IsStructuredError(err); ok {
		return structErr.GetCode()
	}
	return ErrorCodeUnspecified
}
