package types

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an Error. The HTTP layer maps codes to status codes
// and the engine uses them to tell side-channel failures from fatal ones.
type ErrorCode string

// Raised while building or running a graph.
const (
	ErrConfiguration     ErrorCode = "CONFIGURATION"
	ErrDuplicateName     ErrorCode = "DUPLICATE_NAME"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrAgentExecution    ErrorCode = "AGENT_EXECUTION"
	ErrGraphCompilation  ErrorCode = "GRAPH_COMPILATION"
	ErrStepLimit         ErrorCode = "STEP_LIMIT"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
)

// Side channel: the engine logs these and carries on, the session outcome
// never depends on them.
const (
	ErrPersistence ErrorCode = "PERSISTENCE"
	ErrTracing     ErrorCode = "TRACING"
)

// Returned by the HTTP surface only.
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// transient codes start out retryable; WithRetryable overrides.
var transient = map[ErrorCode]bool{
	ErrPersistence:        true,
	ErrRateLimited:        true,
	ErrServiceUnavailable: true,
}

// Error is the structured error shared by the engine and the API.
// Cause is never serialized.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Agent      string    `json:"agent,omitempty"`
	Cause      error     `json:"-"`
}

func (e *Error) Error() string {
	msg := "[" + string(e.Code) + "] " + e.Message
	if e.Cause == nil {
		return msg
	}
	return msg + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is compares by code only, so errors.Is(err, NewError(code, "")) matches
// through any number of wrapping layers.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: transient[code]}
}

// The With* setters mutate e and return it for chaining.

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

func (e *Error) WithAgent(name string) *Error {
	e.Agent = name
	return e
}

// AsError returns the outermost *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

func IsRetryable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Retryable
}

// GetErrorCode returns "" when err carries no *Error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// NewConfigurationError reports a problem found while building the engine.
func NewConfigurationError(message string) *Error {
	return NewError(ErrConfiguration, message)
}

// NewAgentExecutionError wraps a failure (including a recovered panic)
// raised by agent during its turn.
func NewAgentExecutionError(agent string, cause error) *Error {
	return NewError(ErrAgentExecution, fmt.Sprintf("agent %q failed", agent)).
		WithAgent(agent).
		WithCause(cause)
}
