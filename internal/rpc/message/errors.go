package message

import (
	"encoding/json"
	"errors"

	"github.com/brianly1003/cquest/internal/domain"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Application error codes (-32001 to -32050).
const (
	ServiceAlreadyRunning = -32001
	ProcessNotFound       = -32002
	UpstreamFailure       = -32003
	SpawnFailure          = -32004
	HomeNotFound          = -32020
	DirectoryNotFound     = -32024
)

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// NewError creates a new JSON-RPC error.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorWithData creates a new JSON-RPC error with additional data.
func NewErrorWithData(code int, message string, data interface{}) *Error {
	err := &Error{Code: code, Message: message}
	if data != nil {
		if d, e := json.Marshal(data); e == nil {
			err.Data = d
		}
	}
	return err
}

// ErrParseError creates a parse error.
func ErrParseError(message string) *Error {
	if message == "" {
		message = "Parse error"
	}
	return NewError(ParseError, message)
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *Error {
	if message == "" {
		message = "Invalid Request"
	}
	return NewError(InvalidRequest, message)
}

// ErrMethodNotFound creates a method not found error.
func ErrMethodNotFound(method string) *Error {
	return NewError(MethodNotFound, "Method not found: "+method)
}

// ErrInvalidParams creates an invalid params error.
func ErrInvalidParams(message string) *Error {
	if message == "" {
		message = "Invalid params"
	}
	return NewError(InvalidParams, message)
}

// ErrInternalError creates an internal error.
func ErrInternalError(message string) *Error {
	if message == "" {
		message = "Internal error"
	}
	return NewError(InternalError, message)
}

// FromError maps a domain error onto a JSON-RPC error. The message is
// always err.Error() so clients see the same text the core produced.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	var (
		validation *domain.ValidationError
		upstream   *domain.UpstreamError
		spawn      *domain.SpawnError
	)
	switch {
	case errors.Is(err, domain.ErrServiceAlreadyRunning):
		return NewError(ServiceAlreadyRunning, err.Error())
	case errors.Is(err, domain.ErrHomeDirNotFound):
		return NewError(HomeNotFound, err.Error())
	case errors.As(err, &validation),
		errors.Is(err, domain.ErrEmptyCommand),
		errors.Is(err, domain.ErrInvalidPrompt),
		errors.Is(err, domain.ErrConflictingSessionMode):
		return NewError(InvalidParams, err.Error())
	case errors.As(err, &upstream):
		return NewErrorWithData(UpstreamFailure, err.Error(), map[string]int{"exit_code": upstream.ExitCode})
	case errors.As(err, &spawn):
		return NewErrorWithData(SpawnFailure, err.Error(), map[string]string{"op": spawn.Op})
	default:
		return NewError(InternalError, err.Error())
	}
}

// ErrorCodeName returns a human-readable name for an error code.
func ErrorCodeName(code int) string {
	switch code {
	case ParseError:
		return "ParseError"
	case InvalidRequest:
		return "InvalidRequest"
	case MethodNotFound:
		return "MethodNotFound"
	case InvalidParams:
		return "InvalidParams"
	case InternalError:
		return "InternalError"
	case ServiceAlreadyRunning:
		return "ServiceAlreadyRunning"
	case ProcessNotFound:
		return "ProcessNotFound"
	case UpstreamFailure:
		return "UpstreamFailure"
	case SpawnFailure:
		return "SpawnFailure"
	case HomeNotFound:
		return "HomeNotFound"
	case DirectoryNotFound:
		return "DirectoryNotFound"
	default:
		return "UnknownError"
	}
}
