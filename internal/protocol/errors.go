package protocol

import (
	"errors"
	"net/http"
	"strings"
)

// Code is the stable error identifier written into the response envelope.
type Code string

const (
	// ---- 客户端错误 ----
	CodeRouteNotFound     Code = "RouteNotFound"
	CodeOperationNotFound Code = "OperationNotFound"
	CodeInvalidArguments  Code = "InvalidArguments"

	// ---- 服务端错误 ----
	CodeHostUnavailable     Code = "HostUnavailable"
	CodeTimeout             Code = "Timeout"
	CodeListenerBindFailure Code = "ListenerBindFailure"
	CodePersistenceFailure  Code = "PersistenceFailure"
	CodeInternal            Code = "InternalError"
)

var (
	ErrRouteNotFound       = errors.New("route not found")
	ErrOperationNotFound   = errors.New("operation not found")
	ErrInvalidArguments    = errors.New("invalid arguments")
	ErrHostUnavailable     = errors.New("host unavailable")
	ErrTimeout             = errors.New("host call timed out")
	ErrListenerBindFailure = errors.New("listener bind failure")
	ErrPersistenceFailure  = errors.New("persistence failure")
	ErrInternal            = errors.New("internal error")
)

var sentinels = map[Code]error{
	CodeRouteNotFound:       ErrRouteNotFound,
	CodeOperationNotFound:   ErrOperationNotFound,
	CodeInvalidArguments:    ErrInvalidArguments,
	CodeHostUnavailable:     ErrHostUnavailable,
	CodeTimeout:             ErrTimeout,
	CodeListenerBindFailure: ErrListenerBindFailure,
	CodePersistenceFailure:  ErrPersistenceFailure,
	CodeInternal:            ErrInternal,
}

// Error carries a taxonomy code and a caller-facing message while keeping the
// sentinel and the underlying cause reachable through errors.Is / errors.As.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := strings.TrimSpace(e.Message)
	if e.Err == nil {
		if msg == "" {
			return string(e.Code)
		}
		return string(e.Code) + ": " + msg
	}
	if msg == "" {
		return string(e.Code) + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if s, ok := sentinels[e.Code]; ok {
		out = append(out, s)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf classifies err. Plain sentinels are recognised as well as *Error.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) && typed != nil {
		return typed.Code
	}
	for code, s := range sentinels {
		if errors.Is(err, s) {
			return code
		}
	}
	return CodeInternal
}

// MessageOf returns the caller-facing message of err without the code prefix.
func MessageOf(err error) string {
	var typed *Error
	if errors.As(err, &typed) && typed != nil {
		if typed.Message != "" {
			return typed.Message
		}
		if typed.Err != nil {
			return typed.Err.Error()
		}
		return ""
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// HTTPStatus maps a code onto the response status of the dispatch path.
func HTTPStatus(code Code) int {
	switch code {
	case CodeRouteNotFound:
		return http.StatusNotFound
	case CodeOperationNotFound, CodeInvalidArguments:
		return http.StatusBadRequest
	case CodeHostUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may retry the same request unchanged.
func Retryable(code Code) bool {
	return code == CodeHostUnavailable || code == CodeTimeout
}
