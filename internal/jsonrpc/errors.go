package jsonrpc

import "errors"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received by the server.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603
)

var (
	// ErrParse is returned by DecodeRequest when the payload is not JSON.
	ErrParse = errors.New("parse error")
	// ErrInvalidRequest is returned by DecodeRequest when the payload is JSON
	// but not a single JSON-RPC 2.0 request or notification.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidParams is wrapped by the typed param extraction helpers.
	ErrInvalidParams = errors.New("invalid params")
)

// String returns the conventional name of the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeParseError:
		return "ParseError"
	case ErrorCodeInvalidRequest:
		return "InvalidRequest"
	case ErrorCodeMethodNotFound:
		return "MethodNotFound"
	case ErrorCodeInvalidParams:
		return "InvalidParams"
	case ErrorCodeInternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}
