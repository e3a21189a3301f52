package errors

import (
	"errors"
	"fmt"
)

// Code represents a stable error code for programmatic handling.
type Code string

const (
	CodeUnknown       Code = "unknown"
	CodeInvalid       Code = "invalid"
	CodeNotFound      Code = "not_found"
	CodeConflict      Code = "conflict"
	CodeForbidden     Code = "forbidden"
	CodeInternal      Code = "internal"
	CodeUnavailable   Code = "unavailable"
	CodeDeadline      Code = "deadline_exceeded"
	CodeAlreadyExists Code = "already_exists"

	// Asset taxonomy.
	CodeBadParams           Code = "bad_params"
	CodeParamRequired       Code = "param_required"
	CodeBadRequestDocument  Code = "bad_request_document"
	CodeExceptionForElement Code = "exception_for_element"
	CodeLicensing           Code = "licensing"
)

// Wire reasons sent as the last frame of an ERROR reply.
const (
	WireBadCommand              = "BAD_COMMAND"
	WireOperationNotImplemented = "OPERATION_NOT_IMPLEMENTED"
	WireMissingIname            = "MISSING_INAME"
	WireMissingCommand          = "MISSING_COMMAND"
	WireAssetNotFound           = "ASSET_NOT_FOUND"
	WireRequestMsgtypeExpected  = "REQUEST_MSGTYPE_EXPECTED"
	WireUnexpectedCommand       = "UNEXPECTED_COMMAND"
	WireInternalError           = "INTERNAL_ERROR"
)

// AppError is a structured error type that carries a code, message, and optional metadata.
type AppError struct {
	Code    Code
	Message string
	Err     error
	Meta    map[string]any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *AppError) Unwrap() error { return e.Err }

// WithMeta attaches metadata to the error.
func (e *AppError) WithMeta(k string, v any) *AppError {
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}
	e.Meta[k] = v
	return e
}

// New creates a new AppError with code and message.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates a new AppError with a formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with code and message.
func Wrap(err error, code Code, message string) *AppError {
	if err == nil {
		return New(code, message)
	}
	return &AppError{Code: code, Message: message, Err: err}
}

// IsCode checks if an error has the provided code (through unwrapping).
func IsCode(err error, code Code) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost AppError, or CodeUnknown.
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// Reason returns the human readable part of err, the text put on the wire.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

// BadParams reports a field whose value fails validation.
func BadParams(field, got, expected string) *AppError {
	return Newf(CodeBadParams, "Parameter '%s' has bad value. Received %s. Expected %s", field, got, expected).
		WithMeta("field", field)
}

// ParamRequired reports a missing mandatory field.
func ParamRequired(field string) *AppError {
	return Newf(CodeParamRequired, "Parameter '%s' is required", field).WithMeta("field", field)
}

// BadRequestDocument reports an unparseable payload of the given kind (csv, json).
func BadRequestDocument(kind string) *AppError {
	return Newf(CodeBadRequestDocument, "Request document has invalid syntax: %s", kind)
}

// ElementNotFound reports an id or name absent from the store.
func ElementNotFound(name string) *AppError {
	return Newf(CodeNotFound, "Element '%s' not found.", name).WithMeta("element", name)
}

// ExceptionForElement reports an internal failure while handling one element.
func ExceptionForElement(name string, err error) *AppError {
	return &AppError{
		Code:    CodeExceptionForElement,
		Message: fmt.Sprintf("Internal Server Error. Error for element '%s': %s", name, Reason(err)),
		Err:     err,
		Meta:    map[string]any{"element": name},
	}
}

// WireReason maps an error to the wire-level reason used by the bus protocols.
func WireReason(err error) string {
	switch CodeOf(err) {
	case CodeNotFound:
		return WireAssetNotFound
	default:
		return WireInternalError
	}
}
