// Package kerrors classifies errors returned by the Kubernetes API into codes the UI can act on.
package kerrors

import (
	"context"
	"errors"
	"fmt"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"net"
)

// Code is a structured error classification.
type Code string

const (
	CodeNotFound       Code = "NOT_FOUND"
	CodeForbidden      Code = "FORBIDDEN"
	CodeConflict       Code = "CONFLICT"
	CodeTimeout        Code = "TIMEOUT"
	CodeUnavailable    Code = "SERVICE_UNAVAILABLE"
	CodeExpired        Code = "EXPIRED"
	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeCanceled       Code = "CANCELED"
	CodeInternal       Code = "INTERNAL"
)

// Error carries a code, a human-readable message, the underlying cause and optional context.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]any
	// FromAPI is true when the API server answered with a Status, as opposed to a client-side failure
	FromAPI bool
	Status  int32
	Reason  metav1.StatusReason
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func WrapWithContext(code Code, message string, cause error, context map[string]any) *Error {
	return &Error{Code: code, Message: message, Cause: cause, Context: context}
}

// Classify maps err to an *Error. Errors already classified are returned unchanged.
func Classify(err error, message string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	out := &Error{Code: CodeInternal, Message: message, Cause: err}
	var status apierrors.APIStatus
	if errors.As(err, &status) {
		s := status.Status()
		out.FromAPI = true
		out.Status = s.Code
		out.Reason = s.Reason
	}

	switch {
	case apierrors.IsNotFound(err):
		out.Code = CodeNotFound
	case apierrors.IsForbidden(err), apierrors.IsUnauthorized(err):
		out.Code = CodeForbidden
	case apierrors.IsConflict(err), apierrors.IsAlreadyExists(err):
		out.Code = CodeConflict
	case apierrors.IsResourceExpired(err), apierrors.IsGone(err):
		out.Code = CodeExpired
	case apierrors.IsTimeout(err), apierrors.IsServerTimeout(err), errors.Is(err, context.DeadlineExceeded), isNetTimeout(err):
		out.Code = CodeTimeout
	case errors.Is(err, context.Canceled):
		out.Code = CodeCanceled
	case apierrors.IsServiceUnavailable(err), apierrors.IsTooManyRequests(err):
		out.Code = CodeUnavailable
	case apierrors.IsBadRequest(err), apierrors.IsInvalid(err):
		out.Code = CodeInvalidRequest
	}
	return out
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// CodeOf returns the code of err, classifying it if needed.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	return Classify(err, "").Code
}

func IsTimeout(err error) bool {
	return CodeOf(err) == CodeTimeout
}

// IsExpired reports whether a continue token or resource version is no longer valid (HTTP 410)
func IsExpired(err error) bool {
	return CodeOf(err) == CodeExpired
}

// IsCanceled reports whether the operation was superseded or abandoned by the caller
func IsCanceled(err error) bool {
	return CodeOf(err) == CodeCanceled
}

// IsAPIError reports whether the API server answered with an error status.
func IsAPIError(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err, "").FromAPI
}

// Title is the heading for an error dialog
func Title(err error) string {
	if IsAPIError(err) {
		return "API Error"
	}
	return "Error"
}

// DeleteMessage is the user-facing explanation of a failed delete of name.
func DeleteMessage(err error, name string) string {
	if err == nil {
		return ""
	}
	e := Classify(err, "")
	if !e.FromAPI {
		if e.Code == CodeInvalidRequest && e.Cause == nil {
			return e.Message
		}
		return fmt.Sprintf("Unexpected error: %v", rootCause(e))
	}
	switch e.Code {
	case CodeNotFound:
		return fmt.Sprintf("Resource '%s' not found", name)
	case CodeForbidden:
		return fmt.Sprintf("Permission denied to delete '%s'", name)
	case CodeConflict:
		return fmt.Sprintf("Conflict while deleting '%s' - resource may have dependencies", name)
	default:
		return fmt.Sprintf("Kubernetes API error: %d - %s", e.Status, e.Reason)
	}
}

// LoadMessage is the inline error shown in place of a table that could not be loaded.
func LoadMessage(err error, kindTitle string) string {
	return fmt.Sprintf("Failed to load %s: %v", kindTitle, rootCause(Classify(err, "")))
}

func rootCause(e *Error) error {
	if e.Cause != nil {
		return e.Cause
	}
	return errors.New(e.Message)
}
