package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents an application error
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.URL != "" {
		msg += " [" + e.URL + "]"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s (caused by: %v)", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so predefined values work with errors.Is
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(cause error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		URL:     e.URL,
		Cause:   cause,
	}
}

// WithURL attaches the offending URL
func (e *AppError) WithURL(url string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		URL:     url,
		Cause:   e.Cause,
	}
}

// New creates a new application error
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with application error
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Error codes
const (
	CodeFetchFailed   = "FETCH_FAILED"
	CodeTocEmpty      = "TOC_EMPTY"
	CodeContentEmpty  = "CONTENT_EMPTY"
	CodeSourceInvalid = "SOURCE_INVALID"
	CodeScriptFailed  = "SCRIPT_FAILED"
	CodeURLInvalid    = "URL_INVALID"
	CodeRuleInvalid   = "RULE_INVALID"
)

// Predefined errors
var (
	ErrFetchFailed   = New(CodeFetchFailed, "fetch failed")
	ErrTocEmpty      = New(CodeTocEmpty, "table of contents empty")
	ErrContentEmpty  = New(CodeContentEmpty, "chapter content empty")
	ErrSourceInvalid = New(CodeSourceInvalid, "invalid book source")
	ErrScriptFailed  = New(CodeScriptFailed, "script evaluation failed")
	ErrURLInvalid    = New(CodeURLInvalid, "invalid url")
	ErrRuleInvalid   = New(CodeRuleInvalid, "invalid rule expression")
)

// AsAppError converts an error to an application error
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetErrorCode gets the error code from an error
func GetErrorCode(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}
