package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeRender     = "RENDER_FAILED"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeTheme      = "THEME_UNKNOWN"
	ErrCodeStore      = "STORE_ERROR"
	ErrCodeExport     = "EXPORT_FAILED"
	ErrCodeExpression = "EXPRESSION_ERROR"
	ErrCodeNoScene    = "NO_SCENE"
)

// LienzoError is the structured error type crossing package boundaries.
type LienzoError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *LienzoError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *LienzoError) Unwrap() error {
	return e.Cause
}

// NewError creates a new LienzoError.
func NewError(code, message string) *LienzoError {
	return &LienzoError{Code: code, Message: message}
}

// NewErrorf creates a new LienzoError with a formatted message.
func NewErrorf(code, format string, args ...any) *LienzoError {
	return &LienzoError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches the stable id of the diagram node involved.
func (e *LienzoError) WithNode(nodeID string) *LienzoError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *LienzoError) WithCause(err error) *LienzoError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *LienzoError) WithDetails(details map[string]any) *LienzoError {
	e.Details = details
	return e
}

// HasCode reports whether err is a LienzoError carrying code.
func HasCode(err error, code string) bool {
	le, ok := AsLienzoError(err)
	return ok && le.Code == code
}

// AsLienzoError unwraps err into a *LienzoError when possible.
func AsLienzoError(err error) (*LienzoError, bool) {
	var le *LienzoError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
