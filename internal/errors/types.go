// Package errors provides the structured error taxonomy shared by the
// livecode engine and its HTTP host.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeExecution  ErrorType = "execution"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeInvalidPath       = "ERR_INVALID_PATH"
	ErrCodeInvalidOrigin     = "ERR_INVALID_ORIGIN"
	ErrCodeEditorNotFound    = "ERR_EDITOR_NOT_FOUND"
	ErrCodeLessonNotFound    = "ERR_LESSON_NOT_FOUND"
	ErrCodeSessionNotFound   = "ERR_SESSION_NOT_FOUND"
	ErrCodeSessionClosed     = "ERR_SESSION_CLOSED"
	ErrCodeSyntax            = "ERR_SYNTAX"
	ErrCodeFrameBuild        = "ERR_FRAME_BUILD"
	ErrCodeRuntime           = "ERR_RUNTIME"
	ErrCodeClipboard         = "ERR_CLIPBOARD"
	ErrCodeManifestInvalid   = "ERR_MANIFEST_INVALID"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeFileNotFound      = "ERR_FILE_NOT_FOUND"
	ErrCodeInternalError     = "ERR_INTERNAL"
	ErrCodeValidationFailed  = "ERR_VALIDATION_FAILED"
	ErrCodeRegistryMismatch  = "ERR_REGISTRY_MISMATCH"
	ErrCodeUnsupportedAction = "ERR_UNSUPPORTED_ACTION"
)

// LivecodeError is a structured error type with context.
type LivecodeError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Editor      string
	FilePath    string
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *LivecodeError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Editor != "" {
		parts = append(parts, "editor:"+e.Editor)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *LivecodeError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *LivecodeError) Is(target error) bool {
	var t *LivecodeError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *LivecodeError) WithContext(key string, value interface{}) *LivecodeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds source location information.
func (e *LivecodeError) WithLocation(filePath string, line, column int) *LivecodeError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithEditor adds editor context.
func (e *LivecodeError) WithEditor(editor string) *LivecodeError {
	e.Editor = editor

	return e
}

// UserMessage returns the message shown on an editor's error surface. It
// omits the code and editor prefixes that only matter in logs.
func (e *LivecodeError) UserMessage() string {
	msg := e.Message
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}

	return msg
}

// Error creation functions

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *LivecodeError {
	return &LivecodeError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewExecutionError creates an execution failure. Execution failures are
// always recoverable: the user edits and runs again.
func NewExecutionError(code, message string, cause error) *LivecodeError {
	return &LivecodeError{
		Type:        ErrorTypeExecution,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewNotFoundError creates a lookup failure.
func NewNotFoundError(code, message string) *LivecodeError {
	return &LivecodeError{
		Type:        ErrorTypeNotFound,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *LivecodeError {
	return &LivecodeError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var le *LivecodeError
	if errors.As(err, &le) {
		return le.Recoverable
	}

	return false
}

// IsExecutionError checks if an error is an execution failure.
func IsExecutionError(err error) bool {
	return hasType(err, ErrorTypeExecution)
}

// IsNotFound checks if an error is a lookup failure.
func IsNotFound(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsInternal checks if an error signals a programmer inconsistency.
func IsInternal(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

func hasType(err error, t ErrorType) bool {
	var le *LivecodeError
	if errors.As(err, &le) {
		return le.Type == t
	}

	return false
}

// Helper functions for common errors

// ErrEditorNotFound reports a lookup of an identifier the registry does not know.
func ErrEditorNotFound(id string) *LivecodeError {
	return &LivecodeError{
		Type:        ErrorTypeInternal,
		Code:        ErrCodeEditorNotFound,
		Message:     "editor is not registered",
		Editor:      id,
		Recoverable: false,
	}
}

// ErrLessonNotFound creates a lesson lookup error.
func ErrLessonNotFound(name string) *LivecodeError {
	return NewNotFoundError(ErrCodeLessonNotFound, "lesson not found: "+name)
}

// ErrSessionNotFound creates a session lookup error.
func ErrSessionNotFound(id string) *LivecodeError {
	return NewNotFoundError(ErrCodeSessionNotFound, "session not found: "+id)
}

// ErrSessionClosed is returned by work submitted to a stopped session.
var ErrSessionClosed = &LivecodeError{
	Type:    ErrorTypeInternal,
	Code:    ErrCodeSessionClosed,
	Message: "session closed",
}

// ErrSyntax creates a syntax preflight failure.
func ErrSyntax(language, message string, line, column int) *LivecodeError {
	return NewExecutionError(ErrCodeSyntax, fmt.Sprintf("%s syntax error: %s", language, message), nil).
		WithLocation("", line, column)
}
