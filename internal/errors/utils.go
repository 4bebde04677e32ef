package errors

import (
	"errors"
)

// Wrap wraps an error with additional context, creating a LivecodeError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *LivecodeError {
	if err == nil {
		return nil
	}

	// Preserve location and editor context of wrapped livecode errors
	var le *LivecodeError
	if errors.As(err, &le) {
		return &LivecodeError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       le,
			Context:     le.Context,
			Editor:      le.Editor,
			FilePath:    le.FilePath,
			Line:        le.Line,
			Column:      le.Column,
			Recoverable: le.Recoverable,
		}
	}

	return &LivecodeError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeExecution,
	}
}

// WrapExecution wraps an error raised while building or populating an
// isolated frame.
func WrapExecution(err error, code, editor string) *LivecodeError {
	le := Wrap(err, ErrorTypeExecution, code, "execution failed")
	if le != nil {
		le.Editor = editor
		le.Recoverable = true
	}
	return le
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *LivecodeError {
	le := Wrap(err, ErrorTypeIO, code, message)
	if le != nil {
		le.Recoverable = false
	}
	return le
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *LivecodeError {
	le := Wrap(err, ErrorTypeConfig, code, message)
	if le != nil {
		le.Recoverable = false
	}
	return le
}

// WrapInternal wraps an error as an internal error
func WrapInternal(err error, code, message string) *LivecodeError {
	le := Wrap(err, ErrorTypeInternal, code, message)
	if le != nil {
		le.Recoverable = false
	}
	return le
}

// UserMessage extracts the text an editor's error surface should show.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var le *LivecodeError
	if errors.As(err, &le) {
		return le.UserMessage()
	}

	return err.Error()
}

// GetErrorContext extracts context information from a LivecodeError
func GetErrorContext(err error) map[string]interface{} {
	var le *LivecodeError
	if errors.As(err, &le) {
		context := make(map[string]interface{})
		for k, v := range le.Context {
			context[k] = v
		}
		if le.Editor != "" {
			context["editor"] = le.Editor
		}
		if le.FilePath != "" {
			context["file"] = le.FilePath
		}
		if le.Line > 0 {
			context["line"] = le.Line
			if le.Column > 0 {
				context["column"] = le.Column
			}
		}
		context["type"] = string(le.Type)
		context["code"] = le.Code
		context["recoverable"] = le.Recoverable
		return context
	}

	return map[string]interface{}{
		"message": err.Error(),
		"type":    "unknown",
	}
}

// AsLivecode returns the first LivecodeError in err's chain.
func AsLivecode(err error) (*LivecodeError, bool) {
	var le *LivecodeError
	if errors.As(err, &le) {
		return le, true
	}

	return nil, false
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
