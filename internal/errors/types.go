package errors

import "fmt"

type ErrorLevel int

const (
	ErrorLevelWarning ErrorLevel = iota
	ErrorLevelError
	ErrorLevelFatal
)

type ErrorCategory int

const (
	ErrorCategoryUnknown ErrorCategory = iota
	ErrorCategoryConfiguration
	ErrorCategoryValidation
	ErrorCategoryFileSystem
	ErrorCategoryTerminal
	ErrorCategoryAIService
)

type UserErrorOptions struct {
	Level      ErrorLevel
	Category   ErrorCategory
	Details    map[string]any
	Resolution []string
	Cause      error
}

// UserError is an error meant to be shown to the person running the
// program, with optional hints on how to fix it.
type UserError struct {
	message    string
	Level      ErrorLevel
	Category   ErrorCategory
	Details    map[string]any
	Resolution []string
	Cause      error
}

func (e *UserError) Error() string {
	if e.Cause != nil {
		return e.message + ": " + e.Cause.Error()
	}
	return e.message
}

func (e *UserError) Unwrap() error {
	return e.Cause
}

func (e *UserError) Message() string {
	return e.message
}

func (e *UserError) String() string {
	return fmt.Sprintf("%s (category=%s)", e.Error(), CategoryName(e.Category))
}

func CategoryName(category ErrorCategory) string {
	switch category {
	case ErrorCategoryConfiguration:
		return "Configuration"
	case ErrorCategoryValidation:
		return "Validation"
	case ErrorCategoryFileSystem:
		return "FileSystem"
	case ErrorCategoryTerminal:
		return "Terminal"
	case ErrorCategoryAIService:
		return "AIService"
	default:
		return "Unknown"
	}
}

func LevelName(level ErrorLevel) string {
	switch level {
	case ErrorLevelWarning:
		return "Warning"
	case ErrorLevelError:
		return "Error"
	case ErrorLevelFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}
