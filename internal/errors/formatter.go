package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
)

func CreateUserError(message string, options UserErrorOptions) *UserError {
	err := &UserError{
		message:    message,
		Level:      options.Level,
		Category:   options.Category,
		Details:    options.Details,
		Resolution: options.Resolution,
		Cause:      options.Cause,
	}

	level := slog.LevelWarn
	if err.Level >= ErrorLevelError {
		level = slog.LevelError
	}

	attrs := []any{
		"category", CategoryName(err.Category),
		"level", LevelName(err.Level),
	}
	if len(err.Details) > 0 {
		attrs = append(attrs, "details", err.Details)
	}
	if err.Cause != nil {
		attrs = append(attrs, "cause", err.Cause.Error())
	}

	slog.Log(context.Background(), level, "User error: "+message, attrs...)
	return err
}

// FormatErrorForDisplay renders err for the terminal. User errors get
// their resolution hints and details, anything else a generic prefix.
func FormatErrorForDisplay(err error) string {
	if err == nil {
		return ""
	}
	var userErr *UserError
	if stderrors.As(err, &userErr) {
		return formatUserError(userErr)
	}
	return formatSystemError(err)
}

func EnsureUserError(err error, defaultMessage string, options UserErrorOptions) *UserError {
	if err == nil {
		return CreateUserError(defaultMessage, options)
	}
	var userErr *UserError
	if stderrors.As(err, &userErr) {
		return userErr
	}

	options.Cause = err
	return CreateUserError(defaultMessage, options)
}

func formatUserError(err *UserError) string {
	var b strings.Builder
	b.WriteString("Error: " + err.Error())

	if len(err.Resolution) > 0 {
		b.WriteString("\n\nTo resolve this:")
		for _, step := range err.Resolution {
			b.WriteString("\n- " + step)
		}
	}

	if len(err.Details) > 0 {
		b.WriteString("\n\nDetails:")
		keys := make([]string, 0, len(err.Details))
		for k := range err.Details {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n%s: %s", k, formatDetailValue(err.Details[k]))
		}
	}

	return b.String()
}

func formatSystemError(err error) string {
	message := "Error: " + err.Error()
	if os.Getenv("GIBBERISH_DEBUG") == "true" {
		message += fmt.Sprintf("\n\nError chain:\n%#v", err)
	}
	return message
}

func formatDetailValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "<nil>"
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	if data, err := json.MarshalIndent(value, "", "  "); err == nil {
		return string(data)
	}
	return fmt.Sprint(value)
}
