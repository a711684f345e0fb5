package logger

import "fmt"

// Info logs a formatted informational message
func Info(format string, v ...any) {
	Slog().Info(fmt.Sprintf(format, v...))
}

// Warn logs a formatted warning
func Warn(format string, v ...any) {
	Slog().Warn(fmt.Sprintf(format, v...))
}

// Error logs a formatted error message
func Error(format string, v ...any) {
	Slog().Error(fmt.Sprintf(format, v...))
}

// Printf logs a formatted message at info level
func Printf(format string, v ...any) {
	Info(format, v...)
}
