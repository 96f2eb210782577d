package main

import "fmt"

// Exit codes.
const (
	exitValidation = 1
	exitRuntime    = 2
	exitNotFound   = 3
)

// ExitError carries a process exit code alongside the message.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Message: fmt.Sprintf(format, args...)}
}
