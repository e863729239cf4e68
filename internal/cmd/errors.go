package cmd

import "fmt"

// ExitCodeError carries a child process's exit code through cobra's error
// return path so main can propagate it without printing a spurious "box:"
// error line for an ordinary nonzero exit.
type ExitCodeError struct {
	Code int
}

func (e ExitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func exitCodeError(code int) error {
	return ExitCodeError{Code: code}
}
