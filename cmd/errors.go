package cmd

import (
	"errors"
	"fmt"

	"github.com/mvarner/replog/internal/output"
)

// Exit codes. Scripts branch on these, so they are part of the CLI's
// contract.
const (
	ExitOK         = 0
	ExitUsage      = 2
	ExitStorage    = 3
	ExitValidation = 4
	ExitNetwork    = 5
)

// exitError carries an exit code through cobra's RunE return path.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageErr(format string, args ...any) error {
	return &exitError{code: ExitUsage, err: fmt.Errorf(format, args...)}
}

func storageErr(err error) error {
	return &exitError{code: ExitStorage, err: err}
}

func validationErr(format string, args ...any) error {
	return &exitError{code: ExitValidation, err: fmt.Errorf(format, args...)}
}

func networkErr(err error) error {
	return &exitError{code: ExitNetwork, err: err}
}

// errorCode maps an error's exit code to the structured code used in
// --json error output.
func errorCode(err error) string {
	var ee *exitError
	if errors.As(err, &ee) {
		switch ee.code {
		case ExitStorage:
			return output.ErrCodeStorage
		case ExitValidation:
			return output.ErrCodeInvalidInput
		case ExitNetwork:
			return output.ErrCodeNetwork
		}
	}
	return output.ErrCodeUsage
}
