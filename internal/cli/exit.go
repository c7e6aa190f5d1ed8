package cli

import (
	"github.com/pkg/errors"
)

// ErrFailed is returned by a command whose protocol operation ran but did
// not succeed, after the command printed why.
var ErrFailed = errors.New("operation did not succeed")

// ExitCode maps a command error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// Reported reports whether err was already explained to the user.
func Reported(err error) bool {
	return errors.Cause(err) == ErrFailed
}
