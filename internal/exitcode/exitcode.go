package exitcode

import (
	"context"
	"errors"
	"flag"
	"os"
)

const (
	Success = 0

	// The build ran and reported errors
	BuildFailed = 1

	// The command line or a config file was invalid
	Usage = 2

	// A panic or another internal error. These are bugs.
	Internal = 3

	// Matches what shells report for SIGINT
	Interrupted = 130
)

// Errors that know their own exit code
type Coder interface {
	error
	ExitCode() int
}

// Gets the exit code associated with an error:
//
//   nil => Success
//   errors implementing Coder => value returned by ExitCode
//   flag.ErrHelp => Usage
//   context.Canceled => Interrupted
//   all other errors => BuildFailed
//
func Get(err error) int {
	if err == nil {
		return Success
	}

	if coder := Coder(nil); errors.As(err, &coder) {
		return coder.ExitCode()
	}

	if errors.Is(err, flag.ErrHelp) {
		return Usage
	}

	if errors.Is(err, context.Canceled) {
		return Interrupted
	}

	return BuildFailed
}

// Wraps an error so that "Get" returns "code" for it. The message and the
// error chain are unchanged.
func Set(err error, code int) error {
	if err == nil {
		return nil
	}
	return coder{err, code}
}

var _ Coder = coder{}

type coder struct {
	error
	int
}

func (co coder) ExitCode() int {
	return co.int
}

func (co coder) Unwrap() error {
	return co.error
}

func Exit(err error) {
	os.Exit(Get(err))
}
