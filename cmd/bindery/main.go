package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/bindery-js/bindery/internal/exitcode"
	"github.com/bindery-js/bindery/internal/helpers"
	"github.com/bindery-js/bindery/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx)
	stop()
	exitcode.Exit(err)
}

// Panics are bugs. Report them the way other diagnostics are reported along
// with a stack trace that can be pasted into an issue.
func run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.PrintErrorToStderr(os.Args, fmt.Sprintf("panic: %v\n%s", r, helpers.PrettyPrintedStack()))
			err = exitcode.Set(fmt.Errorf("panic: %v", r), exitcode.Internal)
		}
	}()

	return reportError(newRootCommand().ExecuteContext(ctx))
}
