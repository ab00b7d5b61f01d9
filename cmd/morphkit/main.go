package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matzehuels/morphkit/internal/cli"
	perrors "github.com/matzehuels/morphkit/pkg/errors"
)

// Exit codes follow sysexits(3) so that batch conversions can tell a broken
// reconstruction from a missing file or a bad invocation.
const (
	exitFailure     = 1
	exitUsage       = 64  // EX_USAGE
	exitDataErr     = 65  // EX_DATAERR
	exitNoInput     = 66  // EX_NOINPUT
	exitUnavailable = 69  // EX_UNAVAILABLE
	exitInterrupted = 130 // 128 + SIGINT
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "morphkit:", err)
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context) error {
	var verbose bool

	c := cli.New(os.Stderr, cli.LogInfo)
	root := c.RootCommand()
	root.SilenceErrors = true

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging (decode warnings, cache hits)")

	// Set the log level before the root pre-run loads the config.
	originalPreRun := root.PersistentPreRunE
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := cli.LogInfo
		if verbose {
			level = cli.LogDebug
		}
		c.SetLogLevel(level)

		if originalPreRun != nil {
			return originalPreRun(cmd, args)
		}
		return nil
	}

	return root.ExecuteContext(ctx)
}

// exitCode maps an error to the process exit status by its error code.
func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	switch perrors.GetCode(err) {
	case perrors.ErrCodeInvalidInput, perrors.ErrCodeInvalidPath, perrors.ErrCodeUnsupportedFormat:
		return exitUsage
	case perrors.ErrCodeParse, perrors.ErrCodeInvalidFormat, perrors.ErrCodeInvalidHeader,
		perrors.ErrCodeSelfParent, perrors.ErrCodeCycle, perrors.ErrCodeOutOfRange:
		return exitDataErr
	case perrors.ErrCodeNotFound, perrors.ErrCodeFileNotFound:
		return exitNoInput
	case perrors.ErrCodeNetwork, perrors.ErrCodeTimeout:
		return exitUnavailable
	}
	return exitFailure
}
