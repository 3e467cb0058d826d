// Package commands provides the command interface and implementations.
package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"todo/internal/config"
	"todo/internal/exitcode"
	"todo/internal/service"
)

// Command defines the interface for CLI commands.
type Command interface {
	// Name returns the primary command name.
	Name() string

	// Aliases returns alternative names for the command.
	Aliases() []string

	// Synopsis returns a short description for help output.
	Synopsis() string

	// Usage returns the usage string for help output.
	Usage() string

	// NeedsService returns true if the command talks to the remote store.
	NeedsService() bool

	// NeedsAuth returns true if the command requires a logged-in user.
	// It implies NeedsService.
	NeedsAuth() bool

	// RegisterFlags registers command-specific flags.
	RegisterFlags(fs *flag.FlagSet)

	// Run executes the command.
	// cfg is always provided (config dir, paths, settings).
	// svc is nil unless NeedsService or NeedsAuth returns true.
	// args contains positional arguments after flag parsing.
	// Returns exit code.
	Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int
}

// TaskCommand is implemented by commands that work on the loaded task collection.
type TaskCommand interface {
	NeedsTasks() bool
}

// NeedsTasks reports whether cmd cannot run without the task collection.
func NeedsTasks(cmd Command) bool {
	tc, ok := cmd.(TaskCommand)
	return ok && tc.NeedsTasks()
}

// fail prints err and returns the exit code for its kind.
func fail(errOut io.Writer, err error) int {
	fmt.Fprintf(errOut, "error: %v\n", err)
	return exitcode.FromError(err)
}

// ok prints the standard success line unless quiet.
func ok(cfg *config.Config, out io.Writer) int {
	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
