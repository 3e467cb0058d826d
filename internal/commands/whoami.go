package commands

import (
	"context"
	"flag"
	"io"

	"todo/internal/apierr"
	"todo/internal/config"
	"todo/internal/exitcode"
	"todo/internal/output"
	"todo/internal/service"
)

func init() {
	Register(&WhoamiCmd{})
}

// WhoamiCmd prints the current user.
type WhoamiCmd struct {
	refresh bool
}

func (c *WhoamiCmd) Name() string       { return "whoami" }
func (c *WhoamiCmd) Aliases() []string  { return []string{"me"} }
func (c *WhoamiCmd) Synopsis() string   { return "Show the logged-in user" }
func (c *WhoamiCmd) Usage() string      { return "todo whoami [--refresh]" }
func (c *WhoamiCmd) NeedsService() bool { return true }
func (c *WhoamiCmd) NeedsAuth() bool    { return true }

func (c *WhoamiCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.refresh, "refresh", false, "")
}

func (c *WhoamiCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	if c.refresh {
		if err := svc.RefreshUser(ctx); err != nil {
			return fail(errOut, err)
		}
	}
	user, ok := svc.CurrentUser()
	if !ok {
		return fail(errOut, apierr.ErrNotAuthenticated)
	}
	output.FormatUser(out, user, svc.TokenExpiry(ctx))
	return exitcode.Success
}
