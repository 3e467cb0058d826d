package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"todo/internal/backend/googletasks"
	"todo/internal/config"
	"todo/internal/exitcode"
	"todo/internal/service"
)

func init() {
	Register(&ExportGoogleCmd{})
}

// Exporter writes tasks to an external task service.
type Exporter interface {
	Export(ctx context.Context, listTitle string, tasks []service.Task) (googletasks.Result, error)
}

// ExportGoogleCmd copies the task collection into a new Google Tasks list.
type ExportGoogleCmd struct {
	listTitle string

	// NewExporter builds the exporter; nil uses the stored Google credentials.
	NewExporter func(ctx context.Context, cfg *config.Config) (Exporter, error)
}

func (c *ExportGoogleCmd) Name() string       { return "export-google" }
func (c *ExportGoogleCmd) Aliases() []string  { return nil }
func (c *ExportGoogleCmd) Synopsis() string   { return "Copy tasks into a new Google Tasks list" }
func (c *ExportGoogleCmd) Usage() string      { return "todo export-google [--list <title>]" }
func (c *ExportGoogleCmd) NeedsService() bool { return true }
func (c *ExportGoogleCmd) NeedsAuth() bool    { return true }
func (c *ExportGoogleCmd) NeedsTasks() bool   { return true }

func (c *ExportGoogleCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.listTitle, "list", googletasks.DefaultListTitle, "")
}

func (c *ExportGoogleCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	newExporter := c.NewExporter
	if newExporter == nil {
		if !cfg.HasGoogleToken() {
			fmt.Fprintln(errOut, "error: no Google account connected (run: todo google-login)")
			return exitcode.AuthError
		}
		newExporter = func(ctx context.Context, cfg *config.Config) (Exporter, error) {
			return googletasks.New(ctx, cfg)
		}
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.AuthError
	}

	res, err := exp.Export(ctx, c.listTitle, svc.Tasks())
	if err != nil {
		if res.Count > 0 {
			fmt.Fprintf(errOut, "exported %d tasks before failing\n", res.Count)
		}
		return fail(errOut, err)
	}
	if !cfg.Quiet {
		fmt.Fprintf(out, "exported %d tasks to %q\n", res.Count, res.ListTitle)
	}
	return exitcode.Success
}
