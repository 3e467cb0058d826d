package commands

import (
	"context"
	"flag"
	"io"

	"todo/internal/config"
	"todo/internal/service"
)

func init() {
	Register(&DoneCmd{})
}

// DoneCmd implements the done command. It toggles completion, so running it
// on a completed task reopens it.
type DoneCmd struct{}

func (c *DoneCmd) Name() string       { return "done" }
func (c *DoneCmd) Aliases() []string  { return []string{"toggle"} }
func (c *DoneCmd) Synopsis() string   { return "Toggle a task's completion" }
func (c *DoneCmd) Usage() string      { return "todo done <n>" }
func (c *DoneCmd) NeedsService() bool { return true }
func (c *DoneCmd) NeedsAuth() bool    { return true }
func (c *DoneCmd) NeedsTasks() bool   { return true }

func (c *DoneCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *DoneCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	task, err := resolveArgs(svc, args)
	if err != nil {
		return fail(errOut, err)
	}
	if err := svc.ToggleTask(ctx, task.ID); err != nil {
		return fail(errOut, err)
	}
	return ok(cfg, out)
}
