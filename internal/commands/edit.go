package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"todo/internal/config"
	"todo/internal/exitcode"
	"todo/internal/service"
)

func init() {
	Register(&EditCmd{})
}

// EditCmd implements the edit command.
// The title is replaced; the description is replaced only when --description is given.
type EditCmd struct {
	description    string
	hasDescription bool
}

// SetDescription sets the replacement description (for testing).
func (c *EditCmd) SetDescription(d string) {
	c.description = d
	c.hasDescription = true
}

func (c *EditCmd) Name() string       { return "edit" }
func (c *EditCmd) Aliases() []string  { return nil }
func (c *EditCmd) Synopsis() string   { return "Change a task's title or description" }
func (c *EditCmd) Usage() string      { return "todo edit [--description <text>] <n> <title...>" }
func (c *EditCmd) NeedsService() bool { return true }
func (c *EditCmd) NeedsAuth() bool    { return true }
func (c *EditCmd) NeedsTasks() bool   { return true }

func (c *EditCmd) RegisterFlags(fs *flag.FlagSet) {
	c.description, c.hasDescription = "", false
	fs.Func("description", "", func(s string) error {
		c.SetDescription(s)
		return nil
	})
}

func (c *EditCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	task, err := resolveArgs(svc, args)
	if err != nil {
		return fail(errOut, err)
	}

	title := strings.Join(args[1:], " ")
	if strings.TrimSpace(title) == "" {
		fmt.Fprintln(errOut, "error: title required")
		return exitcode.UserError
	}
	description := task.Description
	if c.hasDescription {
		description = c.description
	}

	if err := svc.EditTask(task.ID); err != nil {
		return fail(errOut, err)
	}
	if _, err := svc.SaveTask(ctx, service.TaskInput{Title: title, Description: description}); err != nil {
		svc.CancelEdit()
		return fail(errOut, err)
	}
	return ok(cfg, out)
}
