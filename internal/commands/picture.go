package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"todo/internal/config"
	"todo/internal/exitcode"
	"todo/internal/service"
)

func init() {
	Register(&PictureCmd{})
	Register(&ProfileCmd{})
}

// PictureCmd uploads a profile picture.
type PictureCmd struct{}

func (c *PictureCmd) Name() string       { return "picture" }
func (c *PictureCmd) Aliases() []string  { return nil }
func (c *PictureCmd) Synopsis() string   { return "Upload a profile picture (JPEG, PNG, GIF or WebP, up to 5MB)" }
func (c *PictureCmd) Usage() string      { return "todo picture <file>" }
func (c *PictureCmd) NeedsService() bool { return true }
func (c *PictureCmd) NeedsAuth() bool    { return true }

func (c *PictureCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *PictureCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "error: exactly one file required")
		return exitcode.UserError
	}

	f, err := os.Open(args[0])
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}
	defer f.Close()

	if err := svc.UpdateProfilePicture(ctx, filepath.Base(args[0]), f); err != nil {
		return fail(errOut, err)
	}
	return ok(cfg, out)
}

// ProfileCmd updates profile fields.
type ProfileCmd struct {
	email      string
	pictureURL string
}

func (c *ProfileCmd) Name() string       { return "profile" }
func (c *ProfileCmd) Aliases() []string  { return nil }
func (c *ProfileCmd) Synopsis() string   { return "Change email or picture reference" }
func (c *ProfileCmd) Usage() string      { return "todo profile [--email <email>] [--picture-url <url>]" }
func (c *ProfileCmd) NeedsService() bool { return true }
func (c *ProfileCmd) NeedsAuth() bool    { return true }

func (c *ProfileCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.email, "email", "", "")
	fs.StringVar(&c.pictureURL, "picture-url", "", "")
}

func (c *ProfileCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	var update service.ProfileUpdate
	if c.email != "" {
		update.Email = &c.email
	}
	if c.pictureURL != "" {
		update.ProfilePicture = &c.pictureURL
	}
	if update.Email == nil && update.ProfilePicture == nil {
		fmt.Fprintln(errOut, "error: --email or --picture-url required")
		return exitcode.UserError
	}

	if err := svc.UpdateProfile(ctx, update); err != nil {
		return fail(errOut, err)
	}
	return ok(cfg, out)
}
