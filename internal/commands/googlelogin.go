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
	Register(&GoogleLoginCmd{})
}

// GoogleLoginCmd connects a Google account for export-google.
type GoogleLoginCmd struct{}

func (c *GoogleLoginCmd) Name() string       { return "google-login" }
func (c *GoogleLoginCmd) Aliases() []string  { return nil }
func (c *GoogleLoginCmd) Synopsis() string   { return "Connect a Google account for export" }
func (c *GoogleLoginCmd) Usage() string      { return "todo google-login" }
func (c *GoogleLoginCmd) NeedsService() bool { return false }
func (c *GoogleLoginCmd) NeedsAuth() bool    { return false }

func (c *GoogleLoginCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *GoogleLoginCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	if !cfg.HasGoogleClient() {
		fmt.Fprintf(errOut, "error: %s not found in %s\n", config.GoogleClientFile, cfg.Dir)
		fmt.Fprint(errOut, googleSetupText)
		fmt.Fprintf(errOut, "Save the downloaded file as %s and run 'todo google-login' again.\n", cfg.GoogleClientPath())
		return exitcode.AuthError
	}

	conf, err := googletasks.OAuthConfig(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.AuthError
	}

	token, err := googletasks.Authorize(ctx, conf, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.AuthError
	}

	if err := cfg.EnsureDir(); err != nil {
		fmt.Fprintf(errOut, "error: failed to create config directory: %v\n", err)
		return exitcode.AuthError
	}
	if err := googletasks.SaveToken(cfg.GoogleTokenPath(), token); err != nil {
		fmt.Fprintf(errOut, "error: failed to save token: %v\n", err)
		return exitcode.AuthError
	}
	return ok(cfg, out)
}

const googleSetupText = `
Exporting to Google Tasks needs OAuth client credentials:
  1. Open https://console.cloud.google.com/apis/credentials
  2. Enable the Google Tasks API for the project
  3. Create an OAuth client ID of type "Desktop app" and download its JSON
`
