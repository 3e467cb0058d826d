package commands

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"todo/internal/config"
	"todo/internal/exitcode"
	"todo/internal/service"
)

func init() {
	Register(&LoginCmd{})
	Register(&RegisterCmd{})
}

// credentials holds the flags shared by login and register.
type credentials struct {
	email    string
	password string

	// Stdin supplies the password when --password is not given.
	Stdin io.Reader
}

func (c *credentials) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.email, "email", "", "")
	fs.StringVar(&c.password, "password", "", "")
}

// read validates the flags and reads a missing password from stdin.
func (c *credentials) read(errOut io.Writer) (email, password string, code int) {
	email = strings.TrimSpace(c.email)
	if email == "" {
		fmt.Fprintln(errOut, "error: --email required")
		return "", "", exitcode.UserError
	}
	if c.password != "" {
		return email, c.password, exitcode.Success
	}

	in := c.Stdin
	if in == nil {
		in = os.Stdin
	}
	fmt.Fprint(errOut, "password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	password = strings.TrimRight(line, "\r\n")
	if password == "" {
		if err != nil && err != io.EOF {
			fmt.Fprintf(errOut, "\nerror: failed to read password: %v\n", err)
		} else {
			fmt.Fprintln(errOut, "\nerror: password required")
		}
		return "", "", exitcode.UserError
	}
	return email, password, exitcode.Success
}

// LoginCmd implements the login command.
type LoginCmd struct {
	credentials
}

func (c *LoginCmd) Name() string       { return "login" }
func (c *LoginCmd) Aliases() []string  { return nil }
func (c *LoginCmd) Synopsis() string   { return "Log in to the to-do server" }
func (c *LoginCmd) Usage() string      { return "todo login --email <email> [--password <password>]" }
func (c *LoginCmd) NeedsService() bool { return true }
func (c *LoginCmd) NeedsAuth() bool    { return false }

func (c *LoginCmd) RegisterFlags(fs *flag.FlagSet) { c.registerFlags(fs) }

func (c *LoginCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	email, password, code := c.read(errOut)
	if code != exitcode.Success {
		return code
	}
	if err := svc.Login(ctx, email, password); err != nil {
		return fail(errOut, err)
	}
	if !cfg.Quiet {
		fmt.Fprintf(out, "logged in as %s\n", email)
	}
	return exitcode.Success
}

// RegisterCmd implements the register command.
type RegisterCmd struct {
	credentials
}

func (c *RegisterCmd) Name() string       { return "register" }
func (c *RegisterCmd) Aliases() []string  { return []string{"signup"} }
func (c *RegisterCmd) Synopsis() string   { return "Create an account and log in" }
func (c *RegisterCmd) Usage() string      { return "todo register --email <email> [--password <password>]" }
func (c *RegisterCmd) NeedsService() bool { return true }
func (c *RegisterCmd) NeedsAuth() bool    { return false }

func (c *RegisterCmd) RegisterFlags(fs *flag.FlagSet) { c.registerFlags(fs) }

func (c *RegisterCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	email, password, code := c.read(errOut)
	if code != exitcode.Success {
		return code
	}
	if err := svc.Register(ctx, email, password); err != nil {
		return fail(errOut, err)
	}
	if !cfg.Quiet {
		fmt.Fprintf(out, "registered %s\n", email)
	}
	return exitcode.Success
}
