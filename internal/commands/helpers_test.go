package commands_test

import (
	"bytes"
	"context"
	"flag"
	"io"
	"testing"
	"time"

	"todo/internal/backend/todoapi"
	"todo/internal/commands"
	"todo/internal/config"
	"todo/internal/service"
	"todo/internal/session"
	"todo/internal/testutil"
)

const (
	email    = "a@b.com"
	password = "secret"
)

func testConfig(t *testing.T, fake *testutil.FakeAPI) *config.Config {
	t.Helper()
	cfg := &config.Config{Dir: t.TempDir(), Settings: config.DefaultSettings()}
	if fake != nil {
		cfg.APIURL = fake.URL()
	}
	cfg.RetryBase = time.Millisecond
	cfg.RequestTimeout = 2 * time.Second
	return cfg
}

// newService returns a backend that has been initialized but not logged in.
func newService(t *testing.T, fake *testutil.FakeAPI) *todoapi.Backend {
	t.Helper()
	b, err := todoapi.New(context.Background(), testConfig(t, fake), todoapi.Options{
		Store: session.NewMemoryStore(""),
	})
	if err != nil {
		t.Fatalf("todoapi.New: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	if err := b.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return b
}

// loggedIn returns a session for a user owning the given tasks, oldest first.
func loggedIn(t *testing.T, tasks ...service.Task) (*todoapi.Backend, *testutil.FakeAPI) {
	t.Helper()
	fake := testutil.NewFakeAPI(t)
	fake.AddUser(email, password)
	for _, task := range tasks {
		fake.AddTask(email, task.Title, task.Completed)
	}
	b := newService(t, fake)
	if err := b.Login(context.Background(), email, password); err != nil {
		t.Fatalf("Login: %v", err)
	}
	return b, fake
}

func titled(titles ...string) []service.Task {
	tasks := make([]service.Task, len(titles))
	for i, title := range titles {
		tasks[i] = service.Task{Title: title}
	}
	return tasks
}

// parseFlags registers the command's flags and returns the positional args.
func parseFlags(t *testing.T, cmd commands.Command, args ...string) []string {
	t.Helper()
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cmd.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs.Args()
}

// runCommand runs cmd against svc with a fresh config.
func runCommand(t *testing.T, cmd commands.Command, svc service.Service, args []string, quiet bool) (stdout, stderr string, code int) {
	t.Helper()

	var outBuf, errBuf bytes.Buffer
	cfg := testConfig(t, nil)
	cfg.Quiet = quiet

	code = cmd.Run(context.Background(), cfg, svc, args, &outBuf, &errBuf)
	return outBuf.String(), errBuf.String(), code
}
