package commands_test

import (
	"net/http"
	"strings"
	"testing"

	"todo/internal/commands"
	"todo/internal/exitcode"
	"todo/internal/service"
	"todo/internal/testutil"
)

func TestListCommand(t *testing.T) {
	svc, _ := loggedIn(t,
		service.Task{Title: "Buy milk"},
		service.Task{Title: "Call mom", Completed: true},
		service.Task{Title: "Write report"},
	)

	stdout, stderr, code := runCommand(t, &commands.ListCmd{}, svc, nil, false)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	testutil.GoldenString(t, "list", stdout)
}

func TestListCommand_OpenOnly(t *testing.T) {
	svc, _ := loggedIn(t,
		service.Task{Title: "Buy milk"},
		service.Task{Title: "Call mom", Completed: true},
	)

	cmd := &commands.ListCmd{}
	cmd.SetOpenOnly(true)
	stdout, _, code := runCommand(t, cmd, svc, nil, false)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stdout != "   1  [ ] Buy milk\n" {
		t.Errorf("unexpected output %q", stdout)
	}
}

func TestListCommand_Empty(t *testing.T) {
	svc, _ := loggedIn(t)

	stdout, _, code := runCommand(t, &commands.ListCmd{}, svc, nil, false)
	if code != exitcode.Success || stdout != "no tasks found\n" {
		t.Errorf("expected 'no tasks found', got %q (code %d)", stdout, code)
	}

	stdout, _, _ = runCommand(t, &commands.ListCmd{}, svc, nil, true)
	if stdout != "" {
		t.Errorf("expected no output with --quiet, got %q", stdout)
	}
}

func TestListCommand_UnexpectedArgument(t *testing.T) {
	svc, _ := loggedIn(t)

	_, stderr, code := runCommand(t, &commands.ListCmd{}, svc, []string{"extra"}, false)
	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if stderr != "error: unexpected argument: extra\n" {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestAddCommand(t *testing.T) {
	svc, fake := loggedIn(t)

	cmd := &commands.AddCmd{}
	args := parseFlags(t, cmd, "-d", "two liters", "Buy", "milk")
	stdout, stderr, code := runCommand(t, cmd, svc, args, false)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if stdout != "ok\n" {
		t.Errorf("expected ok, got %q", stdout)
	}
	stored := fake.Todos(email)
	if len(stored) != 1 || stored[0].Title != "Buy milk" || stored[0].Description != "two liters" {
		t.Errorf("unexpected server state %+v", stored)
	}
	if got := svc.Tasks(); len(got) != 1 || got[0].ID != stored[0].ID {
		t.Errorf("expected created task in the collection, got %+v", got)
	}
}

func TestAddCommand_Invalid(t *testing.T) {
	svc, fake := loggedIn(t)

	tests := []struct {
		name   string
		args   []string
		stderr string
	}{
		{"no title", nil, "error: title required\n"},
		{"blank title", []string{"  "}, "error: title required\n"},
		{"title too long", []string{strings.Repeat("x", 256)}, "error: create task: validation error: title too long\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := runCommand(t, &commands.AddCmd{}, svc, tt.args, false)
			if code != exitcode.UserError {
				t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
			}
			if stderr != tt.stderr {
				t.Errorf("expected %q, got %q", tt.stderr, stderr)
			}
		})
	}
	if n := fake.Requests("POST /todos"); n != 0 {
		t.Errorf("invalid input must not reach the server, got %d requests", n)
	}
}

func TestAddCommand_ServerDown(t *testing.T) {
	svc, fake := loggedIn(t)
	fake.FailNext(4, http.StatusServiceUnavailable)

	_, stderr, code := runCommand(t, &commands.AddCmd{}, svc, []string{"later"}, false)
	if code != exitcode.BackendError {
		t.Errorf("expected exit code %d, got %d", exitcode.BackendError, code)
	}
	if !strings.Contains(stderr, "HTTP 503") {
		t.Errorf("expected status in error, got %q", stderr)
	}
	if len(svc.Tasks()) != 0 {
		t.Error("failed create must not add a task")
	}
}

func TestEditCommand(t *testing.T) {
	svc, fake := loggedIn(t, titled("old")...)
	if _, err := svc.SaveTask(t.Context(), service.TaskInput{Title: "with notes", Description: "keep me"}); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	stdout, stderr, code := runCommand(t, &commands.EditCmd{}, svc, []string{"1", "renamed", "task"}, false)
	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if stdout != "ok\n" {
		t.Errorf("expected ok, got %q", stdout)
	}
	stored := fake.Todos(email)
	if stored[0].Title != "renamed task" || stored[0].Description != "keep me" {
		t.Errorf("expected title replaced and description kept, got %+v", stored[0])
	}

	cmd := &commands.EditCmd{}
	args := parseFlags(t, cmd, "--description", "", "2", "old")
	if _, stderr, code := runCommand(t, cmd, svc, args, true); code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if got := fake.Todos(email)[1]; got.Title != "old" || got.Description != "" {
		t.Errorf("expected description cleared, got %+v", got)
	}
	if _, ok := svc.EditTarget(); ok {
		t.Error("edit target should be cleared")
	}
}

func TestEditCommand_Errors(t *testing.T) {
	svc, fake := loggedIn(t, titled("only")...)

	tests := []struct {
		name   string
		args   []string
		code   int
		stderr string
	}{
		{"missing number", nil, exitcode.UserError, "error: validation error: task number required\n"},
		{"not a number", []string{"a", "x"}, exitcode.UserError, "error: validation error: invalid task number: a\n"},
		{"out of range", []string{"2", "x"}, exitcode.UserError, "error: validation error: task number out of range: 2\n"},
		{"missing title", []string{"1"}, exitcode.UserError, "error: title required\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := runCommand(t, &commands.EditCmd{}, svc, tt.args, false)
			if code != tt.code {
				t.Errorf("expected exit code %d, got %d", tt.code, code)
			}
			if stderr != tt.stderr {
				t.Errorf("expected %q, got %q", tt.stderr, stderr)
			}
		})
	}

	fake.FailNext(4, http.StatusInternalServerError)
	if _, _, code := runCommand(t, &commands.EditCmd{}, svc, []string{"1", "new"}, false); code != exitcode.BackendError {
		t.Errorf("expected exit code %d, got %d", exitcode.BackendError, code)
	}
	if _, ok := svc.EditTarget(); ok {
		t.Error("failed edit should not leave an edit in progress")
	}
	if svc.Tasks()[0].Title != "only" {
		t.Errorf("failed edit should keep the task, got %+v", svc.Tasks()[0])
	}
}

func TestDoneCommand(t *testing.T) {
	svc, fake := loggedIn(t, titled("a", "b")...)

	// "b" is newest, so it is number 1.
	if _, stderr, code := runCommand(t, &commands.DoneCmd{}, svc, []string{"1"}, false); code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if !fake.Todos(email)[0].Completed {
		t.Error("expected b completed on the server")
	}

	// Completed tasks sort last, so b is now number 2.
	if _, _, code := runCommand(t, &commands.DoneCmd{}, svc, []string{"2"}, true); code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if fake.Todos(email)[0].Completed {
		t.Error("expected b reopened")
	}
}

func TestDoneCommand_Rollback(t *testing.T) {
	svc, fake := loggedIn(t, titled("a")...)
	fake.FailNext(4, http.StatusBadGateway)

	if _, _, code := runCommand(t, &commands.DoneCmd{}, svc, []string{"1"}, false); code != exitcode.BackendError {
		t.Errorf("expected exit code %d, got %d", exitcode.BackendError, code)
	}
	if svc.Tasks()[0].Completed {
		t.Error("expected completion rolled back")
	}
}

func TestRmCommand(t *testing.T) {
	svc, fake := loggedIn(t, titled("a", "b")...)

	fake.FailNext(4, http.StatusServiceUnavailable)
	if _, _, code := runCommand(t, &commands.RmCmd{}, svc, []string{"2"}, false); code != exitcode.BackendError {
		t.Errorf("expected exit code %d, got %d", exitcode.BackendError, code)
	}
	if got := svc.Tasks(); len(got) != 2 || got[1].Title != "a" {
		t.Errorf("expected task restored, got %+v", got)
	}

	stdout, _, code := runCommand(t, &commands.RmCmd{}, svc, []string{"2"}, false)
	if code != exitcode.Success || stdout != "ok\n" {
		t.Fatalf("expected ok, got %q (code %d)", stdout, code)
	}
	if stored := fake.Todos(email); len(stored) != 1 || stored[0].Title != "b" {
		t.Errorf("expected only b left, got %+v", stored)
	}
}

func TestCommands_ExpiredSession(t *testing.T) {
	svc, fake := loggedIn(t, titled("a")...)
	fake.RevokeTokens()

	_, stderr, code := runCommand(t, &commands.DoneCmd{}, svc, []string{"1"}, false)
	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if !strings.Contains(stderr, "Could not validate credentials") {
		t.Errorf("expected server detail, got %q", stderr)
	}
	if _, ok := svc.CurrentUser(); ok {
		t.Error("expected the session to end")
	}
	if len(svc.Tasks()) != 0 {
		t.Error("expected tasks discarded")
	}
}
