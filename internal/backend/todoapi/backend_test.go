package todoapi_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"todo/internal/apierr"
	"todo/internal/backend/todoapi"
	"todo/internal/config"
	"todo/internal/service"
	"todo/internal/session"
	"todo/internal/testutil"
)

const (
	email    = "a@b.com"
	password = "x"
)

func testConfig(t *testing.T, fake *testutil.FakeAPI) *config.Config {
	t.Helper()
	cfg := &config.Config{Dir: t.TempDir(), Settings: config.DefaultSettings()}
	cfg.APIURL = fake.URL()
	cfg.RetryBase = time.Millisecond
	cfg.RequestTimeout = 2 * time.Second
	return cfg
}

func newBackend(t *testing.T, fake *testutil.FakeAPI, store session.Store) *todoapi.Backend {
	t.Helper()
	b, err := todoapi.New(context.Background(), testConfig(t, fake), todoapi.Options{Store: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func loggedIn(t *testing.T, titles ...string) (*todoapi.Backend, *testutil.FakeAPI, session.Store) {
	t.Helper()
	fake := testutil.NewFakeAPI(t)
	fake.AddUser(email, password)
	for _, title := range titles {
		fake.AddTask(email, title, false)
	}
	store := session.NewMemoryStore("")
	b := newBackend(t, fake, store)
	if err := b.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := b.Login(context.Background(), email, password); err != nil {
		t.Fatalf("Login: %v", err)
	}
	return b, fake, store
}

func TestLoginLoadsTasks(t *testing.T) {
	b, _, _ := loggedIn(t, "first", "second")

	u, ok := b.CurrentUser()
	if !ok || u.Email != email {
		t.Fatalf("expected user %s, got %+v", email, u)
	}
	got := b.Tasks()
	if len(got) != 2 || got[0].Title != "second" {
		t.Errorf("expected newest first [second first], got %+v", got)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	fake.AddUser(email, password)
	b := newBackend(t, fake, session.NewMemoryStore(""))
	_ = b.Init(context.Background())

	err := b.Login(context.Background(), email, "wrong")
	if !apierr.IsKind(err, apierr.KindAuthentication) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Incorrect email or password") {
		t.Errorf("expected server detail in error, got %q", err)
	}
	if fake.Requests("POST /auth/login") != 1 {
		t.Errorf("401 must not be retried, got %d attempts", fake.Requests("POST /auth/login"))
	}
}

func TestRegister(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	b := newBackend(t, fake, session.NewMemoryStore(""))
	_ = b.Init(context.Background())

	if err := b.Register(context.Background(), "new@b.com", "pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u, ok := b.CurrentUser(); !ok || u.Email != "new@b.com" {
		t.Errorf("expected new@b.com, got %+v", u)
	}
	if err := b.Register(context.Background(), "new@b.com", "pw"); !apierr.IsKind(err, apierr.KindServer) {
		t.Errorf("expected duplicate registration to fail, got %v", err)
	}
}

func TestInitWithStoredToken(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	fake.AddUser(email, password)
	fake.AddTask(email, "persisted", false)

	cfg := testConfig(t, fake)
	store := session.NewFileStore(cfg.TokenPath())
	if err := store.Set(context.Background(), fake.Token(email)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	b, err := todoapi.New(context.Background(), cfg, todoapi.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, ok := b.CurrentUser(); !ok {
		t.Fatal("expected session restored from token file")
	}
	if len(b.Tasks()) != 1 {
		t.Errorf("expected tasks loaded, got %d", len(b.Tasks()))
	}
	if b.TokenExpiry(context.Background()) == "" {
		t.Error("expected token expiry to be known")
	}
}

func TestRevokedTokenForcesLogout(t *testing.T) {
	b, fake, store := loggedIn(t, "a")
	id := b.Tasks()[0].ID

	fake.RevokeTokens()
	err := b.ToggleTask(context.Background(), id)
	if !apierr.IsKind(err, apierr.KindAuthentication) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if _, ok := b.CurrentUser(); ok {
		t.Error("expected forced logout")
	}
	if tok, _ := store.Get(context.Background()); tok != "" {
		t.Error("token should be cleared")
	}
	if len(b.Tasks()) != 0 {
		t.Error("tasks should be discarded on logout")
	}

	before := fake.Requests("GET /todos")
	if err := b.LoadTasks(context.Background()); !errors.Is(err, apierr.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
	if fake.Requests("GET /todos") != before {
		t.Error("no request should be made with the stale token")
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	b, fake, _ := loggedIn(t)

	fake.FailNext(3, http.StatusInternalServerError)
	task, err := b.SaveTask(context.Background(), service.TaskInput{Title: "eventually"})
	if err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	if task.Title != "eventually" {
		t.Errorf("unexpected task %+v", task)
	}
	if got := fake.Requests("POST /todos"); got != 4 {
		t.Errorf("expected 4 attempts, got %d", got)
	}
}

func TestRetriesExhausted(t *testing.T) {
	b, fake, _ := loggedIn(t)

	fake.FailNext(4, http.StatusBadGateway)
	_, err := b.SaveTask(context.Background(), service.TaskInput{Title: "never"})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 error, got %v", err)
	}
	if len(b.Tasks()) != 0 {
		t.Error("failed create should not add a task")
	}
}

func TestCreateOffline(t *testing.T) {
	b, fake, _ := loggedIn(t)

	fake.Close()
	_, err := b.SaveTask(context.Background(), service.TaskInput{Title: "offline"})
	if !apierr.IsKind(err, apierr.KindConnectivity) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
	if len(b.Tasks()) != 0 {
		t.Error("task should be absent")
	}
}

func TestEditThenSave(t *testing.T) {
	b, fake, _ := loggedIn(t, "old")
	id := b.Tasks()[0].ID

	if err := b.EditTask(id); err != nil {
		t.Fatalf("EditTask: %v", err)
	}
	if _, err := b.SaveTask(context.Background(), service.TaskInput{Title: "new", Description: "desc"}); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	stored := fake.Todos(email)
	if len(stored) != 1 || stored[0].Title != "new" || stored[0].Description != "desc" {
		t.Errorf("expected task replaced on the server, got %+v", stored)
	}
	if _, ok := b.EditTarget(); ok {
		t.Error("edit target should be cleared")
	}
}

func TestToggleAndDelete(t *testing.T) {
	b, fake, _ := loggedIn(t, "a", "b")
	id := b.Tasks()[0].ID

	if err := b.ToggleTask(context.Background(), id); err != nil {
		t.Fatalf("ToggleTask: %v", err)
	}
	if !fake.Todos(email)[0].Completed {
		t.Error("expected completion stored on the server")
	}

	fake.FailNext(4, http.StatusServiceUnavailable)
	if err := b.DeleteTask(context.Background(), id); err == nil {
		t.Fatal("expected delete to fail")
	}
	if got := b.Tasks(); len(got) != 2 || got[0].ID != id {
		t.Errorf("expected task restored at its index, got %+v", got)
	}

	if err := b.DeleteTask(context.Background(), id); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if len(fake.Todos(email)) != 1 {
		t.Error("expected task deleted on the server")
	}
}

func TestProfile(t *testing.T) {
	b, fake, _ := loggedIn(t)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if err := b.UpdateProfilePicture(context.Background(), "me.png", bytes.NewReader(png)); err != nil {
		t.Fatalf("UpdateProfilePicture: %v", err)
	}
	u, _ := b.CurrentUser()
	if !strings.HasPrefix(u.ProfilePicture, "data:image/png;base64,") {
		t.Errorf("unexpected picture %q", u.ProfilePicture)
	}
	if fake.Requests("GET /auth/me") != 0 {
		t.Error("upload should not re-fetch the user")
	}

	newEmail := "c@d.com"
	if err := b.UpdateProfile(context.Background(), service.ProfileUpdate{Email: &newEmail}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u, _ := b.CurrentUser(); u.Email != newEmail {
		t.Errorf("expected %s, got %s", newEmail, u.Email)
	}
	if err := b.RefreshUser(context.Background()); err != nil {
		t.Fatalf("RefreshUser after email change: %v", err)
	}
}

func TestLogout(t *testing.T) {
	b, _, store := loggedIn(t, "a")

	if err := b.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, ok := b.CurrentUser(); ok {
		t.Error("expected no user")
	}
	if len(b.Tasks()) != 0 {
		t.Error("expected tasks discarded")
	}
	if tok, _ := store.Get(context.Background()); tok != "" {
		t.Error("expected token cleared")
	}
}

func TestRedisSessionBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	fake := testutil.NewFakeAPI(t)
	fake.AddUser(email, password)

	cfg := testConfig(t, fake)
	cfg.SessionBackend = config.SessionBackendRedis
	cfg.RedisURL = "redis://" + mr.Addr()

	b, err := todoapi.New(context.Background(), cfg, todoapi.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()
	_ = b.Init(context.Background())

	if err := b.Login(context.Background(), email, password); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !mr.Exists(session.StorageKey) {
		t.Errorf("expected token under %s", session.StorageKey)
	}

	second, err := todoapi.New(context.Background(), cfg, todoapi.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer second.Close()
	if err := second.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, ok := second.CurrentUser(); !ok {
		t.Error("session should be shared through redis")
	}
}

func TestLoginAsAnotherUserReplacesTasks(t *testing.T) {
	b, fake, _ := loggedIn(t, "alice-secret")
	if err := b.EditTask(b.Tasks()[0].ID); err != nil {
		t.Fatalf("EditTask: %v", err)
	}

	fake.AddUser("b@b.com", "y")
	fake.AddTask("b@b.com", "bob-task", false)
	if err := b.Login(context.Background(), "b@b.com", "y"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if u, _ := b.CurrentUser(); u.Email != "b@b.com" {
		t.Fatalf("expected b@b.com, got %+v", u)
	}
	got := b.Tasks()
	if len(got) != 1 || got[0].Title != "bob-task" {
		t.Errorf("expected only the new user's tasks, got %+v", got)
	}
	if _, ok := b.EditTarget(); ok {
		t.Error("edit target must not carry over to another user")
	}
}

type ctxKey struct{}

// ctxRecorder records a context value seen by each request.
type ctxRecorder struct {
	mu   sync.Mutex
	seen map[string]any
}

func (r *ctxRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	r.mu.Lock()
	r.seen[req.Method+" "+req.URL.Path] = req.Context().Value(ctxKey{})
	r.mu.Unlock()
	return http.DefaultTransport.RoundTrip(req)
}

func TestLoginLoadsUnderCallerContext(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	fake.AddUser(email, password)
	rec := &ctxRecorder{seen: map[string]any{}}

	b, err := todoapi.New(context.Background(), testConfig(t, fake), todoapi.Options{
		Store:      session.NewMemoryStore(""),
		HTTPClient: &http.Client{Transport: rec},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = b.Init(context.Background())

	ctx := context.WithValue(context.Background(), ctxKey{}, "login")
	if err := b.Login(ctx, email, password); err != nil {
		t.Fatalf("Login: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.seen["GET /todos"] != "login" {
		t.Errorf("expected the task load to run under the login context, got %v", rec.seen["GET /todos"])
	}
}

func TestZeroMaxRetriesDisablesRetries(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	fake.AddUser(email, password)
	cfg := testConfig(t, fake)
	cfg.MaxRetries = 0

	b, err := todoapi.New(context.Background(), cfg, todoapi.Options{Store: session.NewMemoryStore("")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = b.Init(context.Background())
	if err := b.Login(context.Background(), email, password); err != nil {
		t.Fatalf("Login: %v", err)
	}

	fake.FailNext(1, http.StatusInternalServerError)
	if _, err := b.SaveTask(context.Background(), service.TaskInput{Title: "once"}); err == nil {
		t.Fatal("expected the single attempt to fail")
	}
	if got := fake.Requests("POST /todos"); got != 1 {
		t.Errorf("expected 1 attempt with max_retries 0, got %d", got)
	}
}
