// Package testutil provides testing utilities.
package testutil

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"todo/internal/api"
)

const maxPictureBytes = 5 << 20

type fakeUser struct {
	api.User
	hash []byte
}

// FakeAPI is an in-memory remote to-do store served over HTTP.
type FakeAPI struct {
	srv    *httptest.Server
	secret []byte

	mu       sync.Mutex
	users    map[string]*fakeUser // by email
	todos    map[string][]api.Todo
	gen      int
	failNext []int
	failOn   map[string][]int
	requests map[string]int

	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration
}

// NewFakeAPI starts a fake server that is closed when the test ends.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()
	f := &FakeAPI{
		secret:   []byte("test-secret-" + uuid.NewString()),
		users:    make(map[string]*fakeUser),
		todos:    make(map[string][]api.Todo),
		requests: make(map[string]int),
		failOn:   make(map[string][]int),
		TokenTTL: time.Hour,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(f.countAndInject)

	e.POST("/auth/register", f.register)
	e.POST("/auth/login", f.login)

	e.GET("/auth/me", f.me, f.requireToken)
	e.GET("/todos", f.listTodos, f.requireToken)
	e.POST("/todos", f.createTodo, f.requireToken)
	e.PUT("/todos/:id", f.updateTodo, f.requireToken)
	e.DELETE("/todos/:id", f.deleteTodo, f.requireToken)
	e.PUT("/profile/picture", f.updatePicture, f.requireToken)
	e.PATCH("/profile/update", f.updateProfile, f.requireToken)

	f.srv = httptest.NewServer(e)
	t.Cleanup(f.srv.Close)
	return f
}

// URL is the server base URL.
func (f *FakeAPI) URL() string { return f.srv.URL }

// Close stops the server; later requests fail with connection errors.
func (f *FakeAPI) Close() { f.srv.Close() }

// AddUser creates an account and returns its id.
func (f *FakeAPI) AddUser(email, password string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addUserLocked(email, password).ID
}

func (f *FakeAPI) addUserLocked(email, password string) *fakeUser {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	u := &fakeUser{
		User: api.User{
			ID:        uuid.NewString(),
			Email:     email,
			CreatedAt: api.Timestamp{Time: time.Now().UTC()},
		},
		hash: hash,
	}
	f.users[email] = u
	return u
}

// AddTask stores a task for the user. Tasks added later are newer.
func (f *FakeAPI) AddTask(email, title string, completed bool) api.Todo {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[email]
	if u == nil {
		panic("unknown user " + email)
	}
	todo := api.Todo{
		ID:        uuid.NewString(),
		Title:     title,
		Completed: completed,
		CreatedAt: api.Timestamp{Time: time.Now().UTC()},
		UserID:    u.ID,
	}
	f.todos[u.ID] = append(f.todos[u.ID], todo)
	return todo
}

// Token issues a valid token for the user.
func (f *FakeAPI) Token(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[email]
	if u == nil {
		panic("unknown user " + email)
	}
	return f.tokenLocked(u.ID)
}

func (f *FakeAPI) tokenLocked(userID string) string {
	claims := jwt.MapClaims{
		"sub": userID,
		"gen": f.gen,
		"exp": time.Now().Add(f.TokenTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(f.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

// RevokeTokens invalidates every token issued so far.
func (f *FakeAPI) RevokeTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
}

// FailNext makes the next n requests fail with status.
func (f *FakeAPI) FailNext(n, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.failNext = append(f.failNext, status)
	}
}

// FailRoute makes the next n requests to route fail with status,
// e.g. FailRoute("GET /todos", 4, 503).
func (f *FakeAPI) FailRoute(route string, n, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.failOn[route] = append(f.failOn[route], status)
	}
}

// Requests returns how many requests hit a route, e.g. "PUT /todos/:id".
func (f *FakeAPI) Requests(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[route]
}

// Todos returns the user's stored tasks, newest first.
func (f *FakeAPI) Todos(email string) []api.Todo {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[email]
	if u == nil {
		return nil
	}
	return f.listLocked(u.ID)
}

// User returns the stored account.
func (f *FakeAPI) User(email string) (api.User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[email]
	if u == nil {
		return api.User{}, false
	}
	return u.User, true
}

func (f *FakeAPI) listLocked(userID string) []api.Todo {
	stored := f.todos[userID]
	out := make([]api.Todo, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	return out
}

func detail(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"detail": msg})
}

func (f *FakeAPI) countAndInject(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		f.mu.Lock()
		route := c.Request().Method + " " + c.Path()
		f.requests[route]++
		status := 0
		if pending := f.failOn[route]; len(pending) > 0 {
			status = pending[0]
			f.failOn[route] = pending[1:]
		} else if len(f.failNext) > 0 {
			status = f.failNext[0]
			f.failNext = f.failNext[1:]
		}
		f.mu.Unlock()

		if status != 0 {
			return detail(c, status, http.StatusText(status))
		}
		return next(c)
	}
}

func (f *FakeAPI) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, ok := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
		if !ok {
			return detail(c, http.StatusUnauthorized, "Not authenticated")
		}
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return f.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			return detail(c, http.StatusUnauthorized, "Could not validate credentials")
		}

		userID, _ := claims["sub"].(string)
		gen, _ := claims["gen"].(float64)

		f.mu.Lock()
		var u *fakeUser
		for _, candidate := range f.users {
			if candidate.ID == userID {
				u = candidate
			}
		}
		valid := u != nil && int(gen) == f.gen
		f.mu.Unlock()
		if !valid {
			return detail(c, http.StatusUnauthorized, "Could not validate credentials")
		}
		c.Set("user", u)
		return next(c)
	}
}

func currentUser(c echo.Context) *fakeUser {
	return c.Get("user").(*fakeUser)
}

func (f *FakeAPI) register(c echo.Context) error {
	var in api.Credentials
	if err := c.Bind(&in); err != nil {
		return detail(c, http.StatusUnprocessableEntity, "invalid body")
	}
	if in.Email == "" || len(in.Password) < 1 {
		return detail(c, http.StatusUnprocessableEntity, "email and password required")
	}

	f.mu.Lock()
	if _, exists := f.users[in.Email]; exists {
		f.mu.Unlock()
		return detail(c, http.StatusBadRequest, "Email already registered")
	}
	u := f.addUserLocked(in.Email, in.Password)
	resp := api.AuthResponse{AccessToken: f.tokenLocked(u.ID), TokenType: "bearer", User: u.User}
	f.mu.Unlock()

	return c.JSON(http.StatusOK, resp)
}

func (f *FakeAPI) login(c echo.Context) error {
	email := c.FormValue("username")
	password := c.FormValue("password")

	f.mu.Lock()
	u := f.users[email]
	f.mu.Unlock()
	if u == nil || bcrypt.CompareHashAndPassword(u.hash, []byte(password)) != nil {
		return detail(c, http.StatusUnauthorized, "Incorrect email or password")
	}

	f.mu.Lock()
	resp := api.AuthResponse{AccessToken: f.tokenLocked(u.ID), TokenType: "bearer", User: u.User}
	f.mu.Unlock()
	return c.JSON(http.StatusOK, resp)
}

func (f *FakeAPI) me(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return c.JSON(http.StatusOK, currentUser(c).User)
}

func (f *FakeAPI) listTodos(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return c.JSON(http.StatusOK, f.listLocked(currentUser(c).ID))
}

func (f *FakeAPI) createTodo(c echo.Context) error {
	var in api.CreateTodoRequest
	if err := c.Bind(&in); err != nil || strings.TrimSpace(in.Title) == "" {
		return detail(c, http.StatusUnprocessableEntity, "title required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	u := currentUser(c)
	todo := api.Todo{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		CreatedAt:   api.Timestamp{Time: time.Now().UTC()},
		UserID:      u.ID,
	}
	f.todos[u.ID] = append(f.todos[u.ID], todo)
	return c.JSON(http.StatusOK, todo)
}

func (f *FakeAPI) findLocked(userID, id string) int {
	for i, t := range f.todos[userID] {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (f *FakeAPI) updateTodo(c echo.Context) error {
	var in api.UpdateTodoRequest
	if err := c.Bind(&in); err != nil {
		return detail(c, http.StatusUnprocessableEntity, "invalid body")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	u := currentUser(c)
	i := f.findLocked(u.ID, c.Param("id"))
	if i < 0 {
		return detail(c, http.StatusNotFound, "Todo not found")
	}
	todo := &f.todos[u.ID][i]
	if in.Title != nil {
		todo.Title = *in.Title
	}
	if in.Description != nil {
		todo.Description = *in.Description
	}
	if in.Completed != nil {
		todo.Completed = *in.Completed
	}
	return c.JSON(http.StatusOK, *todo)
}

func (f *FakeAPI) deleteTodo(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := currentUser(c)
	i := f.findLocked(u.ID, c.Param("id"))
	if i < 0 {
		return detail(c, http.StatusNotFound, "Todo not found")
	}
	f.todos[u.ID] = append(f.todos[u.ID][:i], f.todos[u.ID][i+1:]...)
	return c.NoContent(http.StatusNoContent)
}

func (f *FakeAPI) updatePicture(c echo.Context) error {
	fh, err := c.FormFile("profile_picture")
	if err != nil {
		return detail(c, http.StatusUnprocessableEntity, "profile_picture required")
	}
	contentType := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return detail(c, http.StatusBadRequest, "Invalid file type")
	}
	file, err := fh.Open()
	if err != nil {
		return err
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxPictureBytes+1))
	if err != nil {
		return err
	}
	if len(data) > maxPictureBytes {
		return detail(c, http.StatusBadRequest, "File too large")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	u := currentUser(c)
	u.ProfilePicture = fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
	return c.JSON(http.StatusOK, u.User)
}

func (f *FakeAPI) updateProfile(c echo.Context) error {
	var in api.UpdateProfileRequest
	if err := c.Bind(&in); err != nil {
		return detail(c, http.StatusUnprocessableEntity, "invalid body")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	u := currentUser(c)
	if in.Email != nil && *in.Email != u.Email {
		if _, taken := f.users[*in.Email]; taken {
			return detail(c, http.StatusBadRequest, "Email already registered")
		}
		delete(f.users, u.Email)
		u.Email = *in.Email
		f.users[u.Email] = u
	}
	if in.ProfilePicture != nil {
		u.ProfilePicture = *in.ProfilePicture
	}
	return c.JSON(http.StatusOK, u.User)
}
