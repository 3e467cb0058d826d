// Package auth owns the identity of the current user and the session state
// derived from the session store and the remote store.
package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"todo/internal/api"
	"todo/internal/apierr"
	"todo/internal/logging"
	"todo/internal/service"
	"todo/internal/session"
)

// MaxPictureBytes is the largest profile picture the remote store accepts.
const MaxPictureBytes = 5 << 20

var allowedPictureTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// State is the authentication status.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Snapshot is the state handed to subscribers. User is nil unless authenticated.
type Snapshot struct {
	State State
	User  *service.User
}

// Remote is the part of the API client the manager needs.
type Remote interface {
	Login(ctx context.Context, email, password string) (api.AuthResponse, error)
	Register(ctx context.Context, email, password string) (api.AuthResponse, error)
	CurrentUser(ctx context.Context) (api.User, error)
	UploadProfilePicture(ctx context.Context, filename, contentType string, data []byte) (api.User, error)
	UpdateProfile(ctx context.Context, in api.UpdateProfileRequest) (api.User, error)
}

type listener struct {
	id int
	fn func(Snapshot)
}

// Manager runs the unauthenticated/authenticating/authenticated state machine.
// The user snapshot only changes after the remote store confirms.
type Manager struct {
	remote Remote
	store  session.Store
	log    log.FieldLogger

	mu        sync.Mutex
	state     State
	user      *service.User
	listeners []listener
	nextID    int
}

// NewManager returns a manager in StateAuthenticating; call Init to settle it.
func NewManager(remote Remote, store session.Store, logger log.FieldLogger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		remote: remote,
		store:  store,
		log:    logger,
		state:  StateAuthenticating,
	}
}

// Subscribe registers fn for state changes and returns a function that removes it.
// fn is called outside the manager's lock.
func (m *Manager) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, listener{id: id, fn: fn})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsAuthenticated reports whether a confirmed user is held.
func (m *Manager) IsAuthenticated() bool {
	return m.State() == StateAuthenticated
}

// User returns a copy of the held user.
func (m *Manager) User() (service.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return service.User{}, false
	}
	return *m.user, true
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{State: m.state}
	if m.user != nil {
		u := *m.user
		snap.User = &u
	}
	return snap
}

// transition sets the state and notifies subscribers if anything changed.
func (m *Manager) transition(state State, user *service.User) {
	m.mu.Lock()
	changed := m.state != state || !sameUser(m.user, user)
	m.state = state
	m.user = user
	snap := m.snapshotLocked()
	listeners := append([]listener(nil), m.listeners...)
	m.mu.Unlock()

	if !changed {
		return
	}
	m.log.WithField("state", state).Debug("session state changed")
	for _, l := range listeners {
		l.fn(snap)
	}
}

func sameUser(a, b *service.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Init validates a stored token against the remote store.
// An authentication failure clears the token; other failures leave it stored
// so a later Init can try again.
func (m *Manager) Init(ctx context.Context) error {
	token, err := m.store.Get(ctx)
	if err != nil {
		m.transition(StateUnauthenticated, nil)
		return err
	}
	if token == "" {
		m.transition(StateUnauthenticated, nil)
		return nil
	}

	u, err := m.remote.CurrentUser(ctx)
	if err != nil {
		if apierr.IsKind(err, apierr.KindAuthentication) {
			m.clearToken(ctx)
		}
		m.transition(StateUnauthenticated, nil)
		return err
	}

	user := u.ToUser()
	m.transition(StateAuthenticated, &user)
	return nil
}

// Login exchanges credentials for a session.
// On failure the state and the stored token are left unchanged.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	return m.authenticate(ctx, "login", email, password, m.remote.Login)
}

// Register creates an account and starts a session.
func (m *Manager) Register(ctx context.Context, email, password string) error {
	return m.authenticate(ctx, "register", email, password, m.remote.Register)
}

func (m *Manager) authenticate(ctx context.Context, op, email, password string,
	call func(context.Context, string, string) (api.AuthResponse, error)) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apierr.Validation(op, "email required")
	}
	if password == "" {
		return apierr.Validation(op, "password required")
	}

	resp, err := call(ctx, email, password)
	if err != nil {
		return err
	}
	if resp.AccessToken == "" {
		return &apierr.Error{Kind: apierr.KindServer, Op: op, Detail: "response carried no access token"}
	}
	if err := m.store.Set(ctx, resp.AccessToken); err != nil {
		return err
	}

	user := resp.User.ToUser()
	m.transition(StateAuthenticated, &user)
	return nil
}

// Logout clears the token and drops the user.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.store.Clear(ctx)
	m.transition(StateUnauthenticated, nil)
	return err
}

// ForceLogout ends the session after the remote store rejected the token.
func (m *Manager) ForceLogout() {
	if m.State() == StateUnauthenticated {
		m.clearToken(context.Background())
		return
	}
	m.log.Warn("session rejected by server, logging out")
	m.clearToken(context.Background())
	m.transition(StateUnauthenticated, nil)
}

func (m *Manager) clearToken(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.log.WithError(err).Warn("failed to clear session token")
	}
}

// RefreshUser re-fetches the current user. Any failure ends the session.
func (m *Manager) RefreshUser(ctx context.Context) error {
	token, err := m.store.Get(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		m.transition(StateUnauthenticated, nil)
		return apierr.ErrNotAuthenticated
	}

	u, err := m.remote.CurrentUser(ctx)
	if err != nil {
		m.clearToken(ctx)
		m.transition(StateUnauthenticated, nil)
		return err
	}
	user := u.ToUser()
	m.transition(StateAuthenticated, &user)
	return nil
}

// UpdateProfilePicture validates and uploads an image, then adopts the
// user returned by the upload.
func (m *Manager) UpdateProfilePicture(ctx context.Context, filename string, r io.Reader) error {
	const op = "update profile picture"
	if !m.IsAuthenticated() {
		return apierr.ErrNotAuthenticated
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxPictureBytes+1))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return apierr.Validation(op, "file is empty")
	}
	if len(data) > MaxPictureBytes {
		return apierr.Validation(op, "file too large, maximum size is 5MB")
	}
	contentType := http.DetectContentType(data)
	if !allowedPictureTypes[contentType] {
		return apierr.Validation(op, "invalid file type, only JPEG, PNG, GIF and WebP are allowed")
	}

	u, err := m.remote.UploadProfilePicture(ctx, filename, contentType, data)
	if err != nil {
		return err
	}
	return m.adopt(u)
}

// UpdateProfile applies a partial profile change.
func (m *Manager) UpdateProfile(ctx context.Context, update service.ProfileUpdate) error {
	const op = "update profile"
	if !m.IsAuthenticated() {
		return apierr.ErrNotAuthenticated
	}

	var req api.UpdateProfileRequest
	if update.Email != nil {
		email := strings.TrimSpace(*update.Email)
		if email == "" {
			return apierr.Validation(op, "email must not be empty")
		}
		req.Email = &email
	}
	if update.ProfilePicture != nil {
		pic := *update.ProfilePicture
		req.ProfilePicture = &pic
	}
	if req.Email == nil && req.ProfilePicture == nil {
		return apierr.Validation(op, "nothing to update")
	}

	u, err := m.remote.UpdateProfile(ctx, req)
	if err != nil {
		return err
	}
	return m.adopt(u)
}

// adopt replaces the snapshot with a confirmed user, unless the session ended
// while the call was in flight.
func (m *Manager) adopt(u api.User) error {
	if !m.IsAuthenticated() {
		return apierr.ErrNotAuthenticated
	}
	user := u.ToUser()
	m.transition(StateAuthenticated, &user)
	return nil
}

// IsAuthError reports whether err should end the session.
func IsAuthError(err error) bool {
	return errors.Is(err, apierr.ErrNotAuthenticated) || apierr.IsKind(err, apierr.KindAuthentication)
}
