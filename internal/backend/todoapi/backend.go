// Package todoapi implements service.Service against the remote to-do store.
//
// It wires the session store, the API client, the auth manager and the task
// syncer together: the client reports rejected tokens to the manager, and the
// syncer follows the manager's state. Session ends reach the syncer through a
// subscription; session starts are followed by a load under the caller's ctx.
package todoapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"todo/internal/api"
	"todo/internal/apierr"
	"todo/internal/auth"
	"todo/internal/config"
	"todo/internal/logging"
	"todo/internal/service"
	"todo/internal/session"
	"todo/internal/tasks"
)

// Options overrides the parts New would otherwise build from config.
type Options struct {
	Store      session.Store
	HTTPClient *http.Client
	Logger     log.FieldLogger
}

// Backend implements service.Service.
type Backend struct {
	log    log.FieldLogger
	store  session.Store
	rdb    *redis.Client
	client *api.Client
	auth   *auth.Manager
	tasks  *tasks.Syncer
}

var _ service.Service = (*Backend)(nil)

// New creates a backend from config. No network call is made until Init.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Backend, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	b := &Backend{log: logger, store: opts.Store}
	if b.store == nil {
		if err := b.openStore(cfg); err != nil {
			return nil, err
		}
	}

	client, err := api.New(b.store, api.Options{
		BaseURL:    cfg.APIURL,
		HTTPClient: opts.HTTPClient,
		Timeout:    cfg.RequestTimeout,
		MaxRetries: maxRetries(cfg.MaxRetries),
		RetryBase:  cfg.RetryBase,
		Logger:     logger.WithField("component", "api"),
	})
	if err != nil {
		b.Close()
		return nil, err
	}
	b.client = client
	b.auth = auth.NewManager(client, b.store, logger.WithField("component", "auth"))
	b.tasks = tasks.NewSyncer(client, logger.WithField("component", "tasks"))

	client.SetAuthFailureHandler(b.auth.ForceLogout)
	b.auth.Subscribe(b.onAuthChange)
	return b, nil
}

func (b *Backend) openStore(cfg *config.Config) error {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		rdb, err := session.OpenRedis(cfg.RedisURL)
		if err != nil {
			return err
		}
		b.rdb = rdb
		b.store = session.NewRedisStore(rdb, session.StorageKey)
	default:
		if err := cfg.EnsureDir(); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		b.store = session.NewFileStore(cfg.TokenPath())
	}
	return nil
}

// Close releases the Redis connection, if any.
func (b *Backend) Close() error {
	if b.rdb != nil {
		return b.rdb.Close()
	}
	return nil
}

// maxRetries maps the config value onto api.Options, where zero means default.
func maxRetries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

// onAuthChange discards the collection when the session ends, including a
// forced logout from inside a task call.
func (b *Backend) onAuthChange(snap auth.Snapshot) {
	if snap.State == auth.StateUnauthenticated {
		b.tasks.HandleAuthState(context.Background(), snap)
	}
}

// follow brings the collection in line with the current session.
func (b *Backend) follow(ctx context.Context) error {
	return b.tasks.HandleAuthState(ctx, b.auth.Snapshot())
}

// Init implements service.Service.
// A restored session whose tasks could not be loaded returns the load error.
func (b *Backend) Init(ctx context.Context) error {
	if err := b.auth.Init(ctx); err != nil {
		return err
	}
	if !b.auth.IsAuthenticated() {
		return nil
	}
	return b.follow(ctx)
}

// CurrentUser implements service.Service.
func (b *Backend) CurrentUser() (service.User, bool) {
	return b.auth.User()
}

// TokenExpiry implements service.Service.
func (b *Backend) TokenExpiry(ctx context.Context) string {
	token, err := b.store.Get(ctx)
	if err != nil || token == "" {
		return ""
	}
	exp, ok := session.Expiry(token)
	if !ok {
		return ""
	}
	return exp.UTC().Format(time.RFC3339)
}

// Login implements service.Service.
func (b *Backend) Login(ctx context.Context, email, password string) error {
	if err := b.auth.Login(ctx, email, password); err != nil {
		return err
	}
	b.loadAfterLogin(ctx)
	return nil
}

// Register implements service.Service.
func (b *Backend) Register(ctx context.Context, email, password string) error {
	if err := b.auth.Register(ctx, email, password); err != nil {
		return err
	}
	b.loadAfterLogin(ctx)
	return nil
}

// loadAfterLogin loads the new session's tasks. The session stands even when
// the load fails; LoadTasks retries it.
func (b *Backend) loadAfterLogin(ctx context.Context) {
	if err := b.follow(ctx); err != nil {
		b.log.WithError(err).Warn("failed to load tasks")
	}
}

// Logout implements service.Service.
func (b *Backend) Logout(ctx context.Context) error {
	return b.auth.Logout(ctx)
}

// RefreshUser implements service.Service.
func (b *Backend) RefreshUser(ctx context.Context) error {
	return b.auth.RefreshUser(ctx)
}

// UpdateProfilePicture implements service.Service.
func (b *Backend) UpdateProfilePicture(ctx context.Context, filename string, r io.Reader) error {
	return b.auth.UpdateProfilePicture(ctx, filename, r)
}

// UpdateProfile implements service.Service.
func (b *Backend) UpdateProfile(ctx context.Context, update service.ProfileUpdate) error {
	return b.auth.UpdateProfile(ctx, update)
}

// Tasks implements service.Service.
func (b *Backend) Tasks() []service.Task {
	return b.tasks.Tasks()
}

// LoadTasks implements service.Service.
func (b *Backend) LoadTasks(ctx context.Context) error {
	if !b.auth.IsAuthenticated() {
		return apierr.ErrNotAuthenticated
	}
	return b.tasks.Load(ctx)
}

// SaveTask implements service.Service.
func (b *Backend) SaveTask(ctx context.Context, input service.TaskInput) (service.Task, error) {
	if !b.auth.IsAuthenticated() {
		return service.Task{}, apierr.ErrNotAuthenticated
	}
	return b.tasks.Create(ctx, input)
}

// EditTask implements service.Service.
func (b *Backend) EditTask(id string) error {
	return b.tasks.Edit(id)
}

// CancelEdit implements service.Service.
func (b *Backend) CancelEdit() {
	b.tasks.CancelEdit()
}

// EditTarget implements service.Service.
func (b *Backend) EditTarget() (service.Task, bool) {
	return b.tasks.EditTarget()
}

// ToggleTask implements service.Service.
func (b *Backend) ToggleTask(ctx context.Context, id string) error {
	return b.tasks.Toggle(ctx, id)
}

// DeleteTask implements service.Service.
func (b *Backend) DeleteTask(ctx context.Context, id string) error {
	return b.tasks.Delete(ctx, id)
}
