package service

import (
	"context"
	"io"
)

// Service defines the interface the front end uses.
// All remote calls go through this interface.
// Commands never import the HTTP client directly.
type Service interface {
	// Init validates a stored session and, when it holds, loads the tasks.
	// An authentication error means there is no usable session.
	Init(ctx context.Context) error

	// CurrentUser returns the held user snapshot, if authenticated.
	CurrentUser() (User, bool)

	// TokenExpiry describes when the stored token expires, or "" if unknown.
	TokenExpiry(ctx context.Context) string

	// Login exchanges credentials for a session.
	Login(ctx context.Context, email, password string) error

	// Register creates an account and starts a session.
	Register(ctx context.Context, email, password string) error

	// Logout ends the session and discards local tasks.
	Logout(ctx context.Context) error

	// RefreshUser re-fetches the current user. Failure ends the session.
	RefreshUser(ctx context.Context) error

	// UpdateProfilePicture uploads an image read from r.
	UpdateProfilePicture(ctx context.Context, filename string, r io.Reader) error

	// UpdateProfile applies a partial profile change.
	UpdateProfile(ctx context.Context, update ProfileUpdate) error

	// Tasks returns the canonical collection (newest-first insertion order).
	Tasks() []Task

	// LoadTasks replaces the collection with the remote one.
	LoadTasks(ctx context.Context) error

	// SaveTask creates a task, or replaces the edit target if one is set.
	SaveTask(ctx context.Context, input TaskInput) (Task, error)

	// EditTask selects a task as the edit target.
	EditTask(id string) error

	// CancelEdit clears the edit target.
	CancelEdit()

	// EditTarget returns the task selected for editing.
	EditTarget() (Task, bool)

	// ToggleTask flips completion optimistically.
	ToggleTask(ctx context.Context, id string) error

	// DeleteTask removes a task optimistically.
	DeleteTask(ctx context.Context, id string) error
}
