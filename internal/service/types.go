// Package service defines the backend-agnostic interface for task operations.
package service

import "time"

// Task represents a single task item.
type Task struct {
	ID          string
	Title       string
	Description string // empty means absent
	Completed   bool
	CreatedAt   time.Time
}

// TaskInput is the payload of an add (or edit) intent.
type TaskInput struct {
	Title       string
	Description string
}

// User is the authenticated principal. The bearer token is not part of it.
type User struct {
	ID             string
	Email          string
	CreatedAt      time.Time
	ProfilePicture string // data URL or remote reference, empty if unset
}

// ProfileUpdate is a partial profile change; nil fields are left untouched.
type ProfileUpdate struct {
	Email          *string
	ProfilePicture *string
}
