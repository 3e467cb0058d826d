package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"todo/internal/service"
)

// Timestamp is an ISO-8601 instant. Values without a zone offset are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses the formats the remote store is known to emit.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp: %q", s)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Todo is the wire shape of a task.
type Todo struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
	CreatedAt   Timestamp `json:"created_at"`
	UserID      string    `json:"user_id"`
}

// ToTask converts the wire shape to the local representation, dropping UserID.
func (t Todo) ToTask() service.Task {
	return service.Task{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt.Time,
	}
}

// FromTask builds the wire shape of a local task.
func FromTask(task service.Task, userID string) Todo {
	return Todo{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Completed:   task.Completed,
		CreatedAt:   Timestamp{task.CreatedAt},
		UserID:      userID,
	}
}

// User is the wire shape of the authenticated principal.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	CreatedAt      Timestamp `json:"created_at"`
	ProfilePicture string    `json:"profile_picture,omitempty"`
}

// ToUser converts the wire shape to the local representation.
func (u User) ToUser() service.User {
	return service.User{
		ID:             u.ID,
		Email:          u.Email,
		CreatedAt:      u.CreatedAt.Time,
		ProfilePicture: u.ProfilePicture,
	}
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

// Credentials is the register payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateTodoRequest is the create payload.
type CreateTodoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// UpdateTodoRequest is a partial update; nil fields are not sent.
type UpdateTodoRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// UpdateProfileRequest is a partial profile update.
type UpdateProfileRequest struct {
	Email          *string `json:"email,omitempty"`
	ProfilePicture *string `json:"profile_picture,omitempty"`
}

// errorBody is the error payload of the remote store.
// Detail is either a message or a list of validation entries.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

type validationEntry struct {
	Msg string `json:"msg"`
}

// errorDetail extracts a human readable message from an error response body.
func errorDetail(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && len(eb.Detail) > 0 {
		var s string
		if err := json.Unmarshal(eb.Detail, &s); err == nil {
			return s
		}
		var entries []validationEntry
		if err := json.Unmarshal(eb.Detail, &entries); err == nil && len(entries) > 0 {
			return entries[0].Msg
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
