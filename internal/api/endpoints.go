package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// Register creates an account.
func (c *Client) Register(ctx context.Context, email, password string) (AuthResponse, error) {
	var out AuthResponse
	req, err := jsonRequest("register", http.MethodPost, "/auth/register", false,
		Credentials{Email: email, Password: password}, &out)
	if err != nil {
		return out, err
	}
	return out, c.do(ctx, req)
}

// Login exchanges credentials for a bearer token using the form-encoded
// username/password fields the remote store expects.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	var out AuthResponse
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)
	req := request{
		op:          "login",
		method:      http.MethodPost,
		path:        "/auth/login",
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
		out:         &out,
	}
	return out, c.do(ctx, req)
}

// CurrentUser fetches the user the stored token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var out User
	req, err := jsonRequest("get current user", http.MethodGet, "/auth/me", true, nil, &out)
	if err != nil {
		return out, err
	}
	return out, c.do(ctx, req)
}

// ListTodos fetches every task of the current user.
func (c *Client) ListTodos(ctx context.Context) ([]Todo, error) {
	var out []Todo
	req, err := jsonRequest("load tasks", http.MethodGet, "/todos", true, nil, &out)
	if err != nil {
		return nil, err
	}
	if err := c.do(ctx, req); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTodo persists a new task and returns it with its authoritative id.
func (c *Client) CreateTodo(ctx context.Context, in CreateTodoRequest) (Todo, error) {
	var out Todo
	req, err := jsonRequest("create task", http.MethodPost, "/todos", true, in, &out)
	if err != nil {
		return out, err
	}
	return out, c.do(ctx, req)
}

// UpdateTodo applies a partial update.
func (c *Client) UpdateTodo(ctx context.Context, id string, in UpdateTodoRequest) (Todo, error) {
	var out Todo
	req, err := jsonRequest("update task", http.MethodPut, todoPath(id), true, in, &out)
	if err != nil {
		return out, err
	}
	return out, c.do(ctx, req)
}

// DeleteTodo removes a task.
func (c *Client) DeleteTodo(ctx context.Context, id string) error {
	req, err := jsonRequest("delete task", http.MethodDelete, todoPath(id), true, nil, nil)
	if err != nil {
		return err
	}
	return c.do(ctx, req)
}

// UploadProfilePicture sends image bytes as the multipart field profile_picture.
// contentType is the image MIME type declared for the part.
func (c *Client) UploadProfilePicture(ctx context.Context, filename, contentType string, data []byte) (User, error) {
	var out User

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="profile_picture"; filename="%s"`, escapeQuotes(filename)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return out, fmt.Errorf("upload profile picture: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return out, fmt.Errorf("upload profile picture: %w", err)
	}
	if err := mw.Close(); err != nil {
		return out, fmt.Errorf("upload profile picture: %w", err)
	}

	req := request{
		op:          "upload profile picture",
		method:      http.MethodPut,
		path:        "/profile/picture",
		auth:        true,
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
		out:         &out,
	}
	return out, c.do(ctx, req)
}

// UpdateProfile applies a partial profile change.
func (c *Client) UpdateProfile(ctx context.Context, in UpdateProfileRequest) (User, error) {
	var out User
	req, err := jsonRequest("update profile", http.MethodPatch, "/profile/update", true, in, &out)
	if err != nil {
		return out, err
	}
	return out, c.do(ctx, req)
}

func todoPath(id string) string {
	return "/todos/" + url.PathEscape(id)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
