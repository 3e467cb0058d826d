// Package googletasks exports the task collection to a Google Tasks list.
package googletasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"todo/internal/apierr"
	"todo/internal/config"
	"todo/internal/service"
)

const (
	// APITimeout is the timeout for API calls.
	APITimeout = 5 * time.Second

	// DefaultListTitle names the list created when none is given.
	DefaultListTitle = "todo export"

	// Scope is the OAuth scope for Google Tasks.
	Scope = "https://www.googleapis.com/auth/tasks"

	statusCompleted   = "completed"
	statusNeedsAction = "needsAction"
)

// Result describes a finished export.
type Result struct {
	ListID    string
	ListTitle string
	Count     int
}

// Exporter writes tasks into Google Tasks.
type Exporter struct {
	svc *tasks.Service
}

// OAuthConfig reads the installed-app client credentials from the config dir.
func OAuthConfig(cfg *config.Config) (*oauth2.Config, error) {
	clientJSON, err := os.ReadFile(cfg.GoogleClientPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", config.GoogleClientFile, err)
	}
	oauthConfig, err := google.ConfigFromJSON(clientJSON, Scope)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", config.GoogleClientFile, err)
	}
	return oauthConfig, nil
}

// New creates an exporter from the stored Google client and token.
func New(ctx context.Context, cfg *config.Config) (*Exporter, error) {
	oauthConfig, err := OAuthConfig(cfg)
	if err != nil {
		return nil, err
	}

	tokenData, err := os.ReadFile(cfg.GoogleTokenPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", config.GoogleTokenFile, err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenData, &token); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", config.GoogleTokenFile, err)
	}

	httpClient := oauth2.NewClient(ctx, oauthConfig.TokenSource(ctx, &token))
	return NewWithHTTPClient(ctx, httpClient)
}

// NewWithHTTPClient creates an exporter with a custom HTTP client (for testing).
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Exporter, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}
	return &Exporter{svc: svc}, nil
}

// Export creates a new list named listTitle and inserts every task into it.
// list is in canonical order (newest first); Google places each inserted
// task at the top, so tasks are inserted oldest first.
func (e *Exporter) Export(ctx context.Context, listTitle string, list []service.Task) (Result, error) {
	if listTitle == "" {
		listTitle = DefaultListTitle
	}

	created, err := e.createList(ctx, listTitle)
	if err != nil {
		return Result{}, err
	}
	res := Result{ListID: created.Id, ListTitle: created.Title}

	for i := len(list) - 1; i >= 0; i-- {
		if err := e.insert(ctx, created.Id, list[i]); err != nil {
			return res, err
		}
		res.Count++
	}
	return res, nil
}

func (e *Exporter) createList(ctx context.Context, title string) (*tasks.TaskList, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	created, err := e.svc.Tasklists.Insert(&tasks.TaskList{Title: title}).Context(ctx).Do()
	if err != nil {
		return nil, wrapError("create google task list", err)
	}
	return created, nil
}

func (e *Exporter) insert(ctx context.Context, listID string, task service.Task) error {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	_, err := e.svc.Tasks.Insert(listID, toGoogle(task)).Context(ctx).Do()
	if err != nil {
		return wrapError("export task", err)
	}
	return nil
}

func toGoogle(task service.Task) *tasks.Task {
	gt := &tasks.Task{
		Title:  task.Title,
		Notes:  task.Description,
		Status: statusNeedsAction,
	}
	if task.Completed {
		gt.Status = statusCompleted
	}
	return gt
}

// wrapError maps Google API failures onto the error kinds used everywhere else.
func wrapError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden {
			return &apierr.Error{
				Kind:       apierr.KindAuthentication,
				Op:         op,
				StatusCode: gerr.Code,
				Detail:     "google token expired or revoked (run: todo google-login)",
				Err:        err,
			}
		}
		return &apierr.Error{Kind: apierr.KindServer, Op: op, StatusCode: gerr.Code, Detail: gerr.Message, Err: err}
	}
	return apierr.Connectivity(op, err)
}
