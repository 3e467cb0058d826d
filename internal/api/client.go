// Package api is the HTTP client for the remote to-do store.
//
// Every call is retried on connectivity failures and 5xx-style responses with
// exponential backoff, and every failure is returned as an *apierr.Error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"todo/internal/apierr"
	"todo/internal/logging"
	"todo/internal/session"
)

const (
	// DefaultTimeout is the per-attempt timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxRetries is the retry bound; total attempts are one more.
	DefaultMaxRetries = 3

	// DefaultRetryBase is the first backoff delay.
	DefaultRetryBase = time.Second

	// RequestIDHeader carries the id shared by all attempts of one logical request.
	RequestIDHeader = "X-Request-ID"

	maxResponseBytes = 10 << 20
)

// Options configures a Client. Zero values select the defaults.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration
	Logger     log.FieldLogger

	// Sleep replaces the backoff wait (tests).
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client issues requests against the remote store.
type Client struct {
	baseURL    string
	http       *http.Client
	store      session.Store
	timeout    time.Duration
	maxRetries int
	retryBase  time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	log        log.FieldLogger

	mu            sync.RWMutex
	onAuthFailure func()
}

// New creates a client that reads the bearer token from store.
// A zero MaxRetries uses DefaultMaxRetries; a negative one disables retries.
func New(store session.Store, opts Options) (*Client, error) {
	if store == nil {
		return nil, errors.New("api: session store is nil")
	}
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url: %q", opts.BaseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		http:       opts.HTTPClient,
		store:      store,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBase,
		sleep:      opts.Sleep,
		log:        opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxRetries == 0 {
		c.maxRetries = DefaultMaxRetries
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.retryBase <= 0 {
		c.retryBase = DefaultRetryBase
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	if c.log == nil {
		c.log = logging.Discard()
	}
	return c, nil
}

// SetAuthFailureHandler registers fn to be called when a request that carried
// a bearer token is rejected with 401.
func (c *Client) SetAuthFailureHandler(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuthFailure = fn
}

func (c *Client) authFailed() {
	c.mu.RLock()
	fn := c.onAuthFailure
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// request describes one logical call.
type request struct {
	op          string
	method      string
	path        string
	auth        bool
	body        []byte
	contentType string
	out         any
}

func jsonRequest(op, method, path string, auth bool, in, out any) (request, error) {
	r := request{op: op, method: method, path: path, auth: auth, out: out}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return r, fmt.Errorf("%s: encode request: %w", op, err)
		}
		r.body = data
		r.contentType = "application/json"
	}
	return r, nil
}

// do runs req with retries and returns the last error once the bound is reached.
func (c *Client) do(ctx context.Context, req request) error {
	var token string
	if req.auth {
		var err error
		token, err = c.store.Get(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", req.op, err)
		}
	}

	requestID := uuid.NewString()
	logger := c.log.WithFields(log.Fields{
		"request_id": requestID,
		"method":     req.method,
		"path":       req.path,
	})

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		lastErr = c.attempt(ctx, req, token, requestID)
		if lastErr == nil {
			logger.WithField("attempt", attempt+1).Debug("request succeeded")
			return nil
		}
		if ctx.Err() != nil || !Retryable(lastErr) || attempt == c.maxRetries {
			break
		}

		delay := Backoff(c.retryBase, attempt)
		logger.WithFields(log.Fields{
			"attempt": attempt + 1,
			"delay":   delay,
			"error":   lastErr,
		}).Debug("request failed, retrying")
		if err := c.sleep(ctx, delay); err != nil {
			break
		}
	}

	logger.WithField("error", lastErr).Debug("request failed")
	if token != "" && apierr.IsKind(lastErr, apierr.KindAuthentication) && c.stillStored(ctx, token) {
		c.authFailed()
	}
	return lastErr
}

// stillStored reports whether token is still the session's token.
func (c *Client) stillStored(ctx context.Context, token string) bool {
	current, err := c.store.Get(context.WithoutCancel(ctx))
	return err == nil && current == token
}

func (c *Client) attempt(ctx context.Context, req request, token, requestID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", req.op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(RequestIDHeader, requestID)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(httpReq)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return apierr.Connectivity(req.op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apierr.Connectivity(req.op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apierr.FromStatus(req.op, resp.StatusCode, errorDetail(data))
	}

	if req.out != nil {
		if err := json.Unmarshal(data, req.out); err != nil {
			return &apierr.Error{
				Kind:       apierr.KindServer,
				Op:         req.op,
				StatusCode: resp.StatusCode,
				Detail:     "invalid response payload",
				Err:        err,
			}
		}
	}
	return nil
}
