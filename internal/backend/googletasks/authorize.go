package googletasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
)

const (
	callbackTimeout  = 5 * time.Minute
	exchangeTimeout  = 30 * time.Second
	callbackBasePort = 8085
	callbackPorts    = 5
)

// ErrCallbackTimeout is returned when the browser never reaches the loopback callback.
var ErrCallbackTimeout = errors.New("oauth callback timed out")

// Authorize runs the installed-app PKCE flow. The consent URL is written to
// prompt and the code is received on a loopback listener.
func Authorize(ctx context.Context, conf *oauth2.Config, prompt io.Writer) (*oauth2.Token, error) {
	ln, port, err := listenLoopback()
	if err != nil {
		return nil, err
	}
	defer ln.Close()

	flow := &loopbackFlow{
		state:  oauth2.GenerateVerifier(),
		result: make(chan callbackResult, 1),
	}
	conf.RedirectURL = fmt.Sprintf("http://localhost:%d/callback", port)
	verifier := oauth2.GenerateVerifier()

	fmt.Fprintln(prompt, "Open this URL in your browser:")
	fmt.Fprintln(prompt, conf.AuthCodeURL(flow.state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier)))

	srv := &http.Server{Handler: flow}
	go srv.Serve(ln)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	var res callbackResult
	select {
	case res = <-flow.result:
	case <-time.After(callbackTimeout):
		return nil, ErrCallbackTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()
	token, err := conf.Exchange(exchangeCtx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}
	return token, nil
}

// SaveToken writes token to path readable only by the owner.
func SaveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

type callbackResult struct {
	code string
	err  error
}

// loopbackFlow handles the single redirect back from the consent page.
type loopbackFlow struct {
	state  string
	result chan callbackResult
}

func (f *loopbackFlow) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/callback" {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	var res callbackResult
	switch {
	case q.Get("state") != f.state:
		res.err = errors.New("oauth state mismatch")
	case q.Get("error") != "":
		res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
	case q.Get("code") == "":
		res.err = errors.New("no code in callback")
	default:
		res.code = q.Get("code")
	}

	if res.err != nil {
		http.Error(w, res.err.Error(), http.StatusBadRequest)
	} else {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h1>Google account connected</h1><p>You may close this window.</p></body></html>")
	}
	select {
	case f.result <- res:
	default:
	}
}

func listenLoopback() (net.Listener, int, error) {
	for port := callbackBasePort; port < callbackBasePort+callbackPorts; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
		if err == nil {
			return ln, port, nil
		}
	}
	return nil, 0, errors.New("could not bind a local port for the oauth callback")
}
