package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"todo/internal/apierr"
)

// maxBackoffShift caps the exponent so the delay cannot overflow.
const maxBackoffShift = 30

// Backoff returns the delay before retry number attempt+1: base * 2^attempt.
// It is non-decreasing in attempt for any base >= 0.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	return base * time.Duration(1<<uint(attempt))
}

// Retryable reports whether another attempt could succeed.
// 401 is never retried, nor are other 4xx responses or client-side rejections.
func Retryable(err error) bool {
	var e *apierr.Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case apierr.KindConnectivity:
		return true
	case apierr.KindServer:
		return e.StatusCode >= 500 ||
			e.StatusCode == http.StatusRequestTimeout ||
			e.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
