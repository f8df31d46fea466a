package github

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

const (
	retryAttempts  = 10
	retryDelay     = 1 * time.Second
	retryMaxDelay  = 2 * time.Minute
	retryMaxJitter = 1 * time.Second
	// maxRequestSize caps buffered request bodies for replay across retries.
	maxRequestSize = 1 * 1024 * 1024
)

// RetryTransport wraps an http.RoundTripper with exponential backoff and
// jitter. Retries fire on 429, 5xx, and 403 responses that carry an
// exhausted rate limit header; everything else passes through untouched.
type RetryTransport struct {
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Base == nil {
		t.Base = http.DefaultTransport
	}

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(io.LimitReader(req.Body, maxRequestSize))
		if err != nil {
			return nil, err
		}
		if closeErr := req.Body.Close(); closeErr != nil {
			slog.DebugContext(req.Context(), "close request body", "error", closeErr)
		}
	}

	var resp *http.Response
	var lastErr error

	err := retry.Do(
		func() error {
			if bodyBytes != nil {
				req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			}

			var err error
			resp, err = t.Base.RoundTrip(req) //nolint:bodyclose // caller owns the body on success
			if err != nil {
				lastErr = err
				return err
			}

			if !shouldRetry(resp) {
				return nil
			}

			// Drain and close so the connection can be reused by the retry.
			if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
				slog.DebugContext(req.Context(), "drain response body", "error", drainErr)
			}
			if closeErr := resp.Body.Close(); closeErr != nil {
				slog.DebugContext(req.Context(), "close response body", "error", closeErr)
			}

			slog.DebugContext(req.Context(), "retrying request",
				"status", resp.StatusCode,
				"url", req.URL.String(),
			)
			lastErr = &retryableError{StatusCode: resp.StatusCode}
			return lastErr
		},
		retry.Context(req.Context()),
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.MaxDelay(retryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxJitter(retryMaxJitter),
		retry.RetryIf(func(err error) bool {
			var retryErr *retryableError
			return errors.As(err, &retryErr)
		}),
	)
	if err != nil {
		if lastErr != nil {
			return resp, lastErr
		}
		return nil, err
	}

	return resp, nil
}

func shouldRetry(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if resp.StatusCode >= 500 && resp.StatusCode < 600 {
		return true
	}
	// GitHub reports primary rate limit exhaustion as 403.
	if resp.StatusCode == http.StatusForbidden &&
		resp.Header.Get("X-Ratelimit-Remaining") == "0" {
		return true
	}
	return false
}

type retryableError struct {
	StatusCode int
}

func (e *retryableError) Error() string {
	return http.StatusText(e.StatusCode)
}
