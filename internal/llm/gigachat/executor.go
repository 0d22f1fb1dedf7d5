package gigachat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// executor issues one logical API request, acquiring credentials from the
// TokenManager and applying the RetryPolicy. It owns the retry loop; the
// façade above it holds no resilience logic.
type executor struct {
	tokens     *TokenManager
	policy     *RetryPolicy
	httpClient *http.Client
	logger     *slog.Logger

	// sleep waits for d or until ctx is cancelled. Swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func newExecutor(tokens *TokenManager, policy *RetryPolicy, httpClient *http.Client, logger *slog.Logger) *executor {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &executor{
		tokens:     tokens,
		policy:     policy,
		httpClient: httpClient,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// do POSTs body to url and returns the fully read response on success.
// Transient failures are retried per policy; auth rejections invalidate the
// cached credential and retry once per request.
func (e *executor) do(ctx context.Context, url string, body []byte) ([]byte, error) {
	resp, err := e.attemptLoop(ctx, url, body, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Msg: "reading response", Cause: err}
	}
	return data, nil
}

// doStream POSTs body to url and returns the open response body once the
// handshake succeeds. Retrying ends at that point: failures after streaming
// has started cannot be safely replayed. The caller owns closing the body.
func (e *executor) doStream(ctx context.Context, url string, body []byte) (io.ReadCloser, error) {
	resp, err := e.attemptLoop(ctx, url, body, true)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (e *executor) attemptLoop(ctx context.Context, url string, body []byte, stream bool) (*http.Response, error) {
	var lastErr error
	authRetried := false

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := e.attempt(ctx, url, body, stream)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		kind := KindOf(err)

		// Auth gets exactly one in-request retry, with a forced refresh.
		if kind == KindAuth {
			if authRetried || attempt >= e.policy.MaxAttempts {
				return nil, lastErr
			}
			authRetried = true
			e.tokens.Invalidate()
			e.logger.InfoContext(ctx, "credential rejected, refreshing and retrying", "attempt", attempt)
			continue
		}

		retry, delay := e.policy.Decide(attempt, kind, retryAfterOf(err))
		if !retry {
			return nil, lastErr
		}

		e.logger.WarnContext(ctx, "request failed, retrying",
			"kind", kind.String(),
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if err := e.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// attempt performs a single network call. On any failure the response body
// is closed before returning.
func (e *executor) attempt(ctx context.Context, url string, body []byte, stream bool) (*http.Response, error) {
	token, err := e.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindClient, Msg: "building request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Msg: "executing request", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		serr := statusError(resp.StatusCode, string(bytes.TrimSpace(data)))
		if serr.Kind == KindRateLimit {
			serr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return nil, serr
	}

	return resp, nil
}

// retryAfterOf extracts the provider's Retry-After hint from a classified
// error, or 0 when absent.
func retryAfterOf(err error) time.Duration {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.RetryAfter
	}
	return 0
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

