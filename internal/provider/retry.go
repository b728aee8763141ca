package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

const (
	maxRetries = 3
	// maxRetryAfter caps a server-requested wait; a chat reply should not
	// hang for minutes behind a cold model.
	maxRetryAfter = 20 * time.Second
)

// retryBaseDelay scales the backoff; tests shrink it.
var retryBaseDelay = time.Second

// statusError is a non-2xx answer worth retrying.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.status, e.body)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// backoff is attempt² × base plus up to 50% jitter, unless the server
// asked for a specific wait with Retry-After (seconds form).
func backoff(attempt int, retryAfter string) time.Duration {
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
		return min(time.Duration(secs)*time.Second, maxRetryAfter)
	}
	base := time.Duration(attempt*attempt) * retryBaseDelay
	return base + time.Duration(rand.Int64N(int64(base/2)+1))
}

// doWithRetry sends the request built by buildReq, retrying network errors,
// 429 and 5xx up to maxRetries times. Hugging Face answers 503 while a model
// loads and ElevenLabs 429 on bursts, so both go through here.
func doWithRetry(ctx context.Context, client *http.Client, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	var (
		lastErr    error
		retryAfter string
	)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff(attempt, retryAfter)
			logger.Warn("retrying upstream request", "attempt", attempt+1, "wait", wait, "err", lastErr)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr, retryAfter = err, ""
			continue
		}
		if !retryable(resp.StatusCode) {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		lastErr = &statusError{status: resp.StatusCode, body: string(body)}
		retryAfter = resp.Header.Get("Retry-After")
	}
	return nil, fmt.Errorf("giving up after %d retries: %w", maxRetries, lastErr)
}

// readError drains a non-2xx response into an error.
func readError(service string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return fmt.Errorf("%s API error (status %d): %s", service, resp.StatusCode, string(body))
}
