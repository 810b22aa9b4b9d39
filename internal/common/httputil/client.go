// internal/common/httputil/client.go
package httputil

import (
	"context"
	"net/http"
	"time"

	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/common/logger"
)

// Client wraps http.Client with a fixed timeout.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	return c.httpClient.Do(req)
}

// RetryableStatus reports whether a response status warrants a retry:
// throttling and server-side failures, never other 4xx.
func RetryableStatus(status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}

// BackoffPolicy bounds retry behavior for collaborator calls.
type BackoffPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// RetryWithBackoff attempts an operation with exponential backoff. The final
// error is returned once the attempt ceiling is reached or the context ends.
// Errors classified as non-retryable stop the loop immediately; unclassified
// errors (transport failures and the like) keep retrying.
func RetryWithBackoff(ctx context.Context, policy BackoffPolicy, log logger.Logger, operationName string, operation func() error) error {
	var err error
	delay := policy.InitialDelay

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err = operation()
		if err == nil {
			return nil
		}

		if code := apperrors.CodeOf(err); code != "" && !apperrors.IsRetryable(err) {
			log.Warn("operation failed, not retryable", map[string]interface{}{
				"operation": operationName,
				"error":     err.Error(),
				"code":      string(code),
			})
			return err
		}

		if attempt == policy.MaxAttempts {
			break
		}

		log.Warn("operation failed, retrying", map[string]interface{}{
			"operation":   operationName,
			"error":       err.Error(),
			"attempt":     attempt,
			"maxAttempts": policy.MaxAttempts,
			"nextRetryIn": delay.String(),
		})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return err
}
