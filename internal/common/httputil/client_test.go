// internal/common/httputil/client_test.go
package httputil

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/common/logger"
)

// ==========================
// Status Classification Tests
// ==========================

func TestRetryableStatus(t *testing.T) {
	assert.True(t, RetryableStatus(http.StatusTooManyRequests))
	assert.True(t, RetryableStatus(http.StatusInternalServerError))
	assert.True(t, RetryableStatus(http.StatusBadGateway))

	assert.False(t, RetryableStatus(http.StatusOK))
	assert.False(t, RetryableStatus(http.StatusBadRequest))
	assert.False(t, RetryableStatus(http.StatusForbidden))
	assert.False(t, RetryableStatus(http.StatusNotFound))
}

// ==========================
// Backoff Loop Tests
// ==========================

func testPolicy() BackoffPolicy {
	return BackoffPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryWithBackoff_RetriesUnclassifiedErrors(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), testPolicy(), logger.NewNoOpLogger(), "op", func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_RetriesRetryableClassifiedErrors(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), testPolicy(), logger.NewNoOpLogger(), "op", func() error {
		attempts++
		return apperrors.NewDatabaseFailedError(errors.New("deadlock"))
	})
	assert.Equal(t, apperrors.ErrCodeDatabaseFailed, apperrors.CodeOf(err))
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_StopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), testPolicy(), logger.NewNoOpLogger(), "op", func() error {
		attempts++
		return apperrors.NewModeTargetMismatchError("test", 1, 999)
	})
	assert.Equal(t, apperrors.ErrCodeModeTargetMismatch, apperrors.CodeOf(err))
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ContextCancelStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := RetryWithBackoff(ctx, testPolicy(), logger.NewNoOpLogger(), "op", func() error {
		attempts++
		cancel()
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
