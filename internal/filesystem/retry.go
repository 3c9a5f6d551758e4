package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"metadb-gateway/internal/logging"
)

// Swapped in tests to simulate stale handles.
var (
	osStat = os.Stat
	osOpen = os.Open
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isNFSStaleError checks if an error is an NFS stale file handle error
func isNFSStaleError(err error) bool {
	if err == nil {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}

	return false
}

// withRetry runs fn until it succeeds, fails with a non-ESTALE error, or
// exhausts config.MaxRetries. Backoff doubles per attempt up to MaxBackoff.
func withRetry[T any](operation, path string, config RetryConfig, fn func() (T, error)) (T, error) {
	start := time.Now()
	backoff := config.InitialBackoff
	obs := observe()

	var (
		result  T
		lastErr error
	)

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			if attempt > 0 {
				logging.Info("NFS %s succeeded on retry %d for %s", operation, attempt, path)
			}
			if obs != nil {
				obs.ObserveOperation(operation, time.Since(start).Seconds(), nil)
			}
			return result, nil
		}

		if !isNFSStaleError(lastErr) {
			if obs != nil {
				obs.ObserveOperation(operation, time.Since(start).Seconds(), lastErr)
			}
			return result, lastErr
		}

		if attempt < config.MaxRetries {
			if obs != nil {
				obs.ObserveRetryAttempt(operation)
			}
			logging.Debug("NFS %s stale file handle for %s, retrying in %v (attempt %d/%d)",
				operation, path, backoff, attempt+1, config.MaxRetries)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("NFS %s failed after %d retries for %s: %v", operation, config.MaxRetries, path, lastErr)
	if obs != nil {
		obs.ObserveRetryFailure(operation)
		obs.ObserveOperation(operation, time.Since(start).Seconds(), lastErr)
	}
	return result, lastErr
}

// StatWithRetry performs os.Stat with retry logic for NFS stale file handle errors
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry("stat", path, config, func() (os.FileInfo, error) {
		return osStat(path)
	})
}

// OpenWithRetry performs os.Open with retry logic for NFS stale file handle errors
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	return withRetry("open", path, config, func() (*os.File, error) {
		return osOpen(path)
	})
}
