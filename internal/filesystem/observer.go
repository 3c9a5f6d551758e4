package filesystem

import "sync"

// Observer records filesystem operation metrics. Implementations are provided
// by the metrics package to break the import cycle between filesystem and metrics.
type Observer interface {
	// ObserveOperation records duration and error status for an operation
	// ("stat" or "open"), including any retries.
	ObserveOperation(operation string, durationSeconds float64, err error)

	ObserveRetryAttempt(operation string)
	ObserveRetryFailure(operation string)
}

var (
	defaultObserver Observer
	observerMu      sync.RWMutex
)

// SetObserver sets the package-level metrics observer.
// Call this once at startup after creating the observer implementation.
func SetObserver(o Observer) {
	observerMu.Lock()
	defer observerMu.Unlock()
	defaultObserver = o
}

// observe returns the package-level observer, which may be nil.
func observe() Observer {
	observerMu.RLock()
	defer observerMu.RUnlock()
	return defaultObserver
}
