/*
Package filesystem provides stat and open helpers for the static root with
automatic retry on NFS stale file handle errors.

The static tree is populated by a deployment process and is often mounted
over NFS; a deploy that swaps directories underneath a running gateway can
surface ESTALE (errno 116) for a short window. These helpers retry only that
error, with exponential backoff, and return every other error unchanged so
callers can still classify os.ErrNotExist and os.ErrPermission.

# Usage

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())

# Retry Behavior

Defaults:
  - MaxRetries: 3 attempts
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

# Metrics

Operation timings and retry counts are reported through an [Observer]
installed with [SetObserver]; the metrics package provides the Prometheus
implementation. With no observer installed, nothing is recorded.
*/
package filesystem
