package handlers

import (
	"context"
	"errors"
	"time"
)

// UpstreamPinger reports whether the application server accepts connections.
type UpstreamPinger interface {
	Ping(ctx context.Context) error
	Socket() string
}

// StaticChecker reports whether a static root is readable.
type StaticChecker interface {
	Check() error
	Dir() string
}

// Handlers serves the admin endpoints: health probes, version and metrics.
type Handlers struct {
	upstream     UpstreamPinger
	roots        []StaticChecker
	startTime    time.Time
	probeTimeout time.Duration
}

// New creates admin handlers probing the given upstream and static roots.
func New(upstream UpstreamPinger, roots ...StaticChecker) *Handlers {
	return &Handlers{
		upstream:     upstream,
		roots:        roots,
		startTime:    time.Now(),
		probeTimeout: 2 * time.Second,
	}
}

// PingUpstream dials the upstream socket, bounded by the probe timeout.
func (h *Handlers) PingUpstream(ctx context.Context) error {
	if h.upstream == nil {
		return errors.New("no upstream configured")
	}
	ctx, cancel := context.WithTimeout(ctx, h.probeTimeout)
	defer cancel()
	return h.upstream.Ping(ctx)
}

// CheckStaticRoot checks every static root and returns the combined errors.
func (h *Handlers) CheckStaticRoot() error {
	var errs []error
	for _, root := range h.roots {
		if err := root.Check(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
