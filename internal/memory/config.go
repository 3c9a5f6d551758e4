package memory

import (
	"fmt"
	"math"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"metadb-gateway/internal/logging"
	"metadb-gateway/internal/metrics"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. The gateway spawns no subprocesses, so only stacks and socket
// buffers live outside it.
const DefaultMemoryRatio = 0.9

// Source names where the configured limit came from.
type Source string

const (
	SourceNone       Source = "none"
	SourceGoMemLimit Source = "GOMEMLIMIT"
	SourceContainer  Source = "MEMORY_LIMIT"
)

// Limit is the outcome of memory configuration.
type Limit struct {
	Source Source

	// ContainerLimit is the container memory limit in bytes (0 if not set)
	ContainerLimit int64

	// GoMemLimit is the Go runtime soft limit in bytes (0 if not set)
	GoMemLimit int64

	// Ratio is the share of ContainerLimit used (0 if not applicable)
	Ratio float64
}

// Plan computes the heap limit from the given environment lookup without
// touching the runtime. An explicit GOMEMLIMIT wins; the runtime has
// already applied it, so GoMemLimit is left for the caller to read back.
func Plan(getenv func(string) string) (Limit, error) {
	if getenv("GOMEMLIMIT") != "" {
		return Limit{Source: SourceGoMemLimit}, nil
	}

	raw := strings.TrimSpace(getenv("MEMORY_LIMIT"))
	if raw == "" {
		return Limit{Source: SourceNone}, nil
	}

	containerLimit, err := ParseQuantity(raw)
	if err != nil {
		return Limit{Source: SourceNone}, fmt.Errorf("MEMORY_LIMIT %q: %w", raw, err)
	}

	ratio := DefaultMemoryRatio
	if ratioStr := getenv("MEMORY_RATIO"); ratioStr != "" {
		parsed, err := strconv.ParseFloat(ratioStr, 64)
		if err != nil {
			return Limit{Source: SourceNone}, fmt.Errorf("MEMORY_RATIO %q: %w", ratioStr, err)
		}
		if parsed <= 0 || parsed > 1 {
			return Limit{Source: SourceNone}, fmt.Errorf("MEMORY_RATIO %q out of range (0.0-1.0]", ratioStr)
		}
		ratio = parsed
	}

	return Limit{
		Source:         SourceContainer,
		ContainerLimit: containerLimit,
		GoMemLimit:     int64(float64(containerLimit) * ratio),
		Ratio:          ratio,
	}, nil
}

// ConfigureFromEnv plans the limit from the process environment and applies
// it. Invalid values are logged and leave the runtime default in place.
// Call it before the listeners start.
func ConfigureFromEnv() Limit {
	limit, err := Plan(os.Getenv)
	if err != nil {
		logging.Warn("Memory limit not configured: %v", err)
	}

	switch limit.Source {
	case SourceGoMemLimit:
		if current := debug.SetMemoryLimit(-1); current > 0 && current < math.MaxInt64 {
			limit.GoMemLimit = current
		}
		logging.Info("  GOMEMLIMIT set via environment: %s", FormatBytes(limit.GoMemLimit))
	case SourceContainer:
		debug.SetMemoryLimit(limit.GoMemLimit)
		logging.Info("  Configured GOMEMLIMIT: %s (%.1f%% of %s container limit)",
			FormatBytes(limit.GoMemLimit), limit.Ratio*100, FormatBytes(limit.ContainerLimit))
	default:
		logging.Debug("  MEMORY_LIMIT not set, GOMEMLIMIT left at runtime default")
	}

	metrics.GoMemoryLimitBytes.Set(float64(limit.GoMemLimit))
	return limit
}

// ParseQuantity parses a byte count as plain bytes or with a binary
// (Ki, Mi, Gi) or decimal (K, M, G) suffix, the forms Kubernetes emits.
func ParseQuantity(s string) (int64, error) {
	suffixes := []struct {
		suffix string
		mult   int64
	}{
		{"Ki", 1 << 10}, {"Mi", 1 << 20}, {"Gi", 1 << 30},
		{"K", 1000}, {"M", 1000 * 1000}, {"G", 1000 * 1000 * 1000},
	}

	mult := int64(1)
	for _, sf := range suffixes {
		if strings.HasSuffix(s, sf.suffix) {
			s = strings.TrimSuffix(s, sf.suffix)
			mult = sf.mult
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return n * mult, nil
}

// FormatBytes formats bytes into human-readable string
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
