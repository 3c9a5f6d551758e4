package static

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"metadb-gateway/internal/filesystem"
	"metadb-gateway/internal/logging"
	"metadb-gateway/internal/metrics"
)

var (
	// ErrNotFound means no servable file exists for the path. The router
	// treats it as a miss and falls through to the next rule.
	ErrNotFound = errors.New("static file not found")
	// ErrAccessDenied means the file exists but cannot be read.
	ErrAccessDenied = errors.New("static file access denied")
)

// Swapped in tests to simulate filesystem failures.
var (
	statFile = filesystem.StatWithRetry
	openFile = filesystem.OpenWithRetry
)

// Root serves files from a fixed directory. It is immutable after New and
// safe for concurrent use.
type Root struct {
	dir    string // absolute, symlinks resolved
	prefix string // URL prefix without trailing slash; "" for the site root
	maxAge time.Duration
	retry  filesystem.RetryConfig
}

// Options configures a Root.
type Options struct {
	// Prefix is the URL path prefix mapped onto the directory, e.g. "/static".
	Prefix string
	// MaxAge adds "Cache-Control: public, max-age=N" to served files when > 0.
	MaxAge time.Duration
	// Retry controls stale-handle retries; zero value uses the defaults.
	Retry *filesystem.RetryConfig
}

// File is a successfully resolved static file.
type File struct {
	Path string
	Info os.FileInfo
}

// New creates a Root for dir. The directory does not have to exist yet: a
// deploy may populate it after startup, in which case every lookup misses
// until it appears.
func New(dir string, opts Options) (*Root, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("static root directory required")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve static root %s: %w", dir, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	prefix := strings.TrimRight(opts.Prefix, "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		return nil, fmt.Errorf("static prefix %q must start with /", opts.Prefix)
	}

	retry := filesystem.DefaultRetryConfig()
	if opts.Retry != nil {
		retry = *opts.Retry
	}

	return &Root{
		dir:    abs,
		prefix: prefix,
		maxAge: opts.MaxAge,
		retry:  retry,
	}, nil
}

// Dir returns the absolute filesystem root.
func (r *Root) Dir() string {
	return r.dir
}

// Prefix returns the URL prefix served by this root ("/" for the site root).
func (r *Root) Prefix() string {
	if r.prefix == "" {
		return "/"
	}
	return r.prefix
}

// Matches reports whether urlPath falls under the root's URL prefix.
func (r *Root) Matches(urlPath string) bool {
	if r.prefix == "" {
		return strings.HasPrefix(urlPath, "/")
	}
	return urlPath == r.prefix || strings.HasPrefix(urlPath, r.prefix+"/")
}

// Check verifies the root directory exists and is a directory.
func (r *Root) Check() error {
	info, err := filesystem.StatWithRetry(r.dir, r.retry)
	if err != nil {
		return fmt.Errorf("static root %s: %w", r.dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("static root %s is not a directory", r.dir)
	}
	return nil
}

// Resolve maps a decoded URL path onto a regular file inside the root.
// Paths outside the prefix, paths escaping the root (via ".." or symlinks),
// directories and missing files all yield ErrNotFound.
func (r *Root) Resolve(urlPath string) (*File, error) {
	if !r.Matches(urlPath) {
		return nil, ErrNotFound
	}

	rel := strings.TrimPrefix(urlPath, r.prefix)
	if strings.ContainsRune(rel, 0) {
		return nil, r.lookupError("traversal", ErrNotFound)
	}

	full := filepath.Join(r.dir, filepath.FromSlash(rel))
	if !within(r.dir, full) {
		logging.Debug("Static lookup rejected, escapes root: %q", urlPath)
		return nil, r.lookupError("traversal", ErrNotFound)
	}

	info, err := statFile(full, r.retry)
	if err != nil {
		return nil, r.classify(urlPath, err)
	}
	if !info.Mode().IsRegular() {
		return nil, r.lookupError("not_found", ErrNotFound)
	}

	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return nil, r.classify(urlPath, err)
	}
	if !within(r.dir, resolved) {
		logging.Debug("Static lookup rejected, symlink escapes root: %q -> %s", urlPath, resolved)
		return nil, r.lookupError("traversal", ErrNotFound)
	}

	return &File{Path: resolved, Info: info}, nil
}

func (r *Root) classify(urlPath string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return r.lookupError("not_found", ErrNotFound)
	case errors.Is(err, fs.ErrPermission):
		logging.Warn("Static file access denied: %s: %v", urlPath, err)
		return r.lookupError("access_denied", fmt.Errorf("%w: %s", ErrAccessDenied, urlPath))
	default:
		// ENOTDIR and friends: a path component is a regular file
		logging.Debug("Static lookup failed for %s: %v", urlPath, err)
		return r.lookupError("not_found", ErrNotFound)
	}
}

func (r *Root) lookupError(reason string, err error) error {
	metrics.StaticLookupErrors.WithLabelValues(reason).Inc()
	return err
}

// Serve writes a resolved file to w. Content type is inferred from the
// extension, falling back to content sniffing; conditional and range
// requests are honored.
func (r *Root) Serve(w http.ResponseWriter, req *http.Request, file *File) error {
	f, err := openFile(file.Path, r.retry)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return r.lookupError("access_denied", fmt.Errorf("%w: %s", ErrAccessDenied, req.URL.Path))
		}
		if errors.Is(err, fs.ErrNotExist) {
			// Removed between Resolve and Serve
			return r.lookupError("not_found", ErrNotFound)
		}
		return fmt.Errorf("failed to open %s: %w", file.Path, err)
	}
	defer f.Close()

	if r.maxAge > 0 {
		w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(r.maxAge.Seconds())))
	}

	metrics.StaticFilesServed.Inc()
	metrics.StaticBytesServed.Add(float64(file.Info.Size()))

	http.ServeContent(w, req, file.Info.Name(), file.Info.ModTime(), f)
	return nil
}

// ServeHTTP serves the root on its own, answering misses with 404 and
// permission failures with 403. The router uses Resolve and Serve directly
// so misses can fall through.
func (r *Root) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	file, err := r.Resolve(req.URL.Path)
	if err == nil {
		err = r.Serve(w, req, file)
	}
	if err != nil {
		status := StatusFor(err)
		http.Error(w, http.StatusText(status), status)
	}
}

// StatusFor maps a Resolve or Serve error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// within reports whether path is root or lies beneath it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
