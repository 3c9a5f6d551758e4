package static

import (
	"bytes"
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"metadb-gateway/internal/filesystem"
)

// newTestRoot creates a static tree:
//
//	<tmp>/site/static/app.css
//	<tmp>/site/static/js/app.js
//	<tmp>/site/static/logo.png
//	<tmp>/site/secret.txt        (outside the root)
func newTestRoot(t *testing.T, opts Options) (*Root, string) {
	t.Helper()

	base := t.TempDir()
	dir := filepath.Join(base, "site", "static")
	mustWrite(t, filepath.Join(dir, "app.css"), "body { color: #333; }")
	mustWrite(t, filepath.Join(dir, "js", "app.js"), "console.log('metadb');")
	mustWrite(t, filepath.Join(dir, "logo.png"), "\x89PNG\r\n\x1a\nfake")
	mustWrite(t, filepath.Join(base, "site", "secret.txt"), "top secret")

	if opts.Prefix == "" {
		opts.Prefix = "/static"
	}
	root, err := New(dir, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return root, base
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		dir     string
		prefix  string
		wantErr bool
	}{
		{name: "valid", dir: t.TempDir(), prefix: "/static"},
		{name: "trailing slash prefix", dir: t.TempDir(), prefix: "/static/"},
		{name: "site root", dir: t.TempDir(), prefix: "/"},
		{name: "missing dir is allowed", dir: filepath.Join(t.TempDir(), "later"), prefix: "/static"},
		{name: "empty dir", dir: "  ", prefix: "/static", wantErr: true},
		{name: "relative prefix", dir: t.TempDir(), prefix: "static", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.dir, Options{Prefix: tt.prefix})
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	root, err := New(t.TempDir(), Options{Prefix: "/static/"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"/static", true},
		{"/static/", true},
		{"/static/app.css", true},
		{"/staticfiles/app.css", false},
		{"/", false},
		{"/api/static/app.css", false},
	}
	for _, tt := range tests {
		if got := root.Matches(tt.path); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	siteRoot, err := New(t.TempDir(), Options{Prefix: "/"})
	if err != nil {
		t.Fatal(err)
	}
	if !siteRoot.Matches("/favicon.ico") {
		t.Error("site root should match every absolute path")
	}
	if siteRoot.Prefix() != "/" {
		t.Errorf("Prefix() = %q, want /", siteRoot.Prefix())
	}
}

func TestResolve(t *testing.T) {
	root, base := newTestRoot(t, Options{})

	if err := os.Symlink(filepath.Join(base, "site", "secret.txt"), filepath.Join(root.Dir(), "escape.txt")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root.Dir(), "app.css"), filepath.Join(root.Dir(), "alias.css")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr error
		wantEnd string
	}{
		{name: "file at top level", path: "/static/app.css", wantEnd: "app.css"},
		{name: "nested file", path: "/static/js/app.js", wantEnd: filepath.Join("js", "app.js")},
		{name: "symlink inside root", path: "/static/alias.css", wantEnd: "app.css"},
		{name: "missing file", path: "/static/missing.css", wantErr: ErrNotFound},
		{name: "directory", path: "/static/js", wantErr: ErrNotFound},
		{name: "root itself", path: "/static", wantErr: ErrNotFound},
		{name: "outside prefix", path: "/app.css", wantErr: ErrNotFound},
		{name: "dot-dot traversal", path: "/static/../../etc/passwd", wantErr: ErrNotFound},
		{name: "dot-dot to sibling", path: "/static/../secret.txt", wantErr: ErrNotFound},
		{name: "symlink escaping root", path: "/static/escape.txt", wantErr: ErrNotFound},
		{name: "file used as directory", path: "/static/app.css/x", wantErr: ErrNotFound},
		{name: "nul byte", path: "/static/app.css\x00.png", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, err := root.Resolve(tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve(%q) error = %v, want %v", tt.path, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) unexpected error: %v", tt.path, err)
			}
			if !strings.HasSuffix(file.Path, tt.wantEnd) {
				t.Errorf("Resolve(%q) = %s, want suffix %s", tt.path, file.Path, tt.wantEnd)
			}
			if !within(root.Dir(), file.Path) {
				t.Errorf("Resolve(%q) = %s escapes root %s", tt.path, file.Path, root.Dir())
			}
		})
	}
}

func TestResolveAccessDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	root, _ := newTestRoot(t, Options{})
	locked := filepath.Join(root.Dir(), "locked")
	mustWrite(t, filepath.Join(locked, "private.css"), "x")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(locked, 0o755)

	_, err := root.Resolve("/static/locked/private.css")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("Resolve() error = %v, want ErrAccessDenied", err)
	}
	if StatusFor(err) != http.StatusForbidden {
		t.Errorf("StatusFor() = %d, want 403", StatusFor(err))
	}
}

func TestServeAccessDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	root, _ := newTestRoot(t, Options{})
	path := filepath.Join(root.Dir(), "unreadable.css")
	mustWrite(t, path, "x")
	if err := os.Chmod(path, 0o000); err != nil {
		t.Fatal(err)
	}

	file, err := root.Resolve("/static/unreadable.css")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/static/unreadable.css", http.NoBody)
	if err := root.Serve(w, req, file); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("Serve() error = %v, want ErrAccessDenied", err)
	}
}

func TestPermissionErrorsMapToForbidden(t *testing.T) {
	root, _ := newTestRoot(t, Options{})
	denied := func(name string) error {
		return &os.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
	}

	t.Run("stat", func(t *testing.T) {
		statFile = func(name string, _ filesystem.RetryConfig) (os.FileInfo, error) {
			return nil, denied(name)
		}
		defer func() { statFile = filesystem.StatWithRetry }()

		w := httptest.NewRecorder()
		root.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/app.css", http.NoBody))
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("open", func(t *testing.T) {
		openFile = func(name string, _ filesystem.RetryConfig) (*os.File, error) {
			return nil, denied(name)
		}
		defer func() { openFile = filesystem.OpenWithRetry }()

		file, err := root.Resolve("/static/app.css")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/static/app.css", http.NoBody)
		err = root.Serve(w, req, file)
		if !errors.Is(err, ErrAccessDenied) {
			t.Fatalf("Serve() error = %v, want ErrAccessDenied", err)
		}
		if StatusFor(err) != http.StatusForbidden {
			t.Errorf("StatusFor() = %d, want 403", StatusFor(err))
		}
		if w.Body.Len() != 0 {
			t.Errorf("Serve() wrote %q before failing", w.Body.String())
		}
	})
}

func TestServeRoundTrip(t *testing.T) {
	root, _ := newTestRoot(t, Options{})

	tests := []struct {
		path string
	}{
		{"/static/app.css"},
		{"/static/js/app.js"},
		{"/static/logo.png"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			want, err := os.ReadFile(filepath.Join(root.Dir(), filepath.FromSlash(strings.TrimPrefix(tt.path, "/static/"))))
			if err != nil {
				t.Fatal(err)
			}

			w := httptest.NewRecorder()
			root.ServeHTTP(w, httptest.NewRequest("GET", tt.path, http.NoBody))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if !bytes.Equal(w.Body.Bytes(), want) {
				t.Errorf("body = %q, want %q", w.Body.Bytes(), want)
			}
			if got, want := w.Header().Get("Content-Type"), mime.TypeByExtension(filepath.Ext(tt.path)); got != want {
				t.Errorf("Content-Type = %q, want %q", got, want)
			}
			if w.Header().Get("Last-Modified") == "" {
				t.Error("expected Last-Modified header")
			}
		})
	}
}

func TestServeHTTPNotFound(t *testing.T) {
	root, _ := newTestRoot(t, Options{})

	for _, path := range []string{"/static/nope.css", "/static/../secret.txt", "/static/js"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/static/", http.NoBody)
		req.URL.Path = path
		root.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, w.Code)
		}
		if strings.Contains(w.Body.String(), "top secret") {
			t.Errorf("%s: served a file outside the root", path)
		}
	}
}

func TestServeCacheControl(t *testing.T) {
	root, _ := newTestRoot(t, Options{MaxAge: 24 * time.Hour})

	w := httptest.NewRecorder()
	root.ServeHTTP(w, httptest.NewRequest("GET", "/static/app.css", http.NoBody))

	if got := w.Header().Get("Cache-Control"); got != "public, max-age=86400" {
		t.Errorf("Cache-Control = %q, want public, max-age=86400", got)
	}
}

func TestServeConditionalAndRange(t *testing.T) {
	root, _ := newTestRoot(t, Options{})

	w := httptest.NewRecorder()
	root.ServeHTTP(w, httptest.NewRequest("GET", "/static/app.css", http.NoBody))
	lastModified := w.Header().Get("Last-Modified")

	req := httptest.NewRequest("GET", "/static/app.css", http.NoBody)
	req.Header.Set("If-Modified-Since", lastModified)
	w = httptest.NewRecorder()
	root.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional GET status = %d, want 304", w.Code)
	}

	req = httptest.NewRequest("GET", "/static/app.css", http.NoBody)
	req.Header.Set("Range", "bytes=0-3")
	w = httptest.NewRecorder()
	root.ServeHTTP(w, req)
	if w.Code != http.StatusPartialContent {
		t.Errorf("range status = %d, want 206", w.Code)
	}
	if w.Body.String() != "body" {
		t.Errorf("range body = %q, want %q", w.Body.String(), "body")
	}
}

func TestCheck(t *testing.T) {
	root, _ := newTestRoot(t, Options{})
	if err := root.Check(); err != nil {
		t.Errorf("Check() error = %v", err)
	}

	missing, err := New(filepath.Join(t.TempDir(), "missing"), Options{Prefix: "/static"})
	if err != nil {
		t.Fatal(err)
	}
	if err := missing.Check(); err == nil {
		t.Error("Check() expected error for missing directory")
	}

	filePath := filepath.Join(t.TempDir(), "file")
	mustWrite(t, filePath, "x")
	notDir, err := New(filePath, Options{Prefix: "/static"})
	if err != nil {
		t.Fatal(err)
	}
	if err := notDir.Check(); err == nil {
		t.Error("Check() expected error for a regular file root")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrAccessDenied, http.StatusForbidden},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWithin(t *testing.T) {
	tests := []struct {
		root, path string
		want       bool
	}{
		{"/srv/static", "/srv/static", true},
		{"/srv/static", "/srv/static/a/b.css", true},
		{"/srv/static", "/srv/static/..a", true},
		{"/srv/static", "/srv", false},
		{"/srv/static", "/srv/static-old/a.css", false},
		{"/srv/static", "/etc/passwd", false},
	}
	for _, tt := range tests {
		if got := within(tt.root, tt.path); got != tt.want {
			t.Errorf("within(%q, %q) = %v, want %v", tt.root, tt.path, got, tt.want)
		}
	}
}
