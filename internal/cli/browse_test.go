package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/driveindex/drive-index/internal/api"
	"github.com/driveindex/drive-index/internal/models"
	"github.com/driveindex/drive-index/internal/pathcodec"
	"github.com/driveindex/drive-index/internal/prefs"
	"github.com/driveindex/drive-index/internal/state"
)

const emptyListing = `{"nextPageToken":null,"curPageIndex":0,"data":{"files":[]}}`

// requestLog records the paths a test worker was asked for.
type requestLog struct {
	mu    sync.Mutex
	paths []string
}

func (l *requestLog) add(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, path)
}

func (l *requestLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}

func listingJSON(t *testing.T, files ...map[string]string) string {
	t.Helper()
	body := map[string]interface{}{
		"nextPageToken": nil,
		"curPageIndex":  0,
		"data":          map[string]interface{}{"files": files},
	}
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return string(b)
}

func newTestBrowser(t *testing.T, sess *session) (*browser, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	b := newBrowser(sess, bufio.NewReader(strings.NewReader("")), &out)
	return b, &out
}

func TestBrowserSearchFollowsDrive(t *testing.T) {
	log := &requestLog{}
	sess := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		log.add(r.URL.Path)
		io.WriteString(w, emptyListing)
	})

	b, _ := newTestBrowser(t, sess)
	defer b.Close()
	ctx := context.Background()

	if err := b.exec(ctx, "cd /1:/docs/"); err != nil {
		t.Fatalf("cd error: %v", err)
	}
	if err := b.search.Search(ctx, "foo"); err != nil {
		t.Fatalf("Search() error: %v", err)
	}

	want := []string{"/1:/docs/", "/1:search"}
	if got := log.all(); !equalPaths(got, want) {
		t.Errorf("requests = %v, want %v", got, want)
	}

	if err := b.exec(ctx, "drive 2"); err != nil {
		t.Fatalf("drive error: %v", err)
	}
	if b.search.Drive() != 2 {
		t.Errorf("search drive = %d after drive 2", b.search.Drive())
	}
}

func TestBrowserRunSetsSearchDrive(t *testing.T) {
	sess := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, emptyListing)
	})

	b, _ := newTestBrowser(t, sess)
	defer b.Close()

	if err := b.Run(context.Background(), pathcodec.Location{Drive: 3, Path: "/"}); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if b.search.Drive() != 3 {
		t.Errorf("search drive = %d, want 3", b.search.Drive())
	}
}

func TestBrowserOpensSearchResults(t *testing.T) {
	sess := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/1:search" {
			io.WriteString(w, listingJSON(t,
				map[string]string{"id": "d1", "name": "sub", "mimeType": models.FolderMimeType, "link": "/1:/docs/sub/"},
				map[string]string{"id": "f1", "name": "a b.txt", "mimeType": "text/plain", "size": "3", "link": "/1:/docs/a%20b.txt"},
				map[string]string{"id": "f2", "name": "loose.txt", "mimeType": "text/plain"},
			))
			return
		}
		io.WriteString(w, emptyListing)
	})

	b, out := newTestBrowser(t, sess)
	ctx := context.Background()

	if err := b.exec(ctx, "drive 1"); err != nil {
		t.Fatalf("drive error: %v", err)
	}
	if err := b.search.Search(ctx, "a"); err != nil {
		t.Fatalf("Search() error: %v", err)
	}

	tests := []struct {
		line string
		want pathcodec.Location
	}{
		{"open 1", pathcodec.Location{Drive: 1, Path: "/docs/sub/"}},
		{"open 2", pathcodec.Location{Drive: 1, Path: "/docs/"}},
	}
	for _, tt := range tests {
		if err := b.exec(ctx, tt.line); err != nil {
			t.Fatalf("%s error: %v", tt.line, err)
		}
		if got := b.ctrl.Location(); got != tt.want {
			t.Errorf("%s: location = %+v, want %+v", tt.line, got, tt.want)
		}
	}

	for _, line := range []string{"open 3", "open 9", "open x", "results 0"} {
		if err := b.exec(ctx, line); err == nil {
			t.Errorf("%s should fail", line)
		}
	}

	if err := b.exec(ctx, "results 2"); err != nil {
		t.Fatalf("results 2 error: %v", err)
	}

	b.Close()
	if want := sess.client.BaseURL() + "/1:/docs/a%20b.txt"; !strings.Contains(out.String(), want) {
		t.Errorf("output missing result link %q:\n%s", want, out.String())
	}
}

func TestOpenFolderCachesPassword(t *testing.T) {
	var mu sync.Mutex
	var sent []string
	sess := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		var req models.FolderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		sent = append(sent, req.Password)
		mu.Unlock()

		if req.Password != "open sesame" {
			io.WriteString(w, `{"error":{"code":401,"message":"password required"}}`)
			return
		}
		io.WriteString(w, listingJSON(t, map[string]string{"id": "f1", "name": "plans.txt", "mimeType": "text/plain"}))
	})

	answers := []string{"guess", "open sesame"}
	var prompts []string
	setPasswordPrompter(t, func(out io.Writer, loc pathcodec.Location) (string, error) {
		prompts = append(prompts, loc.Pathname())
		a := answers[0]
		answers = answers[1:]
		return a, nil
	})

	ctrl := newTestController(t, sess)
	var out bytes.Buffer
	loc := pathcodec.Location{Drive: 0, Path: "/secret/"}
	if err := openFolder(context.Background(), &out, sess.prefs, ctrl, loc); err != nil {
		t.Fatalf("openFolder() error: %v", err)
	}

	if len(prompts) != 2 || prompts[0] != "/0:/secret/" {
		t.Errorf("prompts = %v", prompts)
	}
	if !strings.Contains(out.String(), "Wrong password") {
		t.Errorf("output = %q, want a wrong password warning", out.String())
	}
	if ctrl.Count() != 1 {
		t.Errorf("Count() = %d, want 1", ctrl.Count())
	}

	if v, ok := sess.prefs.Get(prefs.PasswordKey(0, "/secret/")); !ok || v != "open sesame" {
		t.Errorf("cached password = %q, %v", v, ok)
	}

	page, err := sess.client.ListFolder(context.Background(), 0, "/secret/", api.ListOptions{})
	if err != nil {
		t.Fatalf("ListFolder() with cached password error: %v", err)
	}
	if len(page.Files) != 1 {
		t.Errorf("len(Files) = %d, want 1", len(page.Files))
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"", "guess", "open sesame", "open sesame"}
	if !equalPaths(sent, want) {
		t.Errorf("passwords sent = %q, want %q", sent, want)
	}
}

func TestOpenFolderBlankPasswordStops(t *testing.T) {
	var calls atomic.Int32
	sess := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, `{"error":{"code":401,"message":"password required"}}`)
	})
	setPasswordPrompter(t, func(io.Writer, pathcodec.Location) (string, error) {
		return "", nil
	})

	ctrl := newTestController(t, sess)
	err := openFolder(context.Background(), io.Discard, sess.prefs, ctrl, pathcodec.Location{Drive: 0, Path: "/locked/"})
	if !api.IsPasswordRequired(err) {
		t.Fatalf("openFolder() = %v, want password required", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("worker calls = %d, want 1", n)
	}
	if _, ok := sess.prefs.Password(0, "/locked/"); ok {
		t.Error("blank password should not be cached")
	}
}

func TestOpenFolderGivesUpAfterAttempts(t *testing.T) {
	sess := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":{"code":401,"message":"password required"}}`)
	})
	prompts := 0
	setPasswordPrompter(t, func(io.Writer, pathcodec.Location) (string, error) {
		prompts++
		return fmt.Sprintf("try-%d", prompts), nil
	})

	ctrl := newTestController(t, sess)
	err := openFolder(context.Background(), io.Discard, sess.prefs, ctrl, pathcodec.Location{Drive: 0, Path: "/locked/"})
	if !api.IsPasswordRequired(err) {
		t.Fatalf("openFolder() = %v, want password required", err)
	}
	if prompts != maxPasswordAttempts {
		t.Errorf("prompts = %d, want %d", prompts, maxPasswordAttempts)
	}
}

func newTestController(t *testing.T, sess *session) *state.ListingController {
	t.Helper()
	ctrl := state.NewListingController(sess.client, nil, state.OptionsFromConfig(sess.cfg, GetLogger()))
	t.Cleanup(ctrl.Close)
	return ctrl
}

func setPasswordPrompter(t *testing.T, fn func(io.Writer, pathcodec.Location) (string, error)) {
	t.Helper()
	orig := passwordPrompter
	passwordPrompter = fn
	t.Cleanup(func() { passwordPrompter = orig })
}

func equalPaths(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
