package transfer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/driveindex/drive-index/internal/progress"
)

type fakeDownloader struct {
	content map[string]string // name -> body
	fail    map[string]error
	block   chan struct{}

	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	calls    []string
}

func (f *fakeDownloader) Download(ctx context.Context, drive int, path, filename string, w io.Writer, reporter progress.Reporter) (int64, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, path+filename)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if err := f.fail[filename]; err != nil {
		return 0, err
	}

	body := f.content[filename]
	reporter.Start(int64(len(body)), filename)
	written, err := io.Copy(w, progress.NewProgressReader(strings.NewReader(body), reporter))
	reporter.Finish()
	return written, err
}

func TestManagerRunDownloadsAll(t *testing.T) {
	dir := t.TempDir()
	dl := &fakeDownloader{content: map[string]string{"a.txt": "alpha", "b.txt": "bravo!"}}
	q := NewQueue(nil)
	m := NewManager(dl, q, 2, nil)

	reqs := []Request{
		{Drive: 1, Folder: "/docs/", Name: "a.txt", Target: filepath.Join(dir, "a.txt"), Size: 5},
		{Drive: 1, Folder: "/docs/", Name: "b.txt", Target: filepath.Join(dir, "b.txt"), Size: -1},
	}
	tasks := m.Run(context.Background(), reqs, nil)

	if len(tasks) != 2 {
		t.Fatalf("len(tasks) = %d, want 2", len(tasks))
	}
	for i, task := range tasks {
		if task.State != TaskCompleted {
			t.Errorf("task %d State = %v (%v), want completed", i, task.State, task.Error)
		}
		data, err := os.ReadFile(reqs[i].Target)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if string(data) != dl.content[reqs[i].Name] {
			t.Errorf("%s = %q, want %q", reqs[i].Name, data, dl.content[reqs[i].Name])
		}
		if task.Written != int64(len(data)) {
			t.Errorf("Written = %d, want %d", task.Written, len(data))
		}
	}
	if got := q.Stats().Completed; got != 2 {
		t.Errorf("Completed = %d, want 2", got)
	}
}

func TestManagerFailureRemovesPartialFile(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("fetch failed")
	dl := &fakeDownloader{
		content: map[string]string{"ok.txt": "fine"},
		fail:    map[string]error{"bad.txt": boom},
	}
	m := NewManager(dl, nil, 1, nil)

	tasks := m.Run(context.Background(), []Request{
		{Name: "bad.txt", Target: filepath.Join(dir, "bad.txt"), Size: -1},
		{Name: "ok.txt", Target: filepath.Join(dir, "ok.txt"), Size: -1},
	}, nil)

	if tasks[0].State != TaskFailed || !errors.Is(tasks[0].Error, boom) {
		t.Errorf("bad.txt = %v (%v), want failed with %v", tasks[0].State, tasks[0].Error, boom)
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.txt")); !os.IsNotExist(err) {
		t.Errorf("partial file should be removed, Stat error = %v", err)
	}
	if tasks[1].State != TaskCompleted {
		t.Errorf("ok.txt = %v, want completed after a sibling failure", tasks[1].State)
	}
}

func TestManagerRespectsParallelLimit(t *testing.T) {
	dir := t.TempDir()
	content := map[string]string{}
	var reqs []Request
	for _, name := range []string{"1", "2", "3", "4", "5", "6"} {
		content[name] = "x"
		reqs = append(reqs, Request{Name: name, Target: filepath.Join(dir, name), Size: 1})
	}
	dl := &fakeDownloader{content: content}

	tasks := NewManager(dl, nil, 2, nil).Run(context.Background(), reqs, nil)

	if len(tasks) != len(reqs) {
		t.Fatalf("len(tasks) = %d, want %d", len(tasks), len(reqs))
	}
	if peak := dl.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestManagerCancelledContext(t *testing.T) {
	dir := t.TempDir()
	dl := &fakeDownloader{content: map[string]string{"a": "x", "b": "y"}, block: make(chan struct{})}
	m := NewManager(dl, nil, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []Task)
	go func() {
		done <- m.Run(ctx, []Request{
			{Name: "a", Target: filepath.Join(dir, "a"), Size: 1},
			{Name: "b", Target: filepath.Join(dir, "b"), Size: 1},
		}, nil)
	}()

	cancel()
	tasks := <-done

	for _, task := range tasks {
		if task.State != TaskCancelled {
			t.Errorf("%s State = %v, want cancelled", task.Name, task.State)
		}
	}
}

func TestManagerWithUI(t *testing.T) {
	dir := t.TempDir()
	dl := &fakeDownloader{content: map[string]string{"a.txt": "alpha"}}
	var out safeBuffer
	ui := progress.NewDownloadUI(&out, 1)

	tasks := NewManager(dl, nil, 1, nil).Run(context.Background(), []Request{
		{Name: "a.txt", Target: filepath.Join(dir, "a.txt"), Size: 5},
	}, ui)
	ui.Wait()

	if tasks[0].State != TaskCompleted {
		t.Fatalf("State = %v, want completed", tasks[0].State)
	}
	if ui.Completed() != 1 {
		t.Errorf("Completed() = %d, want 1", ui.Completed())
	}
	text := out.String()
	if !strings.Contains(text, "Downloading [1/1]: a.txt") || !strings.Contains(text, "✓ a.txt") {
		t.Errorf("UI output = %q", text)
	}
}

type safeBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (s *safeBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *safeBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}
