package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/driveindex/drive-index/internal/api"
	"github.com/driveindex/drive-index/internal/events"
	"github.com/driveindex/drive-index/internal/models"
	"github.com/driveindex/drive-index/internal/pathcodec"
)

type listCall struct {
	drive int
	path  string
	opts  api.ListOptions
}

// fakeLister serves pages keyed by page token ("" for the first page).
type fakeLister struct {
	mu    sync.Mutex
	pages map[string]*models.ListingPage
	err   error
	calls []listCall
	// block, when set, holds every call until it is closed or ctx ends.
	block chan struct{}
}

func (f *fakeLister) ListFolder(ctx context.Context, drive int, path string, opts api.ListOptions) (*models.ListingPage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, listCall{drive: drive, path: path, opts: opts})
	block, err := f.block, f.err
	page := f.pages[opts.PageToken]
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if page == nil {
		return &models.ListingPage{}, nil
	}
	return page, nil
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLister) lastCall() listCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeMutator struct {
	mu      sync.Mutex
	err     error
	renames []string
	deletes []string
}

func (m *fakeMutator) RenameFile(ctx context.Context, drive int, fileID, newName string) (*api.RenameResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renames = append(m.renames, fileID+"="+newName)
	if m.err != nil {
		return nil, m.err
	}
	return &api.RenameResult{Name: newName}, nil
}

func (m *fakeMutator) DeleteFile(ctx context.Context, drive int, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, fileID)
	return m.err
}

func file(id, name string) models.DriveFile {
	f := models.DriveFile{ID: id, Name: name, MimeType: "text/plain"}
	f.Normalize()
	return f
}

func folder(id, name string) models.DriveFile {
	f := models.DriveFile{ID: id, Name: name, MimeType: models.FolderMimeType}
	f.Normalize()
	return f
}

func twoPageLister() *fakeLister {
	return &fakeLister{pages: map[string]*models.ListingPage{
		"":   {Files: []models.DriveFile{file("f1", "a.txt"), file("f2", "b.txt")}, NextPageToken: "T1"},
		"T1": {Files: []models.DriveFile{file("f3", "c.txt")}, NextPageToken: ""},
	}}
}

func ids(files []models.DriveFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.ID
	}
	return out
}

func equalStrings(a, b []string) bool {
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

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusIdle, "idle"},
		{StatusLoading, "loading"},
		{StatusReady, "ready"},
		{StatusLoadingMore, "loading_more"},
		{StatusError, "error"},
		{Status(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestNavigateLoadsFirstPage(t *testing.T) {
	lister := twoPageLister()
	c := NewListingController(lister, nil, ListingOptions{})

	if c.Status() != StatusIdle {
		t.Fatalf("initial status = %s, want idle", c.Status())
	}

	if err := c.Navigate(context.Background(), pathcodec.Location{Drive: 1, Path: "/docs"}); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}

	snap := c.Snapshot()
	if snap.Status != StatusReady {
		t.Errorf("status = %s, want ready", snap.Status)
	}
	if !equalStrings(ids(snap.Files), []string{"f1", "f2"}) {
		t.Errorf("files = %v", ids(snap.Files))
	}
	if snap.NextPageToken != "T1" || snap.PageIndex != 0 || !snap.HasMore() {
		t.Errorf("token/page = %q/%d", snap.NextPageToken, snap.PageIndex)
	}
	if snap.Location != (pathcodec.Location{Drive: 1, Path: "/docs/"}) {
		t.Errorf("location = %+v", snap.Location)
	}

	call := lister.lastCall()
	if call.drive != 1 || call.path != "/docs/" || call.opts.PageToken != "" || call.opts.PageIndex != 0 {
		t.Errorf("unexpected request %+v", call)
	}
}

func TestLoadMoreAppends(t *testing.T) {
	lister := twoPageLister()
	c := NewListingController(lister, nil, ListingOptions{})
	ctx := context.Background()

	if err := c.Navigate(ctx, pathcodec.Root(0)); err != nil {
		t.Fatal(err)
	}
	if err := c.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore() error = %v", err)
	}

	snap := c.Snapshot()
	if !equalStrings(ids(snap.Files), []string{"f1", "f2", "f3"}) {
		t.Errorf("files = %v, want [f1 f2 f3]", ids(snap.Files))
	}
	if snap.NextPageToken != "" || snap.PageIndex != 1 {
		t.Errorf("token/page = %q/%d, want \"\"/1", snap.NextPageToken, snap.PageIndex)
	}

	call := lister.lastCall()
	if call.opts.PageToken != "T1" || call.opts.PageIndex != 1 {
		t.Errorf("LoadMore request = %+v, want token T1 page 1", call.opts)
	}

	if err := c.LoadMore(ctx); !errors.Is(err, ErrNoMorePages) {
		t.Errorf("LoadMore() on last page = %v, want ErrNoMorePages", err)
	}
	if lister.callCount() != 2 {
		t.Errorf("calls = %d, want 2", lister.callCount())
	}
}

func TestLoadMoreInvalidFromIdle(t *testing.T) {
	c := NewListingController(twoPageLister(), nil, ListingOptions{})
	if err := c.LoadMore(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("LoadMore() from idle = %v, want ErrInvalidTransition", err)
	}
}

func TestNavigateResetsAccumulation(t *testing.T) {
	lister := twoPageLister()
	c := NewListingController(lister, nil, ListingOptions{})
	ctx := context.Background()

	_ = c.Navigate(ctx, pathcodec.Root(0))
	_ = c.LoadMore(ctx)
	_ = c.Navigate(ctx, pathcodec.Location{Drive: 0, Path: "/other/"})

	snap := c.Snapshot()
	if len(snap.Files) != 2 || snap.PageIndex != 0 || snap.NextPageToken != "T1" {
		t.Errorf("after navigate: files=%v page=%d token=%q", ids(snap.Files), snap.PageIndex, snap.NextPageToken)
	}
}

func TestStaleNavigationDiscarded(t *testing.T) {
	slow := &fakeLister{
		pages: map[string]*models.ListingPage{"": {Files: []models.DriveFile{file("old", "old.txt")}}},
		block: make(chan struct{}),
	}
	c := NewListingController(slow, nil, ListingOptions{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Navigate(context.Background(), pathcodec.Location{Drive: 0, Path: "/a/"})
	}()

	deadline := time.Now().Add(time.Second)
	for slow.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	// The second navigation is served without blocking.
	slow.mu.Lock()
	slow.block = nil
	slow.pages[""] = &models.ListingPage{Files: []models.DriveFile{file("new", "new.txt")}}
	slow.mu.Unlock()

	if err := c.Navigate(context.Background(), pathcodec.Location{Drive: 0, Path: "/b/"}); err != nil {
		t.Fatalf("second Navigate() error = %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("first Navigate() = %v, want ErrSuperseded", err)
		}
	case <-time.After(time.Second):
		t.Fatal("first Navigate() did not return after cancellation")
	}

	snap := c.Snapshot()
	if !equalStrings(ids(snap.Files), []string{"new"}) || snap.Location.Path != "/b/" {
		t.Errorf("state = %v at %s, want [new] at /b/", ids(snap.Files), snap.Location.Path)
	}
}

func TestFetchErrorAndRetry(t *testing.T) {
	lister := twoPageLister()
	lister.err = &api.PasswordRequiredError{Drive: 0, Path: "/locked/"}
	bus := events.NewEventBus(10)
	defer bus.Close()
	errCh := bus.Subscribe(events.EventListingError)

	c := NewListingController(lister, bus, ListingOptions{})
	ctx := context.Background()

	err := c.Navigate(ctx, pathcodec.Location{Path: "/locked/"})
	if !api.IsPasswordRequired(err) {
		t.Fatalf("Navigate() = %v, want password required", err)
	}
	snap := c.Snapshot()
	if snap.Status != StatusError || !api.IsPasswordRequired(snap.Err) {
		t.Errorf("snapshot = %s / %v", snap.Status, snap.Err)
	}

	select {
	case ev := <-errCh:
		if !ev.(*events.ListingErrorEvent).PasswordRequired {
			t.Error("listing error event should flag password required")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no listing error event")
	}

	lister.mu.Lock()
	lister.err = nil
	lister.mu.Unlock()

	c.SetPassword("hunter2")
	if err := c.Retry(ctx); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if c.Status() != StatusReady {
		t.Errorf("status after retry = %s", c.Status())
	}
	if got := lister.lastCall().opts.Password; got != "hunter2" {
		t.Errorf("retry password = %q, want hunter2", got)
	}
	if err := c.Retry(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Retry() from ready = %v, want ErrInvalidTransition", err)
	}
}

func TestLoadMoreFailureKeepsFiles(t *testing.T) {
	lister := twoPageLister()
	c := NewListingController(lister, nil, ListingOptions{})
	ctx := context.Background()
	_ = c.Navigate(ctx, pathcodec.Root(0))

	lister.mu.Lock()
	lister.err = &api.FetchFailedError{StatusCode: 500}
	lister.mu.Unlock()

	if err := c.LoadMore(ctx); api.StatusCode(err) != 500 {
		t.Fatalf("LoadMore() = %v, want status 500", err)
	}
	snap := c.Snapshot()
	if snap.Status != StatusError || len(snap.Files) != 2 {
		t.Errorf("after failed LoadMore: %s with %d files", snap.Status, len(snap.Files))
	}
}

func TestApplyRenameAndDelete(t *testing.T) {
	c := NewListingController(twoPageLister(), nil, ListingOptions{})
	ctx := context.Background()
	_ = c.Navigate(ctx, pathcodec.Root(0))
	_ = c.LoadMore(ctx)
	before := c.Snapshot()

	if !c.ApplyRename("f1", "z.txt") {
		t.Fatal("ApplyRename(f1) reported no match")
	}
	f, ok := c.FindByID("f1")
	if !ok || f.Name != "z.txt" {
		t.Errorf("f1 = %+v", f)
	}
	if other, _ := c.FindByID("f2"); other.Name != "b.txt" {
		t.Errorf("f2 changed to %q", other.Name)
	}
	if c.ApplyRename("missing", "x") {
		t.Error("ApplyRename(missing) reported a match")
	}

	if !c.ApplyDelete("f2") {
		t.Fatal("ApplyDelete(f2) reported no match")
	}
	after := c.Snapshot()
	if !equalStrings(ids(after.Files), []string{"f1", "f3"}) {
		t.Errorf("files = %v, want [f1 f3]", ids(after.Files))
	}
	if after.NextPageToken != before.NextPageToken || after.PageIndex != before.PageIndex || after.Status != before.Status {
		t.Errorf("pagination changed: %+v -> %+v", before, after)
	}
}

func TestRenameOptimistic(t *testing.T) {
	c := NewListingController(twoPageLister(), nil, ListingOptions{OptimisticUpdates: true})
	ctx := context.Background()
	_ = c.Navigate(ctx, pathcodec.Root(0))
	m := &fakeMutator{}

	if err := c.Rename(ctx, m, "f1", "renamed.txt"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if f, _ := c.FindByID("f1"); f.Name != "renamed.txt" {
		t.Errorf("name = %q", f.Name)
	}

	// Same name is a no-op.
	if err := c.Rename(ctx, m, "f1", "renamed.txt"); err != nil {
		t.Fatal(err)
	}
	if len(m.renames) != 1 {
		t.Errorf("mutator calls = %d, want 1", len(m.renames))
	}
}

func TestRenameComparesExactName(t *testing.T) {
	c := NewListingController(twoPageLister(), nil, ListingOptions{OptimisticUpdates: true})
	ctx := context.Background()
	_ = c.Navigate(ctx, pathcodec.Root(0))
	m := &fakeMutator{}

	for _, r := range []struct{ id, name string }{
		{"f1", "a.txt "},
		{"f2", " new.txt"},
		{"f2", " new.txt"},
		{"f1", "A.TXT "},
	} {
		if err := c.Rename(ctx, m, r.id, r.name); err != nil {
			t.Fatalf("Rename(%s, %q) error = %v", r.id, r.name, err)
		}
	}

	want := []string{"f1=a.txt ", "f2= new.txt", "f1=A.TXT "}
	if !equalStrings(m.renames, want) {
		t.Errorf("renames = %q, want %q", m.renames, want)
	}
	if f, _ := c.FindByID("f2"); f.Name != " new.txt" {
		t.Errorf("f2 name = %q, want untrimmed", f.Name)
	}
}

func TestRenameGuards(t *testing.T) {
	c := NewListingController(twoPageLister(), nil, ListingOptions{OptimisticUpdates: true})
	m := &fakeMutator{}
	ctx := context.Background()

	if err := c.Rename(ctx, m, "f1", "   "); !errors.Is(err, ErrEmptyName) {
		t.Errorf("blank name = %v", err)
	}
	if err := c.Rename(ctx, m, models.PlaceholderID, "x"); !api.IsMissingIdentifier(err) {
		t.Errorf("placeholder id = %v", err)
	}
	if err := c.Delete(ctx, m, ""); !api.IsMissingIdentifier(err) {
		t.Errorf("empty id = %v", err)
	}
	if len(m.renames)+len(m.deletes) != 0 {
		t.Error("guarded calls reached the mutator")
	}
}

func TestMutationFailureRollback(t *testing.T) {
	tests := []struct {
		name       string
		rollback   bool
		wantName   string
		wantCount  int
		wantRolled bool
	}{
		{"no rollback keeps optimistic change", false, "new.txt", 1, false},
		{"rollback restores previous state", true, "a.txt", 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := events.NewEventBus(10)
			defer bus.Close()
			failed := bus.Subscribe(events.EventMutationFailed)

			c := NewListingController(twoPageLister(), bus, ListingOptions{
				OptimisticUpdates: true,
				RollbackOnFailure: tt.rollback,
			})
			ctx := context.Background()
			_ = c.Navigate(ctx, pathcodec.Root(0))
			m := &fakeMutator{err: &api.RenameFailedError{StatusCode: 403, Message: "denied"}}

			if err := c.Rename(ctx, m, "f1", "new.txt"); err == nil {
				t.Fatal("Rename() expected error")
			}
			if f, _ := c.FindByID("f1"); f.Name != tt.wantName {
				t.Errorf("name after failed rename = %q, want %q", f.Name, tt.wantName)
			}

			if err := c.Delete(ctx, m, "f2"); err == nil {
				t.Fatal("Delete() expected error")
			}
			if c.Count() != tt.wantCount {
				t.Errorf("count after failed delete = %d, want %d", c.Count(), tt.wantCount)
			}

			for i := 0; i < 2; i++ {
				select {
				case ev := <-failed:
					if ev.(*events.MutationFailedEvent).RolledBack != tt.wantRolled {
						t.Errorf("RolledBack = %v, want %v", !tt.wantRolled, tt.wantRolled)
					}
				case <-time.After(100 * time.Millisecond):
					t.Fatal("missing mutation_failed event")
				}
			}
		})
	}
}

func TestMutationWithoutOptimisticReloads(t *testing.T) {
	lister := twoPageLister()
	c := NewListingController(lister, nil, ListingOptions{ReloadDelay: 10 * time.Millisecond})
	ctx := context.Background()
	_ = c.Navigate(ctx, pathcodec.Root(0))

	if err := c.Delete(ctx, &fakeMutator{}, "f1"); err != nil {
		t.Fatal(err)
	}
	if c.Count() != 2 {
		t.Errorf("listing changed before reload: %d files", c.Count())
	}

	deadline := time.Now().Add(time.Second)
	for lister.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if lister.callCount() != 2 {
		t.Errorf("calls = %d, want reload to fetch again", lister.callCount())
	}
	c.Close()
}

func TestSortedFoldersFirstNatural(t *testing.T) {
	lister := &fakeLister{pages: map[string]*models.ListingPage{
		"": {Files: []models.DriveFile{
			file("1", "file10.txt"),
			folder("2", "Zeta"),
			file("3", "file2.txt"),
			folder("4", "alpha"),
		}},
	}}
	c := NewListingController(lister, nil, ListingOptions{})
	_ = c.Navigate(context.Background(), pathcodec.Root(0))

	if got := ids(c.Sorted()); !equalStrings(got, []string{"4", "2", "3", "1"}) {
		t.Errorf("Sorted() = %v, want [4 2 3 1]", got)
	}
	if got := ids(c.Files()); !equalStrings(got, []string{"1", "2", "3", "4"}) {
		t.Errorf("stored order changed: %v", got)
	}
}

func TestSelection(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	sel := bus.Subscribe(events.EventSelectionChanged)

	c := NewListingController(twoPageLister(), bus, ListingOptions{})
	_ = c.Navigate(context.Background(), pathcodec.Root(0))
	<-sel // navigation clears the selection

	c.Select("f2")
	c.Select("f1")
	c.ToggleSelect("f2")
	c.ToggleSelect("f3")

	if got := c.Selected(); !equalStrings(got, []string{"f1", "f3"}) {
		t.Errorf("Selected() = %v, want [f1 f3]", got)
	}
	if !c.IsSelected("f1") || c.IsSelected("f2") {
		t.Error("IsSelected mismatch")
	}

	c.ApplyDelete("f1")
	if got := c.Selected(); !equalStrings(got, []string{"f3"}) {
		t.Errorf("Selected() after delete = %v, want [f3]", got)
	}

	c.Deselect("f3")
	if len(c.Selected()) != 0 {
		t.Error("selection should be empty")
	}
}
