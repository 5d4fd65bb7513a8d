package state

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/maruel/natural"

	"github.com/driveindex/drive-index/internal/api"
	"github.com/driveindex/drive-index/internal/events"
	"github.com/driveindex/drive-index/internal/logging"
	"github.com/driveindex/drive-index/internal/models"
	"github.com/driveindex/drive-index/internal/pathcodec"
)

// ListingController owns the paginated listing of one location at a time.
// Every fetch is tagged with a generation; results that come back after a
// newer navigation are discarded. Thread-safe for concurrent access. Events
// are published after the lock is released.
type ListingController struct {
	lister   Lister
	eventBus *events.EventBus
	opts     ListingOptions
	logger   *logging.Logger

	loc        pathcodec.Location
	status     Status
	files      []models.DriveFile
	token      string
	pageIndex  int
	lastError  error
	password   string
	selected   mapset.Set[string]
	generation uint64
	cancel     context.CancelFunc
	reload     *time.Timer

	mu sync.Mutex
}

// NewListingController creates an idle controller.
func NewListingController(lister Lister, eventBus *events.EventBus, opts ListingOptions) *ListingController {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ListingController{
		lister:   lister,
		eventBus: eventBus,
		opts:     opts,
		logger:   logger,
		status:   StatusIdle,
		files:    make([]models.DriveFile, 0),
		selected: mapset.NewThreadUnsafeSet[string](),
	}
}

// Navigate switches to loc from any state and fetches its first page. The
// accumulated files, token and page index are reset before the fetch starts;
// any in-flight fetch is cancelled and its result discarded.
func (c *ListingController) Navigate(ctx context.Context, loc pathcodec.Location) error {
	loc = loc.Folder()

	c.mu.Lock()
	if loc != c.loc {
		c.password = ""
	}
	c.loc = loc
	c.selected.Clear()
	c.mu.Unlock()

	c.eventBus.PublishSelection([]string{})
	return c.fetchFirstPage(ctx)
}

// Retry refetches the first page of the current location. Only valid from
// the error state.
func (c *ListingController) Retry(ctx context.Context) error {
	c.mu.Lock()
	status := c.status
	c.mu.Unlock()

	if status != StatusError {
		return ErrInvalidTransition
	}
	return c.fetchFirstPage(ctx)
}

// Reload refetches the first page of the current location regardless of state.
func (c *ListingController) Reload(ctx context.Context) error {
	return c.fetchFirstPage(ctx)
}

// SetPassword sets the password sent with fetches of the current location.
// Call Retry afterwards to use it.
func (c *ListingController) SetPassword(password string) {
	c.mu.Lock()
	c.password = password
	c.mu.Unlock()
}

func (c *ListingController) fetchFirstPage(ctx context.Context) error {
	c.mu.Lock()
	gen, fetchCtx := c.beginLocked(ctx)
	c.status = StatusLoading
	c.files = make([]models.DriveFile, 0)
	c.token = ""
	c.pageIndex = 0
	c.lastError = nil
	loc := c.loc
	password := c.password
	c.mu.Unlock()

	c.eventBus.PublishLoading(loc.Drive, loc.Path, 0, false, gen)

	page, err := c.lister.ListFolder(fetchCtx, loc.Drive, loc.Path, api.ListOptions{Password: password})

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug().Uint64("generation", gen).Str("path", loc.Path).Msg("discarding stale listing")
		return ErrSuperseded
	}
	if err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		c.eventBus.PublishListingError(loc.Drive, loc.Path, err, api.IsPasswordRequired(err))
		return err
	}

	c.files = append(c.files, page.Files...)
	c.token = page.NextPageToken
	c.pageIndex = 0
	c.status = StatusReady
	count, hasMore := len(c.files), c.token != ""
	c.mu.Unlock()

	c.eventBus.PublishChanged(loc.Drive, loc.Path, events.ReasonLoaded, count, 0, hasMore, "")
	return nil
}

// LoadMore fetches the next page and appends it. Only valid when ready with a
// continuation token.
func (c *ListingController) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusReady {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	if c.token == "" {
		c.mu.Unlock()
		return ErrNoMorePages
	}

	gen, fetchCtx := c.beginLocked(ctx)
	c.status = StatusLoadingMore
	loc := c.loc
	password := c.password
	opts := api.ListOptions{PageToken: c.token, PageIndex: c.pageIndex + 1, Password: password}
	c.mu.Unlock()

	c.eventBus.PublishLoading(loc.Drive, loc.Path, opts.PageIndex, true, gen)

	page, err := c.lister.ListFolder(fetchCtx, loc.Drive, loc.Path, opts)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug().Uint64("generation", gen).Str("path", loc.Path).Msg("discarding stale page")
		return ErrSuperseded
	}
	if err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		c.eventBus.PublishListingError(loc.Drive, loc.Path, err, api.IsPasswordRequired(err))
		return err
	}

	c.files = append(c.files, page.Files...)
	c.token = page.NextPageToken
	c.pageIndex++
	c.status = StatusReady
	count, pageIndex, hasMore := len(c.files), c.pageIndex, c.token != ""
	c.mu.Unlock()

	c.eventBus.PublishChanged(loc.Drive, loc.Path, events.ReasonAppended, count, pageIndex, hasMore, "")
	return nil
}

// beginLocked starts a new generation, cancelling the previous fetch and any
// pending reload. Must hold lock.
func (c *ListingController) beginLocked(ctx context.Context) (uint64, context.Context) {
	if c.cancel != nil {
		c.cancel()
	}
	if c.reload != nil {
		c.reload.Stop()
		c.reload = nil
	}
	c.generation++
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	return c.generation, fetchCtx
}

// failLocked enters the error state. Accumulated files are kept. Must hold lock.
func (c *ListingController) failLocked(err error) {
	c.status = StatusError
	c.lastError = err
}

// ApplyRename replaces the name of the entry with id in place. Token, page
// index and status are untouched. Reports whether an entry matched.
func (c *ListingController) ApplyRename(id, newName string) bool {
	c.mu.Lock()
	found := false
	for i := range c.files {
		if c.files[i].ID == id {
			c.files[i].Name = newName
			found = true
			break
		}
	}
	loc, count, pageIndex, hasMore := c.loc, len(c.files), c.pageIndex, c.token != ""
	c.mu.Unlock()

	if found {
		c.eventBus.PublishChanged(loc.Drive, loc.Path, events.ReasonRenamed, count, pageIndex, hasMore, id)
	}
	return found
}

// ApplyDelete removes the entry with id in place. Token, page index and
// status are untouched. Reports whether an entry matched.
func (c *ListingController) ApplyDelete(id string) bool {
	c.mu.Lock()
	found := false
	for i := range c.files {
		if c.files[i].ID == id {
			c.files = append(c.files[:i], c.files[i+1:]...)
			found = true
			break
		}
	}
	wasSelected := c.selected.Contains(id)
	c.selected.Remove(id)
	selectedIDs := c.selectedIDsLocked()
	loc, count, pageIndex, hasMore := c.loc, len(c.files), c.pageIndex, c.token != ""
	c.mu.Unlock()

	if found {
		c.eventBus.PublishChanged(loc.Drive, loc.Path, events.ReasonDeleted, count, pageIndex, hasMore, id)
	}
	if wasSelected {
		c.eventBus.PublishSelection(selectedIDs)
	}
	return found
}

// Rename renames a file through m and reflects the result in the listing.
// Renaming to the current name is a no-op.
func (c *ListingController) Rename(ctx context.Context, m Mutator, id, newName string) error {
	if strings.TrimSpace(newName) == "" {
		return ErrEmptyName
	}
	if id == "" || id == models.PlaceholderID {
		return api.ErrMissingIdentifier
	}

	current, found := c.FindByID(id)
	if found && current.Name == newName {
		return nil
	}

	c.mu.Lock()
	drive := c.loc.Drive
	c.mu.Unlock()

	if !c.opts.OptimisticUpdates {
		if _, err := m.RenameFile(ctx, drive, id, newName); err != nil {
			c.eventBus.PublishMutationFailed("rename", id, err, false)
			return err
		}
		c.scheduleReload()
		return nil
	}

	before := c.capture()
	if found {
		c.ApplyRename(id, newName)
	}

	res, err := m.RenameFile(ctx, drive, id, newName)
	if err != nil {
		rolledBack := c.opts.RollbackOnFailure && found && c.restore(before)
		c.eventBus.PublishMutationFailed("rename", id, err, rolledBack)
		return err
	}
	if found && res != nil && res.Name != "" && res.Name != newName {
		c.ApplyRename(id, res.Name)
	}
	return nil
}

// Delete deletes a file through m and reflects the result in the listing.
func (c *ListingController) Delete(ctx context.Context, m Mutator, id string) error {
	if id == "" || id == models.PlaceholderID {
		return api.ErrMissingIdentifier
	}

	c.mu.Lock()
	drive := c.loc.Drive
	c.mu.Unlock()

	if !c.opts.OptimisticUpdates {
		if err := m.DeleteFile(ctx, drive, id); err != nil {
			c.eventBus.PublishMutationFailed("delete", id, err, false)
			return err
		}
		c.scheduleReload()
		return nil
	}

	before := c.capture()
	found := c.ApplyDelete(id)

	if err := m.DeleteFile(ctx, drive, id); err != nil {
		rolledBack := c.opts.RollbackOnFailure && found && c.restore(before)
		c.eventBus.PublishMutationFailed("delete", id, err, rolledBack)
		return err
	}
	return nil
}

// mutationSnapshot is the pre-state captured before an optimistic mutation.
type mutationSnapshot struct {
	generation uint64
	files      []models.DriveFile
}

func (c *ListingController) capture() mutationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	files := make([]models.DriveFile, len(c.files))
	copy(files, c.files)
	return mutationSnapshot{generation: c.generation, files: files}
}

// restore replays a captured pre-state unless the listing has since been
// refetched. Reports whether it was applied.
func (c *ListingController) restore(s mutationSnapshot) bool {
	c.mu.Lock()
	if s.generation != c.generation {
		c.mu.Unlock()
		return false
	}
	c.files = s.files
	loc, count, pageIndex, hasMore := c.loc, len(c.files), c.pageIndex, c.token != ""
	c.mu.Unlock()

	c.eventBus.PublishChanged(loc.Drive, loc.Path, events.ReasonRestored, count, pageIndex, hasMore, "")
	return true
}

// scheduleReload refetches the current location after ReloadDelay unless a
// newer fetch starts first.
func (c *ListingController) scheduleReload() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reload != nil {
		c.reload.Stop()
	}
	gen := c.generation
	c.reload = time.AfterFunc(c.opts.ReloadDelay, func() {
		c.mu.Lock()
		current := c.generation
		c.mu.Unlock()
		if current != gen {
			return
		}
		if err := c.Reload(context.Background()); err != nil && err != ErrSuperseded {
			c.logger.Debug().Err(err).Msg("reload after mutation failed")
		}
	})
}

// Close cancels any in-flight fetch and pending reload.
func (c *ListingController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.reload != nil {
		c.reload.Stop()
		c.reload = nil
	}
	c.generation++
}

// Snapshot returns a copy of the current state.
func (c *ListingController) Snapshot() ListingSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	files := make([]models.DriveFile, len(c.files))
	copy(files, c.files)
	return ListingSnapshot{
		Location:      c.loc,
		Status:        c.status,
		Files:         files,
		NextPageToken: c.token,
		PageIndex:     c.pageIndex,
		Err:           c.lastError,
		Generation:    c.generation,
	}
}

// Status returns the current status.
func (c *ListingController) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Location returns the current location.
func (c *ListingController) Location() pathcodec.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loc
}

// Files returns a copy of the accumulated files in worker order.
func (c *ListingController) Files() []models.DriveFile {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]models.DriveFile, len(c.files))
	copy(result, c.files)
	return result
}

// Sorted returns the accumulated files with folders first, then in natural
// name order. The stored order is untouched.
func (c *ListingController) Sorted() []models.DriveFile {
	files := c.Files()
	SortFiles(files)
	return files
}

// SortFiles sorts files in place: folders first, then natural name order.
func SortFiles(files []models.DriveFile) {
	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.IsFolder() != b.IsFolder() {
			return a.IsFolder()
		}
		return natural.Less(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
}

// FindByID finds a file by ID.
func (c *ListingController) FindByID(id string) (models.DriveFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range c.files {
		if f.ID == id {
			return f, true
		}
	}
	return models.DriveFile{}, false
}

// FindByName finds the first file with the given name.
func (c *ListingController) FindByName(name string) (models.DriveFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range c.files {
		if f.Name == name {
			return f, true
		}
	}
	return models.DriveFile{}, false
}

// Count returns the number of accumulated files.
func (c *ListingController) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.files)
}

// Select adds a file to the selection.
func (c *ListingController) Select(id string) {
	c.mu.Lock()
	c.selected.Add(id)
	selectedIDs := c.selectedIDsLocked()
	c.mu.Unlock()

	c.eventBus.PublishSelection(selectedIDs)
}

// Deselect removes a file from the selection.
func (c *ListingController) Deselect(id string) {
	c.mu.Lock()
	c.selected.Remove(id)
	selectedIDs := c.selectedIDsLocked()
	c.mu.Unlock()

	c.eventBus.PublishSelection(selectedIDs)
}

// ToggleSelect toggles a file's selection state.
func (c *ListingController) ToggleSelect(id string) {
	c.mu.Lock()
	if c.selected.Contains(id) {
		c.selected.Remove(id)
	} else {
		c.selected.Add(id)
	}
	selectedIDs := c.selectedIDsLocked()
	c.mu.Unlock()

	c.eventBus.PublishSelection(selectedIDs)
}

// IsSelected returns whether a file is selected.
func (c *ListingController) IsSelected(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected.Contains(id)
}

// Selected returns the selected ids in sorted order.
func (c *ListingController) Selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedIDsLocked()
}

// selectedIDsLocked returns selected IDs (must hold lock).
func (c *ListingController) selectedIDsLocked() []string {
	ids := c.selected.ToSlice()
	sort.Strings(ids)
	return ids
}
