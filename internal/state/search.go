package state

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/driveindex/drive-index/internal/api"
	"github.com/driveindex/drive-index/internal/events"
	"github.com/driveindex/drive-index/internal/logging"
	"github.com/driveindex/drive-index/internal/models"
)

// SearchSnapshot is a consistent copy of the search state.
type SearchSnapshot struct {
	Query         string
	Files         []models.DriveFile
	NextPageToken string
	PageIndex     int
	Loading       bool
	Err           error
}

// HasMore reports whether LoadMore can fetch another page.
func (s SearchSnapshot) HasMore() bool {
	return s.NextPageToken != ""
}

// SearchSession runs debounced searches against one drive. Only the most
// recently submitted query is ever applied; earlier results are discarded.
type SearchSession struct {
	searcher  Searcher
	eventBus  *events.EventBus
	logger    *logging.Logger
	drive     int
	debounced func(f func())

	baseCtx    context.Context
	stop       context.CancelFunc
	cancel     context.CancelFunc
	generation uint64

	query     string
	files     []models.DriveFile
	token     string
	pageIndex int
	loading   bool
	lastError error

	mu sync.Mutex
}

// NewSearchSession creates a session that waits delay after the last Submit
// before querying the worker.
func NewSearchSession(searcher Searcher, eventBus *events.EventBus, drive int, delay time.Duration, logger *logging.Logger) *SearchSession {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &SearchSession{
		searcher:  searcher,
		eventBus:  eventBus,
		logger:    logger,
		drive:     drive,
		debounced: debounce.New(delay),
		baseCtx:   ctx,
		stop:      stop,
		files:     make([]models.DriveFile, 0),
	}
}

// Submit schedules a search for query. A whitespace-only query clears the
// results immediately and sends nothing.
func (s *SearchSession) Submit(query string) {
	query = strings.TrimSpace(query)

	s.mu.Lock()
	gen := s.nextGenerationLocked()
	s.query = query
	if query == "" {
		s.resetLocked()
		drive := s.drive
		s.mu.Unlock()
		s.debounced(func() {})
		s.eventBus.PublishSearchResults(drive, "", 0, false, nil)
		return
	}
	s.loading = true
	s.mu.Unlock()

	s.debounced(func() {
		_ = s.run(s.baseCtx, gen, query)
	})
}

// Search runs query immediately, skipping the debounce. Used by callers that
// are not driven by keystrokes.
func (s *SearchSession) Search(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)

	s.mu.Lock()
	gen := s.nextGenerationLocked()
	s.query = query
	if query == "" {
		s.resetLocked()
		drive := s.drive
		s.mu.Unlock()
		s.eventBus.PublishSearchResults(drive, "", 0, false, nil)
		return nil
	}
	s.loading = true
	s.mu.Unlock()

	return s.run(ctx, gen, query)
}

func (s *SearchSession) run(ctx context.Context, gen uint64, query string) error {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return ErrSuperseded
	}
	drive := s.drive
	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	page, err := s.searcher.SearchFiles(fetchCtx, drive, query, api.SearchOptions{})

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug().Str("query", query).Msg("discarding stale search results")
		return ErrSuperseded
	}
	s.loading = false
	if err != nil {
		s.lastError = err
		s.files = make([]models.DriveFile, 0)
		s.token = ""
		s.mu.Unlock()
		s.eventBus.PublishSearchResults(drive, query, 0, false, err)
		return err
	}
	s.lastError = nil
	s.files = append(make([]models.DriveFile, 0, len(page.Files)), page.Files...)
	s.token = page.NextPageToken
	s.pageIndex = 0
	count, hasMore := len(s.files), s.token != ""
	s.mu.Unlock()

	s.eventBus.PublishSearchResults(drive, query, count, hasMore, nil)
	return nil
}

// LoadMore fetches the next page of the current query and appends it.
func (s *SearchSession) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.loading || s.query == "" {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	if s.token == "" {
		s.mu.Unlock()
		return ErrNoMorePages
	}
	gen := s.generation
	drive := s.drive
	query := s.query
	opts := api.SearchOptions{PageToken: s.token, PageIndex: s.pageIndex + 1}
	s.loading = true
	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	page, err := s.searcher.SearchFiles(fetchCtx, drive, query, opts)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.loading = false
	if err != nil {
		s.lastError = err
		count := len(s.files)
		s.mu.Unlock()
		s.eventBus.PublishSearchResults(drive, query, count, true, err)
		return err
	}
	s.lastError = nil
	s.files = append(s.files, page.Files...)
	s.token = page.NextPageToken
	s.pageIndex++
	count, hasMore := len(s.files), s.token != ""
	s.mu.Unlock()

	s.eventBus.PublishSearchResults(drive, query, count, hasMore, nil)
	return nil
}

// SetDrive points the session at another drive and clears the results.
func (s *SearchSession) SetDrive(drive int) {
	s.mu.Lock()
	s.nextGenerationLocked()
	s.drive = drive
	s.query = ""
	s.resetLocked()
	s.mu.Unlock()
	s.debounced(func() {})
}

// Drive returns the drive searches run against.
func (s *SearchSession) Drive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drive
}

// Results returns a copy of the current search state.
func (s *SearchSession) Results() SearchSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := make([]models.DriveFile, len(s.files))
	copy(files, s.files)
	return SearchSnapshot{
		Query:         s.query,
		Files:         files,
		NextPageToken: s.token,
		PageIndex:     s.pageIndex,
		Loading:       s.loading,
		Err:           s.lastError,
	}
}

// Close drops any pending search and cancels the one in flight.
func (s *SearchSession) Close() {
	s.debounced(func() {})
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
	s.stop()
}

// nextGenerationLocked invalidates the pending and in-flight searches. Must
// hold lock.
func (s *SearchSession) nextGenerationLocked() uint64 {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	return s.generation
}

// resetLocked clears results. Must hold lock.
func (s *SearchSession) resetLocked() {
	s.files = make([]models.DriveFile, 0)
	s.token = ""
	s.pageIndex = 0
	s.loading = false
	s.lastError = nil
}
