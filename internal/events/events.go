package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/driveindex/drive-index/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventListingLoading   EventType = "listing_loading"   // Navigate, LoadMore or Retry started a fetch
	EventListingChanged   EventType = "listing_changed"   // Accumulated files changed
	EventListingError     EventType = "listing_error"     // A fetch failed
	EventSelectionChanged EventType = "selection_changed" // Selected ids changed
	EventSearchResults    EventType = "search_results"    // A search settled (results or failure)
	EventMutationFailed   EventType = "mutation_failed"   // Rename or delete rejected by the worker

	// Download queue events
	EventTransferQueued    EventType = "transfer_queued"
	EventTransferStarted   EventType = "transfer_started"
	EventTransferProgress  EventType = "transfer_progress"
	EventTransferCompleted EventType = "transfer_completed"
	EventTransferFailed    EventType = "transfer_failed"
	EventTransferCancelled EventType = "transfer_cancelled"
)

// ChangeReason says why a listing changed.
type ChangeReason string

const (
	ReasonLoaded   ChangeReason = "loaded"
	ReasonAppended ChangeReason = "appended"
	ReasonRenamed  ChangeReason = "renamed"
	ReasonDeleted  ChangeReason = "deleted"
	ReasonRestored ChangeReason = "restored"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

func newBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// ListingLoadingEvent is published when a fetch begins.
type ListingLoadingEvent struct {
	BaseEvent
	Drive      int
	Path       string
	PageIndex  int
	Append     bool // LoadMore rather than a fresh page 0
	Generation uint64
}

// ListingChangedEvent is published after the accumulated files change.
type ListingChangedEvent struct {
	BaseEvent
	Drive     int
	Path      string
	Reason    ChangeReason
	Count     int
	PageIndex int
	HasMore   bool
	FileID    string // set for renamed and deleted
}

// ListingErrorEvent is published when a fetch fails. PasswordRequired lets
// front-ends prompt without inspecting the error chain.
type ListingErrorEvent struct {
	BaseEvent
	Drive            int
	Path             string
	Error            error
	PasswordRequired bool
}

// SelectionChangedEvent carries the selected ids after a change.
type SelectionChangedEvent struct {
	BaseEvent
	Selected []string
}

// SearchResultsEvent is published when the latest search settles.
type SearchResultsEvent struct {
	BaseEvent
	Drive   int
	Query   string
	Count   int
	HasMore bool
	Error   error
}

// MutationFailedEvent is published when a rename or delete fails.
type MutationFailedEvent struct {
	BaseEvent
	Operation  string // "rename" or "delete"
	FileID     string
	Error      error
	RolledBack bool
}

// TransferEvent is published as a queued download changes state.
type TransferEvent struct {
	BaseEvent
	TaskID  string
	Name    string
	Target  string
	Size    int64 // -1 when unknown
	Written int64
	Error   error
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}

	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking. Events for a
// full subscriber are dropped and counted. A nil bus is a no-op.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishLoading is a convenience method for publishing fetch starts.
func (eb *EventBus) PublishLoading(drive int, path string, pageIndex int, appendPage bool, generation uint64) {
	eb.Publish(&ListingLoadingEvent{
		BaseEvent:  newBase(EventListingLoading),
		Drive:      drive,
		Path:       path,
		PageIndex:  pageIndex,
		Append:     appendPage,
		Generation: generation,
	})
}

// PublishChanged is a convenience method for publishing listing changes.
func (eb *EventBus) PublishChanged(drive int, path string, reason ChangeReason, count, pageIndex int, hasMore bool, fileID string) {
	eb.Publish(&ListingChangedEvent{
		BaseEvent: newBase(EventListingChanged),
		Drive:     drive,
		Path:      path,
		Reason:    reason,
		Count:     count,
		PageIndex: pageIndex,
		HasMore:   hasMore,
		FileID:    fileID,
	})
}

// PublishListingError is a convenience method for publishing fetch failures.
func (eb *EventBus) PublishListingError(drive int, path string, err error, passwordRequired bool) {
	eb.Publish(&ListingErrorEvent{
		BaseEvent:        newBase(EventListingError),
		Drive:            drive,
		Path:             path,
		Error:            err,
		PasswordRequired: passwordRequired,
	})
}

// PublishSelection is a convenience method for publishing selection changes.
func (eb *EventBus) PublishSelection(selected []string) {
	eb.Publish(&SelectionChangedEvent{
		BaseEvent: newBase(EventSelectionChanged),
		Selected:  selected,
	})
}

// PublishSearchResults is a convenience method for publishing settled searches.
func (eb *EventBus) PublishSearchResults(drive int, query string, count int, hasMore bool, err error) {
	eb.Publish(&SearchResultsEvent{
		BaseEvent: newBase(EventSearchResults),
		Drive:     drive,
		Query:     query,
		Count:     count,
		HasMore:   hasMore,
		Error:     err,
	})
}

// PublishMutationFailed is a convenience method for publishing failed mutations.
func (eb *EventBus) PublishMutationFailed(operation, fileID string, err error, rolledBack bool) {
	eb.Publish(&MutationFailedEvent{
		BaseEvent:  newBase(EventMutationFailed),
		Operation:  operation,
		FileID:     fileID,
		Error:      err,
		RolledBack: rolledBack,
	})
}

// PublishTransfer is a convenience method for publishing download queue changes.
func (eb *EventBus) PublishTransfer(eventType EventType, taskID, name, target string, size, written int64, err error) {
	eb.Publish(&TransferEvent{
		BaseEvent: newBase(eventType),
		TaskID:    taskID,
		Name:      name,
		Target:    target,
		Size:      size,
		Written:   written,
		Error:     err,
	})
}

// Unsubscribe removes a subscription channel from a specific event type
// This prevents memory leaks from abandoned subscriptions
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// UnsubscribeAll removes a subscription channel from all event types
// Use this when cleaning up a subscriber that subscribed to multiple event types
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
// Useful for monitoring and detecting if buffer sizes need adjustment
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
