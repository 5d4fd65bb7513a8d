// Package state provides observable state containers for drive-index.
// These containers emit events when state changes, allowing any frontend
// to subscribe and update its view accordingly.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/driveindex/drive-index/internal/api"
	"github.com/driveindex/drive-index/internal/config"
	"github.com/driveindex/drive-index/internal/logging"
	"github.com/driveindex/drive-index/internal/models"
	"github.com/driveindex/drive-index/internal/pathcodec"
)

// Status is the phase of a listing.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusLoadingMore
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusLoadingMore:
		return "loading_more"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Controller errors
var (
	// ErrNoMorePages is returned by LoadMore when the listing is complete.
	ErrNoMorePages = errors.New("no more pages")
	// ErrInvalidTransition is returned when an action is not allowed in the
	// current status, such as LoadMore while a fetch is running.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrSuperseded is returned when a fetch finished after a newer
	// navigation; its result was discarded.
	ErrSuperseded = errors.New("superseded by a newer request")
	// ErrEmptyName is returned when a rename target is blank.
	ErrEmptyName = errors.New("name must not be empty")
)

// Lister fetches folder pages. *api.Client implements it.
type Lister interface {
	ListFolder(ctx context.Context, drive int, path string, opts api.ListOptions) (*models.ListingPage, error)
}

// Searcher fetches search pages. *api.Client implements it.
type Searcher interface {
	SearchFiles(ctx context.Context, drive int, query string, opts api.SearchOptions) (*models.ListingPage, error)
}

// Mutator renames and deletes files. *api.Client implements it.
type Mutator interface {
	RenameFile(ctx context.Context, drive int, fileID, newName string) (*api.RenameResult, error)
	DeleteFile(ctx context.Context, drive int, fileID string) error
}

// ListingOptions tunes mutation handling.
type ListingOptions struct {
	// OptimisticUpdates applies renames and deletes to the listing before the
	// worker confirms them. When false the controller reloads the folder
	// ReloadDelay after a successful mutation instead.
	OptimisticUpdates bool
	ReloadDelay       time.Duration
	// RollbackOnFailure restores the pre-mutation listing when an optimistic
	// rename or delete fails. Off by default: the listing keeps the
	// optimistic change and the failure is only reported.
	RollbackOnFailure bool
	Logger            *logging.Logger
}

// OptionsFromConfig builds ListingOptions from the client configuration.
func OptionsFromConfig(cfg *config.Config, logger *logging.Logger) ListingOptions {
	return ListingOptions{
		OptimisticUpdates: cfg.OptimisticUpdates,
		ReloadDelay:       cfg.ReloadDelay,
		RollbackOnFailure: cfg.RollbackOnFailure,
		Logger:            logger,
	}
}

// ListingSnapshot is a consistent copy of the controller state.
type ListingSnapshot struct {
	Location      pathcodec.Location
	Status        Status
	Files         []models.DriveFile
	NextPageToken string
	PageIndex     int
	Err           error
	Generation    uint64
}

// HasMore reports whether LoadMore can fetch another page.
func (s ListingSnapshot) HasMore() bool {
	return s.NextPageToken != ""
}
