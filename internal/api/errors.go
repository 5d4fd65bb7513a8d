package api

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every typed error below unwraps to one of these so callers
// can branch with errors.Is.
var (
	ErrFetchFailed       = errors.New("fetch failed")
	ErrPasswordRequired  = errors.New("password required")
	ErrSearchFailed      = errors.New("search failed")
	ErrRenameFailed      = errors.New("rename failed")
	ErrDeleteFailed      = errors.New("delete failed")
	ErrMissingIdentifier = errors.New("file identifier is missing")
)

// FetchFailedError is returned when a folder listing or download answers with
// a non-2xx status.
type FetchFailedError struct {
	StatusCode int
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch failed: status %d", e.StatusCode)
}

func (e *FetchFailedError) Unwrap() error { return ErrFetchFailed }

// PasswordRequiredError reports a protected folder. The worker signals it with
// a 200 response carrying error.code 401.
type PasswordRequiredError struct {
	Drive int
	Path  string
}

func (e *PasswordRequiredError) Error() string {
	return fmt.Sprintf("password required for %d:%s", e.Drive, e.Path)
}

func (e *PasswordRequiredError) Unwrap() error { return ErrPasswordRequired }

// SearchFailedError is returned when a search answers with a non-2xx status.
type SearchFailedError struct {
	StatusCode int
}

func (e *SearchFailedError) Error() string {
	return fmt.Sprintf("search failed: status %d", e.StatusCode)
}

func (e *SearchFailedError) Unwrap() error { return ErrSearchFailed }

// RenameFailedError carries the worker's message, or "Rename failed: <status>".
type RenameFailedError struct {
	StatusCode int
	Message    string
}

func (e *RenameFailedError) Error() string { return e.Message }

func (e *RenameFailedError) Unwrap() error { return ErrRenameFailed }

// DeleteFailedError carries the worker's message, or "Delete failed: <status>".
type DeleteFailedError struct {
	StatusCode int
	Message    string
}

func (e *DeleteFailedError) Error() string { return e.Message }

func (e *DeleteFailedError) Unwrap() error { return ErrDeleteFailed }

// IsPasswordRequired reports whether err means the folder needs a password.
func IsPasswordRequired(err error) bool {
	return errors.Is(err, ErrPasswordRequired)
}

// IsMissingIdentifier reports whether err came from the identifier guard on
// rename or delete.
func IsMissingIdentifier(err error) bool {
	return errors.Is(err, ErrMissingIdentifier)
}

// StatusCode extracts the HTTP status carried by a typed error, or 0.
func StatusCode(err error) int {
	var fetchErr *FetchFailedError
	if errors.As(err, &fetchErr) {
		return fetchErr.StatusCode
	}
	var searchErr *SearchFailedError
	if errors.As(err, &searchErr) {
		return searchErr.StatusCode
	}
	var renameErr *RenameFailedError
	if errors.As(err, &renameErr) {
		return renameErr.StatusCode
	}
	var deleteErr *DeleteFailedError
	if errors.As(err, &deleteErr) {
		return deleteErr.StatusCode
	}
	return 0
}
