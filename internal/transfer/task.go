// Package transfer tracks and runs batches of file downloads.
package transfer

import (
	"fmt"
	"sync/atomic"
	"time"
)

// TaskState represents the current state of a download task.
type TaskState string

const (
	TaskQueued    TaskState = "queued"    // Waiting for a free slot
	TaskActive    TaskState = "active"    // Bytes are moving
	TaskCompleted TaskState = "completed" // Written to disk
	TaskFailed    TaskState = "failed"    // Failed with error
	TaskCancelled TaskState = "cancelled" // Cancelled by the user or the batch context
)

// Request describes one file to fetch from a drive.
type Request struct {
	FileID string
	Drive  int
	Folder string // folder path holding the file, e.g. "/docs/"
	Name   string
	Target string // local destination path
	Size   int64  // bytes from the listing; -1 when unknown
}

// Task is a snapshot of one tracked download.
type Task struct {
	ID string
	Request

	State       TaskState
	Written     int64
	Error       error
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// IsTerminal reports whether the task has settled.
func (t Task) IsTerminal() bool {
	switch t.State {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// Progress returns the completed fraction, or -1 when the size is unknown.
func (t Task) Progress() float64 {
	if t.State == TaskCompleted {
		return 1
	}
	if t.Size <= 0 {
		return -1
	}
	p := float64(t.Written) / float64(t.Size)
	if p > 1 {
		p = 1
	}
	return p
}

// Duration returns how long the task has been (or was) transferring.
func (t Task) Duration() time.Duration {
	if t.StartedAt.IsZero() {
		return 0
	}
	if t.CompletedAt.IsZero() {
		return time.Since(t.StartedAt)
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

var taskCounter atomic.Uint64

func generateTaskID() string {
	return fmt.Sprintf("dl-%d", taskCounter.Add(1))
}
