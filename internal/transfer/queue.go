package transfer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/driveindex/drive-index/internal/events"
)

// Queue errors
var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskNotActive = errors.New("task is not queued or active")
)

// QueueStats holds counts per state.
type QueueStats struct {
	Queued    int
	Active    int
	Completed int
	Failed    int
	Cancelled int
}

// Total returns the number of tracked tasks.
func (s QueueStats) Total() int {
	return s.Queued + s.Active + s.Completed + s.Failed + s.Cancelled
}

// Queue is a passive download tracker. It records state and publishes
// transfer events; the Manager does the actual work. Terminal tasks never
// change state again.
type Queue struct {
	tasks       []*Task
	tasksByID   map[string]*Task
	cancelFuncs map[string]context.CancelFunc
	eventBus    *events.EventBus
	mu          sync.RWMutex
}

// NewQueue creates a queue publishing to eventBus, which may be nil.
func NewQueue(eventBus *events.EventBus) *Queue {
	return &Queue{
		tasks:       make([]*Task, 0),
		tasksByID:   make(map[string]*Task),
		cancelFuncs: make(map[string]context.CancelFunc),
		eventBus:    eventBus,
	}
}

// Track registers req in the queued state and returns its snapshot.
func (q *Queue) Track(req Request) Task {
	task := &Task{
		ID:        generateTaskID(),
		Request:   req,
		State:     TaskQueued,
		CreatedAt: time.Now(),
	}

	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.tasksByID[task.ID] = task
	snap := *task
	q.mu.Unlock()

	q.publish(events.EventTransferQueued, snap)
	return snap
}

// Activate moves a queued task to active and stores its cancel function.
// It reports false when the task was cancelled while waiting.
func (q *Queue) Activate(taskID string, cancel context.CancelFunc) bool {
	q.mu.Lock()
	task, ok := q.tasksByID[taskID]
	if !ok || task.State != TaskQueued {
		q.mu.Unlock()
		return false
	}
	task.State = TaskActive
	task.StartedAt = time.Now()
	if cancel != nil {
		q.cancelFuncs[taskID] = cancel
	}
	snap := *task
	q.mu.Unlock()

	q.publish(events.EventTransferStarted, snap)
	return true
}

// UpdateProgress records the bytes written so far.
func (q *Queue) UpdateProgress(taskID string, written int64) {
	q.mu.Lock()
	task, ok := q.tasksByID[taskID]
	if !ok || task.State != TaskActive {
		q.mu.Unlock()
		return
	}
	task.Written = written
	snap := *task
	q.mu.Unlock()

	q.publish(events.EventTransferProgress, snap)
}

// Complete marks a task as written.
func (q *Queue) Complete(taskID string, written int64) {
	q.settle(taskID, TaskCompleted, written, nil, events.EventTransferCompleted)
}

// Fail marks a task as failed with err.
func (q *Queue) Fail(taskID string, written int64, err error) {
	q.settle(taskID, TaskFailed, written, err, events.EventTransferFailed)
}

func (q *Queue) settle(taskID string, state TaskState, written int64, err error, eventType events.EventType) {
	q.mu.Lock()
	task, ok := q.tasksByID[taskID]
	if !ok || task.IsTerminal() {
		q.mu.Unlock()
		return
	}
	task.State = state
	task.Written = written
	task.Error = err
	task.CompletedAt = time.Now()
	delete(q.cancelFuncs, taskID)
	snap := *task
	q.mu.Unlock()

	q.publish(eventType, snap)
}

// Cancel stops a queued or active task.
func (q *Queue) Cancel(taskID string) error {
	q.mu.Lock()
	task, ok := q.tasksByID[taskID]
	if !ok {
		q.mu.Unlock()
		return ErrTaskNotFound
	}
	if task.IsTerminal() {
		q.mu.Unlock()
		return ErrTaskNotActive
	}
	cancel := q.cancelFuncs[taskID]
	delete(q.cancelFuncs, taskID)
	task.State = TaskCancelled
	task.CompletedAt = time.Now()
	snap := *task
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.publish(events.EventTransferCancelled, snap)
	return nil
}

// CancelAll cancels every task that has not settled.
func (q *Queue) CancelAll() {
	q.mu.RLock()
	ids := make([]string, 0)
	for _, task := range q.tasks {
		if !task.IsTerminal() {
			ids = append(ids, task.ID)
		}
	}
	q.mu.RUnlock()

	for _, id := range ids {
		_ = q.Cancel(id)
	}
}

// ClearCompleted drops settled tasks.
func (q *Queue) ClearCompleted() {
	q.mu.Lock()
	defer q.mu.Unlock()

	filtered := make([]*Task, 0, len(q.tasks))
	for _, task := range q.tasks {
		if task.IsTerminal() {
			delete(q.tasksByID, task.ID)
			continue
		}
		filtered = append(filtered, task)
	}
	q.tasks = filtered
}

// Stats returns counts per state.
func (q *Queue) Stats() QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var stats QueueStats
	for _, task := range q.tasks {
		switch task.State {
		case TaskQueued:
			stats.Queued++
		case TaskActive:
			stats.Active++
		case TaskCompleted:
			stats.Completed++
		case TaskFailed:
			stats.Failed++
		case TaskCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// Tasks returns snapshots of every task in creation order.
func (q *Queue) Tasks() []Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Task, len(q.tasks))
	for i, task := range q.tasks {
		out[i] = *task
	}
	return out
}

// Task returns the snapshot of one task.
func (q *Queue) Task(taskID string) (Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	task, ok := q.tasksByID[taskID]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

func (q *Queue) publish(eventType events.EventType, task Task) {
	q.eventBus.PublishTransfer(eventType, task.ID, task.Name, task.Target, task.Size, task.Written, task.Error)
}
