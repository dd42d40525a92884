package transfer

import (
	"context"
	"errors"
	"sync"

	"github.com/taxdesk/taxdesk/internal/events"
)

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskNotActive = errors.New("task is not uploading")
	ErrCannotRetry   = errors.New("task cannot be retried")
)

// QueueStats holds statistics about the upload queue.
type QueueStats struct {
	Pending   int
	Uploading int
	Succeeded int
	Failed    int
	Cancelled int
}

// Total returns total number of tasks in queue.
func (s QueueStats) Total() int {
	return s.Pending + s.Uploading + s.Succeeded + s.Failed + s.Cancelled
}

// Queue is a passive upload tracker that publishes events for UI updates.
// It does NOT execute uploads; the upload session does that and reports
// back through Start, UpdateProgress, Complete and Fail.
type Queue struct {
	tasks     []*Task          // All tasks in creation order
	tasksByID map[string]*Task // Index by ID for quick lookup
	mu        sync.RWMutex

	// Cancel functions for uploads in flight
	cancelFuncs map[string]context.CancelFunc

	eventBus *events.EventBus
}

// NewQueue creates a new upload queue with the specified event bus (may be nil).
func NewQueue(eventBus *events.EventBus) *Queue {
	return &Queue{
		tasks:       make([]*Task, 0),
		tasksByID:   make(map[string]*Task),
		cancelFuncs: make(map[string]context.CancelFunc),
		eventBus:    eventBus,
	}
}

// Track registers a new pending upload and returns its task.
func (q *Queue) Track(name string, size int64, source, dest string) *Task {
	task := NewTask(name, source, dest, size)

	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.tasksByID[task.ID] = task
	q.mu.Unlock()

	q.publishTransferEvent(events.EventTransferQueued, task)
	return task
}

// SetDest changes the destination folder of a task that has not finished.
func (q *Queue) SetDest(taskID, dest string) error {
	task := q.lookup(taskID)
	if task == nil {
		return ErrTaskNotFound
	}
	task.mu.Lock()
	task.Dest = dest
	task.mu.Unlock()
	return nil
}

// Start marks a pending task as uploading and counts the attempt.
func (q *Queue) Start(taskID string) {
	task := q.lookup(taskID)
	if task == nil {
		return
	}

	task.mu.Lock()
	task.Attempts++
	task.Sent = 0
	task.Progress = 0
	task.lastBytes = 0
	task.setStateLocked(TaskUploading)
	task.mu.Unlock()

	q.publishTransferEvent(events.EventTransferStarted, task)
}

// SetCancel stores the cancel function for an upload in flight.
func (q *Queue) SetCancel(taskID string, cancelFn context.CancelFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelFuncs[taskID] = cancelFn
}

// UpdateProgress records bytes sent for a task.
func (q *Queue) UpdateProgress(taskID string, sent int64) {
	task := q.lookup(taskID)
	if task == nil {
		return
	}
	task.UpdateProgressWithBytes(sent)
	q.publishTransferEvent(events.EventTransferProgress, task)
}

// Complete marks a task as successfully uploaded.
func (q *Queue) Complete(taskID string) {
	q.mu.Lock()
	task := q.tasksByID[taskID]
	delete(q.cancelFuncs, taskID)
	q.mu.Unlock()

	if task == nil {
		return
	}
	task.mu.Lock()
	task.Progress = 1.0
	task.Error = nil
	task.setStateLocked(TaskSucceeded)
	task.mu.Unlock()

	q.publishTransferEvent(events.EventTransferCompleted, task)
}

// Fail marks a task as failed with an error.
func (q *Queue) Fail(taskID string, err error) {
	q.mu.Lock()
	task := q.tasksByID[taskID]
	delete(q.cancelFuncs, taskID)
	q.mu.Unlock()

	if task == nil {
		return
	}
	task.SetError(err)
	q.publishTransferEvent(events.EventTransferFailed, task)
}

// Cancel cancels an uploading task by calling its stored cancel function.
func (q *Queue) Cancel(taskID string) error {
	q.mu.Lock()
	task := q.tasksByID[taskID]
	cancelFn := q.cancelFuncs[taskID]
	delete(q.cancelFuncs, taskID)
	q.mu.Unlock()

	if task == nil {
		return ErrTaskNotFound
	}
	if task.GetState() != TaskUploading {
		return ErrTaskNotActive
	}

	if cancelFn != nil {
		cancelFn()
	}
	task.Cancel()

	q.publishTransferEvent(events.EventTransferCancelled, task)
	return nil
}

// CancelAll cancels every pending or uploading task.
func (q *Queue) CancelAll() {
	q.mu.Lock()
	var toCancel []*Task
	var cancelFns []context.CancelFunc
	for _, task := range q.tasks {
		if !task.IsTerminal() {
			toCancel = append(toCancel, task)
			if fn := q.cancelFuncs[task.ID]; fn != nil {
				cancelFns = append(cancelFns, fn)
			}
			delete(q.cancelFuncs, task.ID)
		}
	}
	q.mu.Unlock()

	for _, fn := range cancelFns {
		fn()
	}
	for _, task := range toCancel {
		task.Cancel()
		q.publishTransferEvent(events.EventTransferCancelled, task)
	}
}

// Requeue resets a failed or cancelled task to pending, keeping its ID.
func (q *Queue) Requeue(taskID string) error {
	task := q.lookup(taskID)
	if task == nil {
		return ErrTaskNotFound
	}
	if !task.CanRetry() {
		return ErrCannotRetry
	}

	task.reset()
	q.publishTransferEvent(events.EventTransferQueued, task)
	return nil
}

// Remove drops a task, cancelling it first if it has not finished.
func (q *Queue) Remove(taskID string) error {
	q.mu.Lock()
	task := q.tasksByID[taskID]
	if task == nil {
		q.mu.Unlock()
		return ErrTaskNotFound
	}
	cancelFn := q.cancelFuncs[taskID]
	delete(q.cancelFuncs, taskID)
	delete(q.tasksByID, taskID)
	for i, t := range q.tasks {
		if t == task {
			q.tasks = append(q.tasks[:i:i], q.tasks[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
	}
	if !task.IsTerminal() {
		task.Cancel()
		q.publishTransferEvent(events.EventTransferCancelled, task)
	}
	return nil
}

// ClearCompleted removes all succeeded/failed/cancelled tasks from the queue.
func (q *Queue) ClearCompleted() {
	q.mu.Lock()
	defer q.mu.Unlock()

	filtered := make([]*Task, 0, len(q.tasks))
	for _, task := range q.tasks {
		if !task.IsTerminal() {
			filtered = append(filtered, task)
		} else {
			delete(q.tasksByID, task.ID)
		}
	}
	q.tasks = filtered
}

// Reset cancels everything and empties the queue.
func (q *Queue) Reset() {
	q.CancelAll()

	q.mu.Lock()
	q.tasks = make([]*Task, 0)
	q.tasksByID = make(map[string]*Task)
	q.cancelFuncs = make(map[string]context.CancelFunc)
	q.mu.Unlock()
}

// GetStats returns current queue statistics.
func (q *Queue) GetStats() QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := QueueStats{}
	for _, task := range q.tasks {
		switch task.GetState() {
		case TaskPending:
			stats.Pending++
		case TaskUploading:
			stats.Uploading++
		case TaskSucceeded:
			stats.Succeeded++
		case TaskFailed:
			stats.Failed++
		case TaskCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// GetTasks returns a copy of all tasks for display.
func (q *Queue) GetTasks() []Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]Task, len(q.tasks))
	for i, task := range q.tasks {
		result[i] = task.Clone()
	}
	return result
}

// GetTask returns a copy of a specific task by ID.
func (q *Queue) GetTask(taskID string) (Task, bool) {
	task := q.lookup(taskID)
	if task == nil {
		return Task{}, false
	}
	return task.Clone(), true
}

func (q *Queue) lookup(taskID string) *Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.tasksByID[taskID]
}

// publishTransferEvent publishes a transfer event to the event bus.
func (q *Queue) publishTransferEvent(eventType events.EventType, task *Task) {
	if q.eventBus == nil {
		return
	}

	snap := task.Clone()
	q.eventBus.Publish(&events.TransferEvent{
		BaseEvent: events.NewBase(eventType),
		TaskID:    snap.ID,
		Name:      snap.Name,
		FolderID:  snap.Dest,
		Size:      snap.Size,
		Progress:  snap.Progress,
		Error:     snap.Error,
	})
}
