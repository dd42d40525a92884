// Package transfer tracks document uploads: one Task per staged file, moved
// through pending → uploading → success | error by whoever runs the upload.
package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskState represents the current state of an upload task.
// The string values are what the CLI and exports show.
type TaskState string

const (
	TaskPending   TaskState = "pending"   // Staged, not sent yet
	TaskUploading TaskState = "uploading" // Request in flight
	TaskSucceeded TaskState = "success"   // Portal accepted the document
	TaskFailed    TaskState = "error"     // Failed with error
	TaskCancelled TaskState = "cancelled" // Removed or cancelled by user
)

// Task represents a single file upload.
// Thread-safe: Use the provided methods to update state.
type Task struct {
	ID string // uuid

	Name   string // Display name (filename)
	Source string // Local path, or a label for in-memory payloads
	Dest   string // Destination folder ID
	Size   int64  // File size in bytes

	// State tracking
	State    TaskState
	Progress float64 // 0.0 to 1.0
	Speed    float64 // bytes/sec (smoothed with EMA)
	Sent     int64   // bytes sent in the current attempt
	Attempts int     // requests made, including retries
	Error    error   // Error if failed

	lastBytes      int64
	lastUpdateTime time.Time

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTask creates a task in TaskPending state.
func NewTask(name, source, dest string, size int64) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{
		ID:        uuid.NewString(),
		Name:      name,
		Source:    source,
		Dest:      dest,
		Size:      size,
		State:     TaskPending,
		CreatedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// GetState returns the current state (thread-safe).
func (t *Task) GetState() TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.State
}

// SetState updates the task state (thread-safe).
func (t *Task) SetState(state TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setStateLocked(state)
}

func (t *Task) setStateLocked(state TaskState) {
	t.State = state
	if state == TaskUploading && t.StartedAt.IsZero() {
		t.StartedAt = time.Now()
	}
	if state == TaskSucceeded || state == TaskFailed || state == TaskCancelled {
		t.CompletedAt = time.Now()
	}
}

// GetProgress returns current progress (thread-safe).
func (t *Task) GetProgress() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Progress
}

// UpdateProgressWithBytes updates progress and calculates speed using EMA.
func (t *Task) UpdateProgressWithBytes(sent int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.Sent = sent
	if t.Size > 0 {
		t.Progress = float64(sent) / float64(t.Size)
		if t.Progress > 1 {
			t.Progress = 1
		}
	}

	if t.lastBytes == 0 && sent > 0 {
		t.lastUpdateTime = now
		t.lastBytes = sent
		t.Speed = 0
		return
	}

	if t.lastBytes > 0 && sent > t.lastBytes {
		elapsed := now.Sub(t.lastUpdateTime).Seconds()
		if elapsed > 0.1 { // Need at least 100ms between updates for meaningful rate
			instantRate := float64(sent-t.lastBytes) / elapsed

			// EMA smoothing (alpha=0.25): 25% weight to new value, 75% to previous
			const speedSmoothingAlpha = 0.25
			if t.Speed > 0 {
				t.Speed = speedSmoothingAlpha*instantRate + (1-speedSmoothingAlpha)*t.Speed
			} else {
				t.Speed = instantRate
			}

			t.lastBytes = sent
			t.lastUpdateTime = now
		}
	}
}

// GetSpeed returns current transfer speed in bytes/sec (thread-safe).
func (t *Task) GetSpeed() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Speed
}

// SetError sets the error and changes state to TaskFailed (thread-safe).
func (t *Task) SetError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Error = err
	t.setStateLocked(TaskFailed)
}

// GetError returns the error if any (thread-safe).
func (t *Task) GetError() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Error
}

// Cancel cancels this task's context.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	if t.State == TaskPending || t.State == TaskUploading {
		t.setStateLocked(TaskCancelled)
	}
}

// Context returns the task's context for cancellation checking.
func (t *Task) Context() context.Context {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ctx
}

// reset puts a finished task back to pending with a fresh context.
func (t *Task) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.State = TaskPending
	t.Progress = 0
	t.Speed = 0
	t.Sent = 0
	t.Error = nil
	t.StartedAt = time.Time{}
	t.CompletedAt = time.Time{}
	t.lastBytes = 0
	t.lastUpdateTime = time.Time{}
}

// Clone returns a copy of the task's exported fields (for safe external use).
func (t *Task) Clone() Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Task{
		ID:          t.ID,
		Name:        t.Name,
		Source:      t.Source,
		Dest:        t.Dest,
		Size:        t.Size,
		State:       t.State,
		Progress:    t.Progress,
		Speed:       t.Speed,
		Sent:        t.Sent,
		Attempts:    t.Attempts,
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

// IsTerminal returns true if the task is in a terminal state
// (success, error, or cancelled).
func (t *Task) IsTerminal() bool {
	state := t.GetState()
	return state == TaskSucceeded || state == TaskFailed || state == TaskCancelled
}

// CanRetry returns true if the task can be retried (failed or cancelled).
func (t *Task) CanRetry() bool {
	state := t.GetState()
	return state == TaskFailed || state == TaskCancelled
}
