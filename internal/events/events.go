package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/taxdesk/taxdesk/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventLog EventType = "log"

	// Folder tree events
	EventTreeChanged        EventType = "tree_changed"         // Store mutated (roots set, children attached, node inserted)
	EventFolderLoaded       EventType = "folder_loaded"        // Children fetched and attached
	EventFolderLoadFailed   EventType = "folder_load_failed"   // Children fetch failed, node stays unloaded
	EventExpansionChanged   EventType = "expansion_changed"    // Node expanded or collapsed
	EventFolderSelected     EventType = "folder_selected"      // Current selection replaced
	EventFolderCreated      EventType = "folder_created"       // Server confirmed a new folder
	EventFolderCreateFailed EventType = "folder_create_failed" // Create rejected or failed

	// Transfer events
	EventTransferQueued    EventType = "transfer_queued"    // File staged for upload
	EventTransferStarted   EventType = "transfer_started"   // Request in flight
	EventTransferProgress  EventType = "transfer_progress"  // Bytes sent
	EventTransferCompleted EventType = "transfer_completed" // Portal accepted the document
	EventTransferFailed    EventType = "transfer_failed"    // Failed with error
	EventTransferCancelled EventType = "transfer_cancelled" // Removed or cancelled by user

	// EventDocumentsChanged replaces the portal's global "refresh documents" hook.
	// Published after a submission so document listings can reload.
	EventDocumentsChanged EventType = "documents_changed"
)

// LogLevel defines log severity levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

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

// NewBase stamps an event header with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// LogEvent represents log messages
type LogEvent struct {
	BaseEvent
	Level   LogLevel
	Message string
	Error   error
}

// TreeChangedEvent is published after every store mutation.
type TreeChangedEvent struct {
	BaseEvent
	Op       string // "set_roots", "attach", "insert", "reset"
	FolderID string // target of the mutation ("" for root)
}

// FolderEvent covers load, create and selection outcomes for one folder.
type FolderEvent struct {
	BaseEvent
	FolderID string
	ParentID string
	Name     string
	Path     string // display path for selections
	Children int    // attached children count after a load
	Error    error
}

// ExpansionEvent reports a node entering or leaving the expanded set.
type ExpansionEvent struct {
	BaseEvent
	FolderID string
	Expanded bool
}

// TransferEvent represents per-file upload events
type TransferEvent struct {
	BaseEvent
	TaskID   string  // Unique task ID
	Name     string  // Display name (filename)
	FolderID string  // Destination folder
	Size     int64   // File size in bytes
	Progress float64 // 0.0 to 1.0
	Error    error   // Error if failed
}

// DocumentsChangedEvent is published when a submission finished with at least one success.
type DocumentsChangedEvent struct {
	BaseEvent
	FolderIDs []string
	Succeeded int
	Failed    int
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

// Publish sends an event to all subscribers without blocking.
// A nil bus discards the event, so components can run without one.
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

// PublishLog is a convenience method for publishing log events
func (eb *EventBus) PublishLog(level LogLevel, message string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: NewBase(EventLog),
		Level:     level,
		Message:   message,
		Error:     err,
	})
}

// PublishTreeChanged is a convenience method for store mutations
func (eb *EventBus) PublishTreeChanged(op, folderID string) {
	eb.Publish(&TreeChangedEvent{
		BaseEvent: NewBase(EventTreeChanged),
		Op:        op,
		FolderID:  folderID,
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
			close(subCh)
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

	var found chan Event
	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				found = subCh
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			found = subCh
			break
		}
	}

	if found != nil {
		close(found)
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}

// ResetDroppedEventCount resets the dropped event counter to zero
// Useful for periodic monitoring windows
func (eb *EventBus) ResetDroppedEventCount() int64 {
	return eb.droppedEvents.Swap(0)
}
