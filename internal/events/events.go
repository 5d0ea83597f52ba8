// Package events provides the typed event bus that decouples the upload
// pipeline and the content caches from whatever renders them.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tgdrive/tgdrive/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	// Upload task lifecycle (published by the coordinator)
	EventUploadQueued    EventType = "upload_queued"    // Task appended to the queue
	EventUploadStarted   EventType = "upload_started"   // Task took the upload slot
	EventUploadCompleted EventType = "upload_completed" // Transport confirmed success
	EventUploadFailed    EventType = "upload_failed"    // Network/HTTP/parse failure
	EventUploadCancelled EventType = "upload_cancelled" // Cancelled by user

	// Derived, throttled progress stream (published by the progress tracker)
	EventUploadProgress EventType = "upload_progress"

	// Upload surface visibility
	EventUploadSurfaceShown     EventType = "upload_surface_shown"
	EventUploadSurfaceDismissed EventType = "upload_surface_dismissed"

	// Content caches (published by the application state)
	EventStorageChanged EventType = "storage_changed"
	EventListingChanged EventType = "listing_changed"
	EventListingLoading EventType = "listing_loading"

	// User-facing notifications (errors, partial bulk results, ...)
	EventNotification EventType = "notification"
)

// Level defines notification severity
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
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

// NewBase is a shorthand for a BaseEvent stamped with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// UploadEvent reports an upload task lifecycle transition.
type UploadEvent struct {
	BaseEvent
	TaskID   string
	Name     string
	Size     int64
	FolderID int64
	State    string
	Error    error
}

// UploadProgressEvent is one element of the tracker's derived progress stream.
type UploadProgressEvent struct {
	BaseEvent
	TaskID        string
	Phase         string // "starting", "uploading", "completed", "failed", "cancelled"
	BytesLoaded   int64
	BytesTotal    int64
	Percent       float64 // 0..100, capped at 99 until completion
	InstantSpeed  float64 // bytes/sec
	SmoothedSpeed float64 // bytes/sec, mean of the last N samples
	ETA           time.Duration
	ETAKnown      bool // false when the ETA must not be displayed
	Error         error
}

// UploadSurfaceEvent tells the renderer to show or dismiss the upload surface.
type UploadSurfaceEvent struct {
	BaseEvent
	Background bool
	Completed  int
	Failed     int
	Cancelled  int
}

// StorageChangedEvent carries a new StorageSummary snapshot.
type StorageChangedEvent struct {
	BaseEvent
	TotalBytes int64
	FileCount  int
	Source     string
}

// ListingChangedEvent is published after the folder listing was replaced.
type ListingChangedEvent struct {
	BaseEvent
	FolderID    int64
	FileCount   int
	FolderCount int
}

// ListingLoadingEvent marks the start and end of a listing reload.
type ListingLoadingEvent struct {
	BaseEvent
	FolderID int64
	Loading  bool
}

// NotificationEvent is a dismissible user-facing message.
type NotificationEvent struct {
	BaseEvent
	Level   Level
	Message string
	Detail  string // raw server-provided detail, if any
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

// Publish sends an event to all subscribers without blocking. Events that do
// not fit a subscriber's buffer are dropped and counted.
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

// Notify is a convenience method for publishing a user-facing notification
func (eb *EventBus) Notify(level Level, message, detail string) {
	eb.Publish(&NotificationEvent{
		BaseEvent: NewBase(EventNotification),
		Level:     level,
		Message:   message,
		Detail:    detail,
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
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}

// ResetDroppedEventCount resets the dropped event counter to zero
func (eb *EventBus) ResetDroppedEventCount() int64 {
	return eb.droppedEvents.Swap(0)
}
