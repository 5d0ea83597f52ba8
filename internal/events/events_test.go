package events

import (
	"errors"
	"testing"
	"time"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventUploadProgress)

	bus.Publish(&UploadProgressEvent{
		BaseEvent:   NewBase(EventUploadProgress),
		TaskID:      "upload_1",
		Phase:       "uploading",
		BytesLoaded: 512,
		BytesTotal:  1024,
		Percent:     50,
	})

	select {
	case received := <-ch:
		progress, ok := received.(*UploadProgressEvent)
		if !ok {
			t.Fatal("Expected UploadProgressEvent")
		}
		if progress.TaskID != "upload_1" {
			t.Errorf("Expected task 'upload_1', got '%s'", progress.TaskID)
		}
		if progress.Percent != 50 {
			t.Errorf("Expected percent 50, got %f", progress.Percent)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch1 := bus.Subscribe(EventNotification)
	ch2 := bus.Subscribe(EventNotification)

	bus.Notify(ErrorLevel, "Upload failed", "disk full")

	received1 := false
	received2 := false

	select {
	case <-ch1:
		received1 = true
	case <-time.After(100 * time.Millisecond):
	}

	select {
	case <-ch2:
		received2 = true
	case <-time.After(100 * time.Millisecond):
	}

	if !received1 || !received2 {
		t.Error("Not all subscribers received the event")
	}
}

func TestEventBus_DifferentEventTypes(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	storageCh := bus.Subscribe(EventStorageChanged)
	listingCh := bus.Subscribe(EventListingChanged)

	bus.Publish(&StorageChangedEvent{
		BaseEvent:  NewBase(EventStorageChanged),
		TotalBytes: 42,
		FileCount:  1,
	})

	select {
	case <-storageCh:
	case <-time.After(100 * time.Millisecond):
		t.Error("Storage subscriber didn't receive event")
	}

	select {
	case <-listingCh:
		t.Error("Listing subscriber received wrong event type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	allCh := bus.SubscribeAll()

	bus.Publish(&UploadEvent{BaseEvent: NewBase(EventUploadQueued), TaskID: "a"})
	bus.Publish(&UploadSurfaceEvent{BaseEvent: NewBase(EventUploadSurfaceShown)})

	count := 0
	for i := 0; i < 2; i++ {
		select {
		case <-allCh:
			count++
		case <-time.After(100 * time.Millisecond):
		}
	}

	if count != 2 {
		t.Errorf("Expected to receive 2 events, got %d", count)
	}
}

func TestEventBus_NonBlocking(t *testing.T) {
	bus := NewEventBus(2)
	defer bus.Close()

	ch := bus.Subscribe(EventUploadProgress)

	for i := 0; i < 10; i++ {
		bus.Publish(&UploadProgressEvent{BaseEvent: NewBase(EventUploadProgress), TaskID: "t"})
	}

	if dropped := bus.GetDroppedEventCount(); dropped != 8 {
		t.Errorf("Expected 8 dropped events, got %d", dropped)
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		case <-time.After(10 * time.Millisecond):
			goto done
		}
	}
done:

	if count != 2 {
		t.Errorf("Expected 2 buffered events, got %d", count)
	}
	if reset := bus.ResetDroppedEventCount(); reset != 8 {
		t.Errorf("Expected reset to return 8, got %d", reset)
	}
}

func TestEventBus_Close(t *testing.T) {
	bus := NewEventBus(10)

	ch := bus.Subscribe(EventUploadCompleted)

	bus.Close()

	_, ok := <-ch
	if ok {
		t.Error("Channel should be closed after bus.Close()")
	}

	// Publishing after close should not panic
	bus.Publish(&UploadEvent{BaseEvent: NewBase(EventUploadCompleted)})

	// Subscribing after close yields a closed channel
	late := bus.Subscribe(EventUploadCompleted)
	if _, ok := <-late; ok {
		t.Error("Subscription after Close should be closed")
	}
}

func TestEventBus_NilPublish(t *testing.T) {
	var bus *EventBus
	bus.Publish(&UploadEvent{BaseEvent: NewBase(EventUploadFailed), Error: errors.New("boom")})
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventUploadFailed)
	bus.Unsubscribe(EventUploadFailed, ch)

	bus.Publish(&UploadEvent{BaseEvent: NewBase(EventUploadFailed)})

	select {
	case <-ch:
		t.Error("Unsubscribed channel should not receive events")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{Level(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level %d: expected %s, got %s", tt.level, tt.expected, got)
		}
	}
}

func TestNotify(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventNotification)
	bus.Notify(WarnLevel, "2 of 3 files deleted", "file 12: not found")

	select {
	case event := <-ch:
		n, ok := event.(*NotificationEvent)
		if !ok {
			t.Fatal("Expected NotificationEvent")
		}
		if n.Level != WarnLevel || n.Detail != "file 12: not found" {
			t.Errorf("Unexpected notification: %+v", n)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timeout waiting for notification")
	}
}
