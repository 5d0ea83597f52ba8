// Package state holds the application-wide caches: the storage summary and
// the listing of the current folder. Every change is published on the event
// bus so renderers never poll.
package state

import (
	"sync"
	"time"

	"github.com/tgdrive/tgdrive/internal/constants"
	"github.com/tgdrive/tgdrive/internal/events"
)

// AppState is the explicit application-state object. Thread-safe.
type AppState struct {
	eventBus *events.EventBus

	mu            sync.RWMutex
	storage       StorageSummary
	listing       FolderListing
	hasListing    bool
	currentFolder int64
	loading       bool
	lastError     error
}

// NewAppState creates an empty state rooted at the top-level folder.
func NewAppState(eventBus *events.EventBus) *AppState {
	return &AppState{
		eventBus:      eventBus,
		storage:       StorageSummary{Source: SourceNone},
		currentFolder: constants.RootFolderID,
	}
}

// Storage returns the current storage summary.
func (s *AppState) Storage() StorageSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.storage
}

// SetStorage replaces the storage summary. Negative values are clamped to 0.
func (s *AppState) SetStorage(summary StorageSummary) {
	summary.TotalBytesUsed = max(summary.TotalBytesUsed, 0)
	summary.TotalFileCount = max(summary.TotalFileCount, 0)

	s.mu.Lock()
	s.storage = summary
	s.mu.Unlock()

	s.publishStorage(summary)
}

// AdjustStorage applies an optimistic delta. The result is clamped at 0.
func (s *AppState) AdjustStorage(deltaBytes int64, deltaFiles int) StorageSummary {
	s.mu.Lock()
	s.storage.TotalBytesUsed = max(s.storage.TotalBytesUsed+deltaBytes, 0)
	s.storage.TotalFileCount = max(s.storage.TotalFileCount+deltaFiles, 0)
	s.storage.Source = SourceOptimistic
	summary := s.storage
	s.mu.Unlock()

	s.publishStorage(summary)
	return summary
}

// Listing returns a copy of the cached listing and whether one was loaded.
func (s *AppState) Listing() (FolderListing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasListing {
		return FolderListing{FolderID: s.currentFolder}, false
	}
	return s.listing.clone(), true
}

// SetListing replaces the cached listing wholesale.
func (s *AppState) SetListing(listing FolderListing) {
	if listing.LoadedAt.IsZero() {
		listing.LoadedAt = time.Now()
	}
	listing = listing.clone()

	s.mu.Lock()
	s.listing = listing
	s.hasListing = true
	wasLoading := s.loading
	s.loading = false
	s.lastError = nil
	s.mu.Unlock()

	if wasLoading {
		s.publishLoading(listing.FolderID, false)
	}
	s.eventBus.Publish(&events.ListingChangedEvent{
		BaseEvent:   events.NewBase(events.EventListingChanged),
		FolderID:    listing.FolderID,
		FileCount:   len(listing.Files),
		FolderCount: len(listing.Folders),
	})
}

// CurrentFolder returns the folder the listing follows.
func (s *AppState) CurrentFolder() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentFolder
}

// SetCurrentFolder switches the current folder. The cached listing is kept
// until the next reload replaces it.
func (s *AppState) SetCurrentFolder(folderID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentFolder = folderID
}

// SetLoading marks the listing as loading and publishes an event.
func (s *AppState) SetLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	folderID := s.currentFolder
	s.mu.Unlock()

	s.publishLoading(folderID, loading)
}

// IsLoading returns whether a listing reload is in flight.
func (s *AppState) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// SetError records the last reload failure and ends the loading state.
// The cached listing is untouched.
func (s *AppState) SetError(err error) {
	s.mu.Lock()
	s.lastError = err
	wasLoading := s.loading
	s.loading = false
	folderID := s.currentFolder
	s.mu.Unlock()

	if wasLoading {
		s.publishLoading(folderID, false)
	}
}

// LastError returns the last reload failure, nil after a successful reload.
func (s *AppState) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

func (s *AppState) publishLoading(folderID int64, loading bool) {
	s.eventBus.Publish(&events.ListingLoadingEvent{
		BaseEvent: events.NewBase(events.EventListingLoading),
		FolderID:  folderID,
		Loading:   loading,
	})
}

func (s *AppState) publishStorage(summary StorageSummary) {
	s.eventBus.Publish(&events.StorageChangedEvent{
		BaseEvent:  events.NewBase(events.EventStorageChanged),
		TotalBytes: summary.TotalBytesUsed,
		FileCount:  summary.TotalFileCount,
		Source:     string(summary.Source),
	})
}
