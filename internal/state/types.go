package state

import (
	"sort"
	"strings"
	"time"

	"github.com/tgdrive/tgdrive/internal/models"
)

// StorageSource records how a StorageSummary was obtained.
type StorageSource string

const (
	SourceNone          StorageSource = "none"
	SourceOptimistic    StorageSource = "optimistic"     // local delta, not yet reconciled
	SourceAuthoritative StorageSource = "authoritative"  // /storage/info
	SourceAllFiles      StorageSource = "all-files"      // sum over /files/all
	SourceCurrentFolder StorageSource = "current-folder" // sum over the cached listing, approximate
)

// Approximate reports whether the summary only covers part of the drive.
func (s StorageSource) Approximate() bool {
	return s == SourceCurrentFolder
}

// StorageSummary is the cached storage total. Values are never negative.
type StorageSummary struct {
	TotalBytesUsed int64
	TotalFileCount int
	Source         StorageSource
}

// FolderListing is the cached content of one folder. It is only ever
// replaced wholesale.
type FolderListing struct {
	FolderID int64
	Files    []models.FileMeta
	Folders  []models.FolderMeta
	LoadedAt time.Time
}

// TotalBytes sums the sizes of the listed files.
func (l FolderListing) TotalBytes() int64 {
	var total int64
	for _, f := range l.Files {
		total += f.Size
	}
	return total
}

func (l FolderListing) clone() FolderListing {
	c := l
	c.Files = append([]models.FileMeta(nil), l.Files...)
	c.Folders = append([]models.FolderMeta(nil), l.Folders...)
	return c
}

// SortKey selects the listing sort order.
type SortKey string

const (
	SortByName SortKey = "name"
	SortBySize SortKey = "size"
	SortByDate SortKey = "date"
)

// Sorted returns a copy with files ordered by key. Folders have no size and
// are ordered by name or date.
func (l FolderListing) Sorted(key SortKey, ascending bool) FolderListing {
	c := l.clone()

	sort.SliceStable(c.Files, func(i, j int) bool {
		a, b := c.Files[i], c.Files[j]
		var less bool
		switch key {
		case SortBySize:
			less = a.Size < b.Size
		case SortByDate:
			less = a.Created().Before(b.Created())
		default:
			less = strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
		if ascending {
			return less
		}
		return !less
	})

	sort.SliceStable(c.Folders, func(i, j int) bool {
		a, b := c.Folders[i], c.Folders[j]
		var less bool
		if key == SortByDate {
			less = a.Created().Before(b.Created())
		} else {
			less = strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
		if ascending {
			return less
		}
		return !less
	})
	return c
}
