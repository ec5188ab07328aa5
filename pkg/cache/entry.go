package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gigsync/gigsync/pkg/content"
)

// Priority classifies how soon a cached item is expected to be needed.
// Eviction prefers Low-priority victims; preload assigns High to items whose
// performance date falls inside the near-term window.
type Priority int

const (
	// PriorityLow marks content with no imminent performance.
	PriorityLow Priority = iota

	// PriorityHigh marks content needed for a near-term performance.
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Entry is the metadata for one cached file. The file bytes live in the
// byte store under StorageKey; Entry itself is persisted separately so the
// index can be rebuilt after a restart.
type Entry struct {
	// ContentID is the unique key for this entry.
	ContentID content.ID `json:"content_id"`

	// StorageKey is where the bytes live in the byte store.
	StorageKey string `json:"storage_key"`

	// MIMEType is the payload MIME type as reported by the remote service.
	MIMEType string `json:"mime_type"`

	// SizeBytes is the payload size. Budget accounting sums this field.
	SizeBytes uint64 `json:"size_bytes"`

	// CreatedAt is when the entry was first cached.
	CreatedAt time.Time `json:"created_at"`

	// LastAccessedAt is refreshed on every read.
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// Priority is derived from schedule proximity at preload time.
	Priority Priority `json:"priority"`

	// Pinned is true while the entry belongs to the setlist currently in
	// performance mode. Pinned entries are never auto-evicted.
	Pinned bool `json:"pinned"`
}

func encodeEntry(e *Entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry %s: %w", e.ContentID, err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return &e, nil
}

// Info is a snapshot of cache occupancy, surfaced to callers so a UI can
// show usage and cleanup affordances.
type Info struct {
	// TotalSize is the sum of SizeBytes over all entries.
	TotalSize uint64 `json:"total_size"`

	// MaxSize is the configured budget.
	MaxSize uint64 `json:"max_size"`

	// ItemCount is the number of cached entries.
	ItemCount int `json:"item_count"`

	// OldestItem is the least recently accessed entry's timestamp.
	// Zero when the cache is empty.
	OldestItem time.Time `json:"oldest_item,omitempty"`
}

// CleanupResult reports what an explicit cleanup pass removed.
type CleanupResult struct {
	CleanedCount    int    `json:"cleaned_count"`
	FreedSpaceBytes uint64 `json:"freed_space_bytes"`
}
