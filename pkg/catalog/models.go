package catalog

import (
	"time"

	"github.com/gigsync/gigsync/pkg/content"
)

// Setlist is a planned performance: a venue, a time, and an ordered set of
// songs whose content the engine keeps warm.
type Setlist struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Name          string    `gorm:"not null;size:255" json:"name"`
	Venue         string    `gorm:"size:255" json:"venue,omitempty"`
	PerformanceAt time.Time `gorm:"index" json:"performance_at"`

	// Active marks the setlist currently in performance mode. At most one
	// setlist is active; its content is pinned in the cache.
	Active bool `gorm:"default:false;index" json:"active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Songs []Song `gorm:"foreignKey:SetlistID;constraint:OnDelete:CASCADE" json:"songs,omitempty"`
}

// TableName returns the table name for Setlist.
func (Setlist) TableName() string {
	return "setlists"
}

// Song is one slot in a setlist, pointing at the performance content to
// preload for it.
type Song struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	SetlistID string `gorm:"not null;index;size:36" json:"setlist_id"`
	Position  int    `gorm:"not null" json:"position"`
	Title     string `gorm:"not null;size:255" json:"title"`
	Artist    string `gorm:"size:255" json:"artist,omitempty"`

	// ContentID, Kind and RemotePath locate the performance file.
	ContentID  string `gorm:"not null;size:64;index" json:"content_id"`
	Kind       string `gorm:"size:16" json:"kind"`
	RemotePath string `gorm:"size:512" json:"remote_path,omitempty"`

	// SizeHint is the expected payload size in bytes, 0 if unknown.
	SizeHint int64 `json:"size_hint,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Song.
func (Song) TableName() string {
	return "songs"
}

// Ref returns the song's content reference for the preload scheduler.
func (s *Song) Ref() content.Ref {
	return content.Ref{
		ID:         content.ID(s.ContentID),
		Kind:       content.Kind(s.Kind),
		RemotePath: s.RemotePath,
		SizeHint:   s.SizeHint,
	}
}

// ContentRefs returns the refs for every song in order.
func (s *Setlist) ContentRefs() []content.Ref {
	refs := make([]content.Ref, len(s.Songs))
	for i := range s.Songs {
		refs[i] = s.Songs[i].Ref()
	}
	return refs
}

// ContentIDs returns the content IDs for every song in order.
func (s *Setlist) ContentIDs() []content.ID {
	ids := make([]content.ID, len(s.Songs))
	for i := range s.Songs {
		ids[i] = content.ID(s.Songs[i].ContentID)
	}
	return ids
}

// AllModels returns the models registered with AutoMigrate.
func AllModels() []any {
	return []any{
		&Setlist{},
		&Song{},
	}
}
