package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()

	c, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "catalog.db")},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleSetlist(name string, performanceAt time.Time) *Setlist {
	return &Setlist{
		Name:          name,
		Venue:         "The Basement",
		PerformanceAt: performanceAt,
		Songs: []Song{
			{Title: "Wild Thing", Artist: "The Troggs", ContentID: "c-wild-thing", Kind: "chords"},
			{Title: "Hallelujah", Artist: "Leonard Cohen", ContentID: "c-hallelujah", Kind: "lyrics"},
		},
	}
}

func TestCreateAndGetSetlist(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	in := sampleSetlist("Friday gig", time.Now().Add(48*time.Hour))
	if err := c.CreateSetlist(ctx, in); err != nil {
		t.Fatalf("CreateSetlist: %v", err)
	}
	if in.ID == "" {
		t.Fatal("CreateSetlist did not assign an ID")
	}

	got, err := c.GetSetlist(ctx, in.ID)
	if err != nil {
		t.Fatalf("GetSetlist: %v", err)
	}
	if got.Name != "Friday gig" || got.Venue != "The Basement" {
		t.Errorf("setlist fields = %q/%q", got.Name, got.Venue)
	}
	if len(got.Songs) != 2 {
		t.Fatalf("Songs = %d, want 2", len(got.Songs))
	}
	if got.Songs[0].Title != "Wild Thing" || got.Songs[1].Title != "Hallelujah" {
		t.Errorf("song order = %q, %q", got.Songs[0].Title, got.Songs[1].Title)
	}
	if got.Songs[0].Position != 0 || got.Songs[1].Position != 1 {
		t.Errorf("positions = %d, %d", got.Songs[0].Position, got.Songs[1].Position)
	}
}

func TestGetSetlistNotFound(t *testing.T) {
	c := newTestCatalog(t)
	if _, err := c.GetSetlist(context.Background(), "nope"); !errors.Is(err, ErrSetlistNotFound) {
		t.Errorf("err = %v, want ErrSetlistNotFound", err)
	}
}

func TestListSetlistsOrderedByPerformance(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	base := time.Now()

	later := sampleSetlist("Later", base.Add(72*time.Hour))
	sooner := sampleSetlist("Sooner", base.Add(12*time.Hour))
	for _, s := range []*Setlist{later, sooner} {
		if err := c.CreateSetlist(ctx, s); err != nil {
			t.Fatalf("CreateSetlist: %v", err)
		}
	}

	lists, err := c.ListSetlists(ctx)
	if err != nil {
		t.Fatalf("ListSetlists: %v", err)
	}
	if len(lists) != 2 {
		t.Fatalf("ListSetlists = %d entries", len(lists))
	}
	if lists[0].Name != "Sooner" || lists[1].Name != "Later" {
		t.Errorf("order = %q, %q", lists[0].Name, lists[1].Name)
	}
}

func TestUpcomingSetlistsExcludesPast(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	now := time.Now()

	past := sampleSetlist("Last week", now.Add(-7*24*time.Hour))
	future := sampleSetlist("Tomorrow", now.Add(24*time.Hour))
	for _, s := range []*Setlist{past, future} {
		if err := c.CreateSetlist(ctx, s); err != nil {
			t.Fatalf("CreateSetlist: %v", err)
		}
	}

	lists, err := c.UpcomingSetlists(ctx, now)
	if err != nil {
		t.Fatalf("UpcomingSetlists: %v", err)
	}
	if len(lists) != 1 || lists[0].Name != "Tomorrow" {
		t.Fatalf("UpcomingSetlists = %+v, want only Tomorrow", lists)
	}
	if len(lists[0].Songs) != 2 {
		t.Errorf("upcoming setlist songs = %d, want 2", len(lists[0].Songs))
	}
}

func TestUpdateSetlist(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	s := sampleSetlist("Draft", time.Now().Add(24*time.Hour))
	if err := c.CreateSetlist(ctx, s); err != nil {
		t.Fatalf("CreateSetlist: %v", err)
	}

	s.Name = "Final"
	s.Venue = "Main stage"
	if err := c.UpdateSetlist(ctx, s); err != nil {
		t.Fatalf("UpdateSetlist: %v", err)
	}

	got, err := c.GetSetlist(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSetlist: %v", err)
	}
	if got.Name != "Final" || got.Venue != "Main stage" {
		t.Errorf("after update: %q/%q", got.Name, got.Venue)
	}

	missing := &Setlist{ID: "nope", Name: "x"}
	if err := c.UpdateSetlist(ctx, missing); !errors.Is(err, ErrSetlistNotFound) {
		t.Errorf("update missing: err = %v, want ErrSetlistNotFound", err)
	}
}

func TestReplaceSongs(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	s := sampleSetlist("Gig", time.Now().Add(24*time.Hour))
	if err := c.CreateSetlist(ctx, s); err != nil {
		t.Fatalf("CreateSetlist: %v", err)
	}

	err := c.ReplaceSongs(ctx, s.ID, []Song{
		{Title: "New opener", ContentID: "c-opener", Kind: "tab"},
	})
	if err != nil {
		t.Fatalf("ReplaceSongs: %v", err)
	}

	got, err := c.GetSetlist(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSetlist: %v", err)
	}
	if len(got.Songs) != 1 || got.Songs[0].Title != "New opener" {
		t.Fatalf("songs after replace = %+v", got.Songs)
	}
	if got.Songs[0].Position != 0 {
		t.Errorf("position = %d", got.Songs[0].Position)
	}

	if err := c.ReplaceSongs(ctx, "nope", nil); !errors.Is(err, ErrSetlistNotFound) {
		t.Errorf("replace on missing setlist: err = %v", err)
	}
}

func TestDeleteSetlistRemovesSongs(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	s := sampleSetlist("Doomed", time.Now().Add(24*time.Hour))
	if err := c.CreateSetlist(ctx, s); err != nil {
		t.Fatalf("CreateSetlist: %v", err)
	}

	if err := c.DeleteSetlist(ctx, s.ID); err != nil {
		t.Fatalf("DeleteSetlist: %v", err)
	}
	if _, err := c.GetSetlist(ctx, s.ID); !errors.Is(err, ErrSetlistNotFound) {
		t.Errorf("after delete: err = %v", err)
	}

	var count int64
	if err := c.DB().Model(&Song{}).Where("setlist_id = ?", s.ID).Count(&count).Error; err != nil {
		t.Fatalf("count songs: %v", err)
	}
	if count != 0 {
		t.Errorf("orphaned songs = %d", count)
	}

	if err := c.DeleteSetlist(ctx, s.ID); !errors.Is(err, ErrSetlistNotFound) {
		t.Errorf("second delete: err = %v", err)
	}
}

func TestSetActiveIsExclusive(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	a := sampleSetlist("A", time.Now().Add(24*time.Hour))
	b := sampleSetlist("B", time.Now().Add(48*time.Hour))
	for _, s := range []*Setlist{a, b} {
		if err := c.CreateSetlist(ctx, s); err != nil {
			t.Fatalf("CreateSetlist: %v", err)
		}
	}

	if err := c.SetActive(ctx, a.ID); err != nil {
		t.Fatalf("SetActive(a): %v", err)
	}
	if err := c.SetActive(ctx, b.ID); err != nil {
		t.Fatalf("SetActive(b): %v", err)
	}

	active, err := c.ActiveSetlist(ctx)
	if err != nil {
		t.Fatalf("ActiveSetlist: %v", err)
	}
	if active == nil || active.ID != b.ID {
		t.Fatalf("active = %+v, want %s", active, b.ID)
	}

	var activeCount int64
	if err := c.DB().Model(&Setlist{}).Where("active = ?", true).Count(&activeCount).Error; err != nil {
		t.Fatalf("count active: %v", err)
	}
	if activeCount != 1 {
		t.Errorf("active setlists = %d, want 1", activeCount)
	}

	if err := c.SetActive(ctx, ""); err != nil {
		t.Fatalf("SetActive(clear): %v", err)
	}
	active, err = c.ActiveSetlist(ctx)
	if err != nil {
		t.Fatalf("ActiveSetlist after clear: %v", err)
	}
	if active != nil {
		t.Errorf("active after clear = %+v, want nil", active)
	}

	if err := c.SetActive(ctx, "nope"); !errors.Is(err, ErrSetlistNotFound) {
		t.Errorf("SetActive missing: err = %v", err)
	}
}

func TestContentRefsFromSongs(t *testing.T) {
	s := sampleSetlist("Refs", time.Now())
	refs := s.ContentRefs()
	if len(refs) != 2 {
		t.Fatalf("refs = %d", len(refs))
	}
	if refs[0].ID != "c-wild-thing" || refs[0].Kind != "chords" {
		t.Errorf("ref[0] = %+v", refs[0])
	}
}
