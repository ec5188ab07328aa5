//go:build integration

package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Shared PostgreSQL container, started once per test run. The Ryuk
// reaper terminates it when the process exits.
var sharedPostgres *postgresContainer

type postgresContainer struct {
	container testcontainers.Container
	host      string
	port      int
}

func startPostgres(t *testing.T) *postgresContainer {
	t.Helper()

	if sharedPostgres != nil {
		return sharedPostgres
	}

	ctx := context.Background()

	// PostgreSQL logs "ready to accept connections" twice during startup,
	// once during bootstrap and once when fully ready.
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gigsync_test"),
		postgres.WithUsername("gigsync_test"),
		postgres.WithPassword("gigsync_test"),
		testcontainers.WithWaitStrategyAndDeadline(5*time.Minute,
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get container port: %v", err)
	}

	sharedPostgres = &postgresContainer{
		container: container,
		host:      host,
		port:      port.Int(),
	}
	return sharedPostgres
}

func newPostgresCatalog(t *testing.T) *Catalog {
	t.Helper()

	pg := startPostgres(t)

	c, err := New(&Config{
		Type: DatabaseTypePostgres,
		Postgres: PostgresConfig{
			Host:     pg.host,
			Port:     pg.port,
			Database: "gigsync_test",
			User:     "gigsync_test",
			Password: "gigsync_test",
			SSLMode:  "disable",
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	// The container is shared across tests, so start from a clean slate.
	if err := c.DB().Exec("TRUNCATE setlists, songs CASCADE").Error; err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return c
}

func TestPostgresSetlistRoundTrip(t *testing.T) {
	c := newPostgresCatalog(t)
	ctx := context.Background()

	in := sampleSetlist("Saturday gig", time.Now().Add(24*time.Hour))
	if err := c.CreateSetlist(ctx, in); err != nil {
		t.Fatalf("CreateSetlist: %v", err)
	}

	got, err := c.GetSetlist(ctx, in.ID)
	if err != nil {
		t.Fatalf("GetSetlist: %v", err)
	}
	if got.Name != "Saturday gig" || len(got.Songs) != 2 {
		t.Fatalf("got %q with %d songs", got.Name, len(got.Songs))
	}
	if got.Songs[0].Position != 0 || got.Songs[1].Position != 1 {
		t.Errorf("song positions = %d, %d", got.Songs[0].Position, got.Songs[1].Position)
	}
}

func TestPostgresReplaceSongs(t *testing.T) {
	c := newPostgresCatalog(t)
	ctx := context.Background()

	in := sampleSetlist("Rehearsal", time.Now().Add(2*time.Hour))
	if err := c.CreateSetlist(ctx, in); err != nil {
		t.Fatalf("CreateSetlist: %v", err)
	}

	songs := []Song{
		{Title: "New opener", ContentID: "c-opener", Kind: "tab"},
	}
	if err := c.ReplaceSongs(ctx, in.ID, songs); err != nil {
		t.Fatalf("ReplaceSongs: %v", err)
	}

	got, err := c.GetSetlist(ctx, in.ID)
	if err != nil {
		t.Fatalf("GetSetlist: %v", err)
	}
	if len(got.Songs) != 1 || got.Songs[0].Title != "New opener" {
		t.Fatalf("songs after replace = %+v", got.Songs)
	}
}

func TestPostgresSetActiveIsExclusive(t *testing.T) {
	c := newPostgresCatalog(t)
	ctx := context.Background()

	a := sampleSetlist("First", time.Now().Add(1*time.Hour))
	b := sampleSetlist("Second", time.Now().Add(3*time.Hour))
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

	if err := c.SetActive(ctx, ""); err != nil {
		t.Fatalf("SetActive(clear): %v", err)
	}
	active, err = c.ActiveSetlist(ctx)
	if err != nil {
		t.Fatalf("ActiveSetlist: %v", err)
	}
	if active != nil {
		t.Fatalf("active after clear = %+v, want nil", active)
	}
}
