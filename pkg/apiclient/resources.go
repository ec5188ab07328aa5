package apiclient

import (
	"fmt"
	"time"

	"github.com/gigsync/gigsync/pkg/cache"
	"github.com/gigsync/gigsync/pkg/catalog"
	"github.com/gigsync/gigsync/pkg/engine"
	"github.com/gigsync/gigsync/pkg/queue"
	"github.com/gigsync/gigsync/pkg/syncer"
)

// Health is the body of the daemon's health probe.
type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Online    bool      `json:"online"`
}

// Health fetches the daemon health probe.
func (c *Client) Health() (*Health, error) {
	var h Health
	if err := c.get("/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Status fetches the engine status snapshot.
func (c *Client) Status() (*engine.Status, error) {
	var st engine.Status
	if err := c.get("/api/v1/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// CacheInfo fetches cache usage.
func (c *Client) CacheInfo() (*cache.Info, error) {
	var info cache.Info
	if err := c.get("/api/v1/cache", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CacheCleanup runs an age-based cleanup pass.
func (c *Client) CacheCleanup() (*cache.CleanupResult, error) {
	var result cache.CleanupResult
	if err := c.post("/api/v1/cache/cleanup", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CacheRemove drops one cached payload.
func (c *Client) CacheRemove(contentID string) error {
	return c.delete(fmt.Sprintf("/api/v1/cache/%s", contentID), nil)
}

// EnqueueMutation records a local edit in the daemon's sync queue.
func (c *Client) EnqueueMutation(entityType, entityID, operation string, payload []byte, baseVersion string) (*queue.Mutation, error) {
	req := map[string]any{
		"entity_type":  entityType,
		"entity_id":    entityID,
		"operation":    operation,
		"payload":      payload,
		"base_version": baseVersion,
	}
	var m queue.Mutation
	if err := c.post("/api/v1/sync/mutations", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMutations lists queued mutations, optionally filtered by state.
func (c *Client) ListMutations(state string) ([]queue.Mutation, error) {
	path := "/api/v1/sync/mutations"
	if state != "" {
		path += "?state=" + state
	}
	var muts []queue.Mutation
	if err := c.get(path, &muts); err != nil {
		return nil, err
	}
	return muts, nil
}

// WithdrawMutation removes a pending mutation from the queue.
func (c *Client) WithdrawMutation(mutationID string) error {
	return c.delete(fmt.Sprintf("/api/v1/sync/mutations/%s", mutationID), nil)
}

// Drain synchronously drains the sync queue.
func (c *Client) Drain() (*syncer.Report, error) {
	var report syncer.Report
	if err := c.post("/api/v1/sync/drain", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// RetryMutation returns a failed mutation to the queue and drains its lane.
func (c *Client) RetryMutation(mutationID string) (*syncer.Report, error) {
	var report syncer.Report
	if err := c.post(fmt.Sprintf("/api/v1/sync/mutations/%s/retry", mutationID), nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Conflicts lists conflicted mutations.
func (c *Client) Conflicts() ([]queue.Mutation, error) {
	var muts []queue.Mutation
	if err := c.get("/api/v1/sync/conflicts", &muts); err != nil {
		return nil, err
	}
	return muts, nil
}

// ResolveConflict settles a conflicted mutation.
func (c *Client) ResolveConflict(mutationID string, discard bool, payload []byte, baseVersion string) error {
	req := map[string]any{
		"discard":      discard,
		"payload":      payload,
		"base_version": baseVersion,
	}
	return c.post(fmt.Sprintf("/api/v1/sync/conflicts/%s/resolve", mutationID), req, nil)
}

// ListSetlists lists all setlists.
func (c *Client) ListSetlists() ([]catalog.Setlist, error) {
	var lists []catalog.Setlist
	if err := c.get("/api/v1/setlists", &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// GetSetlist fetches one setlist with its songs.
func (c *Client) GetSetlist(id string) (*catalog.Setlist, error) {
	var s catalog.Setlist
	if err := c.get(fmt.Sprintf("/api/v1/setlists/%s", id), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSetlist removes a setlist.
func (c *Client) DeleteSetlist(id string) error {
	return c.delete(fmt.Sprintf("/api/v1/setlists/%s", id), nil)
}

// Perform puts a setlist into performance mode.
func (c *Client) Perform(id string) (*catalog.Setlist, error) {
	var s catalog.Setlist
	if err := c.post(fmt.Sprintf("/api/v1/setlists/%s/perform", id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ActivePerformance fetches the setlist currently in performance mode.
func (c *Client) ActivePerformance() (*catalog.Setlist, error) {
	var s catalog.Setlist
	if err := c.get("/api/v1/performance", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// EndPerformance leaves performance mode.
func (c *Client) EndPerformance() error {
	return c.post("/api/v1/performance/end", nil, nil)
}
