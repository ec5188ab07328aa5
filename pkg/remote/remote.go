// Package remote defines the content service boundary and its HTTP client.
//
// The engine talks to three endpoints: GET/PUT/DELETE content/:id for
// individual payloads, and POST sync/content for batched mutation replay.
// Errors are classified into the taxonomy the retry and sync layers key
// off: NetworkError (transient), ConflictError (caller decides),
// ValidationError (permanent), NotFoundError.
package remote

import (
	"context"
	"encoding/json"

	"github.com/gigsync/gigsync/pkg/content"
)

// Content is one payload fetched from or pushed to the service.
type Content struct {
	ID       content.ID
	MIMEType string
	Data     []byte

	// Version is the server's version marker for this payload, carried
	// into PendingMutation.BaseVersion when a local edit starts from it.
	Version string
}

// Mutation is the wire form of one queued local edit, as accepted by the
// batch sync endpoint.
type Mutation struct {
	MutationID  string `json:"mutation_id"`
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	Operation   string `json:"operation"`
	Payload     []byte `json:"payload,omitempty"`
	BaseVersion string `json:"base_version,omitempty"`
}

// Per-item failure codes returned by the batch endpoint.
const (
	ResultCodeConflict   = "conflict"
	ResultCodeValidation = "validation"
	ResultCodeTransient  = "transient"
)

// MutationResult is the per-item outcome of a batch sync. On conflict the
// server includes its current version and state so the caller can rebase
// without another fetch.
type MutationResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`

	ServerVersion string          `json:"server_version,omitempty"`
	ServerState   json.RawMessage `json:"server_state,omitempty"`
}

// BatchResult is the aggregate outcome of a batch sync.
type BatchResult struct {
	SuccessCount int              `json:"success_count"`
	FailureCount int              `json:"failure_count"`
	Results      []MutationResult `json:"results"`
}

// Service is the remote content service consumed by preload and sync.
//
// Every call respects the deadline on its context; a deadline expiry is
// reported as a NetworkError with Timeout set, making it transient for
// retry purposes.
type Service interface {
	// GetContent fetches one payload.
	GetContent(ctx context.Context, id content.ID) (*Content, error)

	// PutContent uploads one payload, creating or replacing it.
	PutContent(ctx context.Context, c *Content) error

	// DeleteContent removes a payload. Missing content is reported as
	// *NotFoundError.
	DeleteContent(ctx context.Context, id content.ID) error

	// SyncBatch replays queued mutations and returns per-item outcomes.
	// The returned error covers batch-level failures only (transport,
	// 5xx); per-item failures live in the result.
	SyncBatch(ctx context.Context, mutations []Mutation) (*BatchResult, error)

	// Ping probes reachability. Used by the network monitor.
	Ping(ctx context.Context) error
}
