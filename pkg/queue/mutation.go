package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntityType says what kind of record a mutation targets.
type EntityType string

const (
	EntityContent EntityType = "content"
	EntitySetlist EntityType = "setlist"
)

// Operation is the kind of local edit being replayed.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// State is the lifecycle position of a queued mutation.
//
// Pending and InFlight are live states. Committed mutations are removed
// immediately. Conflict and FailedTerminal mutations are retained until the
// caller resolves, retries or discards them.
type State string

const (
	StatePending        State = "pending"
	StateInFlight       State = "in_flight"
	StateCommitted      State = "committed"
	StateConflict       State = "conflict"
	StateFailedTerminal State = "failed_terminal"
)

// Terminal reports whether a state ends the mutation's lane slot: the
// conductor may not send the next mutation for an entity until the previous
// one is terminal.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateConflict || s == StateFailedTerminal
}

// Mutation is one queued local edit awaiting replay against the remote
// service.
type Mutation struct {
	// MutationID is generated client-side and used for idempotent
	// replay and dedup on the server.
	MutationID string `json:"mutation_id"`

	// Seq is the global enqueue sequence number. Per-entity FIFO order
	// follows from ascending Seq within a lane.
	Seq uint64 `json:"seq"`

	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Operation  Operation  `json:"operation"`

	// Payload is the opaque serialized body of the edit.
	Payload []byte `json:"payload,omitempty"`

	// BaseVersion is the server version the edit was based on, used for
	// conflict detection.
	BaseVersion string `json:"base_version,omitempty"`

	Attempts  uint      `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	State     State     `json:"state"`

	// ServerVersion and ServerState are filled when the mutation enters
	// Conflict, so the caller can rebase against the current server copy
	// without another fetch.
	ServerVersion string `json:"server_version,omitempty"`
	ServerState   []byte `json:"server_state,omitempty"`
}

func encodeMutation(m *Mutation) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mutation %s: %w", m.MutationID, err)
	}
	return data, nil
}

func decodeMutation(data []byte) (*Mutation, error) {
	var m Mutation
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode mutation: %w", err)
	}
	return &m, nil
}
