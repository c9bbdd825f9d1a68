package snapshot

import (
	"context"
	"encoding/json"
)

// Snapshot is one stored state blob: an opaque payload keyed by persistence
// id and sequence number. Snapshots have no ordering or partitioning
// concerns; they exist so recovery can skip replaying the full journal.
type Snapshot struct {
	PersistenceID string
	SequenceNr    int64
	CreatedAt     int64
	Payload       []byte
	Metadata      json.RawMessage
}

// Store is the keyed blob store for snapshots.
type Store interface {
	// Save upserts the snapshot for (persistenceID, sequenceNr).
	Save(ctx context.Context, snap Snapshot) error

	// Latest returns the newest snapshot at or below maxSequenceNr, or nil
	// when none exists.
	Latest(ctx context.Context, persistenceID string, maxSequenceNr int64) (*Snapshot, error)

	// Delete removes snapshots up to toSequenceNr inclusive. Idempotent.
	Delete(ctx context.Context, persistenceID string, toSequenceNr int64) error
}
