package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/chronicle-lab/chronicle/internal/snapshot"
)

const (
	queryUpsertSnapshot = `
		INSERT INTO snapshot (persistence_id, sequence_number, created_at, payload, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (persistence_id, sequence_number) DO UPDATE SET
			created_at = EXCLUDED.created_at,
			payload    = EXCLUDED.payload,
			metadata   = EXCLUDED.metadata
	`

	queryLatestSnapshot = `
		SELECT persistence_id, sequence_number, created_at, payload, metadata
		FROM snapshot
		WHERE persistence_id = $1
		  AND sequence_number <= $2
		ORDER BY sequence_number DESC
		LIMIT 1
	`

	queryDeleteSnapshots = `
		DELETE FROM snapshot
		WHERE persistence_id = $1
		  AND sequence_number <= $2
	`
)

// Adapter implements snapshot.Store using PostgreSQL, sharing the journal
// adapter's connection.
type Adapter struct {
	db *sql.DB
}

func NewAdapter(db *sql.DB) *Adapter {
	return &Adapter{db: db}
}

func (a *Adapter) Save(ctx context.Context, snap snapshot.Snapshot) error {
	metadata := snap.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}
	_, err := a.db.ExecContext(ctx, queryUpsertSnapshot,
		snap.PersistenceID,
		snap.SequenceNr,
		snap.CreatedAt,
		snap.Payload,
		[]byte(metadata),
	)
	if err != nil {
		return fmt.Errorf("save snapshot (%s, %d): %w", snap.PersistenceID, snap.SequenceNr, err)
	}
	return nil
}

func (a *Adapter) Latest(ctx context.Context, persistenceID string, maxSequenceNr int64) (*snapshot.Snapshot, error) {
	var (
		snap     snapshot.Snapshot
		metadata []byte
	)
	err := a.db.QueryRowContext(ctx, queryLatestSnapshot, persistenceID, maxSequenceNr).Scan(
		&snap.PersistenceID,
		&snap.SequenceNr,
		&snap.CreatedAt,
		&snap.Payload,
		&metadata,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", persistenceID, err)
	}
	snap.Metadata = metadata
	return &snap, nil
}

func (a *Adapter) Delete(ctx context.Context, persistenceID string, toSequenceNr int64) error {
	if _, err := a.db.ExecContext(ctx, queryDeleteSnapshots, persistenceID, toSequenceNr); err != nil {
		return fmt.Errorf("delete snapshots %s: %w", persistenceID, err)
	}
	return nil
}
