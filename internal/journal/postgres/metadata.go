package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chronicle-lab/chronicle/internal/core/partition"
	"github.com/chronicle-lab/chronicle/internal/journal"
)

// upsertMetadataTx maintains the per-id summary row inside the caller's
// write transaction, so the summary is never visible out of sync with the
// journal rows that produced it. The conditional update is the monotonic
// guard: zero affected rows means the candidate max sequence number did not
// exceed the stored one, and the whole transaction must roll back.
func (a *Adapter) upsertMetadataTx(ctx context.Context, tx *sql.Tx, persistenceID string, maxSeq, minOrd, maxOrd int64) error {
	shard := partition.For(persistenceID, a.shards)

	result, err := tx.ExecContext(ctx, queryUpsertMetadata, persistenceID, shard, maxSeq, minOrd, maxOrd)
	if err != nil {
		return fmt.Errorf("journal write: upsert metadata %s: %w", persistenceID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("journal write: upsert metadata %s: rows affected: %w", persistenceID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s: candidate max %d", journal.ErrMetadataRegression, persistenceID, maxSeq)
	}
	return nil
}
