package journal

import (
	"context"
	"encoding/json"
)

// Entry is one stored journal row. Ordering is assigned by the store at
// insert time and is globally unique and monotonically increasing across
// all persistence ids.
type Entry struct {
	PersistenceID string
	SequenceNr    int64
	Ordering      int64
	Deleted       bool
	Payload       []byte
	TagIDs        []int32
	Metadata      json.RawMessage
}

// Metadata is the per-persistence-id summary row. MaxSequenceNr only ever
// grows; MinOrdering/MaxOrdering bound every ordering token ever written
// for the id.
type Metadata struct {
	MaxSequenceNr int64
	MinOrdering   int64
	MaxOrdering   int64
}

// EntryCursor is a pull-based cursor over journal rows. The consumer drives
// demand; the producer never reads further ahead than the consumer asks.
// Close must be called on every exit path, including early abandonment.
type EntryCursor interface {
	// Next advances the cursor. It returns false when the cursor is
	// exhausted or failed; check Err afterwards.
	Next() bool
	// Entry returns the current row. Only valid after Next returned true.
	Entry() Entry
	Err() error
	Close() error
}

// IDCursor is a pull-based cursor over distinct persistence ids.
type IDCursor interface {
	Next() bool
	ID() string
	Err() error
	Close() error
}

// Store is the physical journal storage engine: the batch insert that
// assigns ordering tokens, the deletion primitives and the range reads.
type Store interface {
	// WriteBatch inserts all entries and updates the per-id summary rows in
	// one transaction. Entries must be sorted by sequence number ascending.
	// Returns ErrDuplicateSequence if any (persistenceID, sequenceNr) pair
	// already exists, ErrMetadataRegression if a summary update would lower
	// a stored max sequence number. Either every entry is durable or none.
	WriteBatch(ctx context.Context, entries []Entry) error

	// SoftDelete tombstones all live rows up to toSequenceNr inclusive.
	// Idempotent; returns the number of rows newly tombstoned.
	SoftDelete(ctx context.Context, persistenceID string, toSequenceNr int64) (int64, error)

	// HardDelete physically removes rows up to toSequenceNr inclusive and
	// records the highest removed sequence number in the deletion marker,
	// in the same transaction. Returns the number of rows removed.
	HardDelete(ctx context.Context, persistenceID string, toSequenceNr int64) (int64, error)

	// HighestSequenceNr combines the maximum stored sequence number at or
	// above fromSequenceNr with the deletion marker. Returns 0 when the id
	// was never written.
	HighestSequenceNr(ctx context.Context, persistenceID string, fromSequenceNr int64) (int64, error)

	// Range opens a cursor over live rows in [fromSequenceNr, toSequenceNr],
	// ordered by sequence number ascending, capped at limit. A positive
	// minOrdering adds an ordering lower bound so a partitioned backend can
	// prune segments that cannot contain matches; 0 means no hint.
	Range(ctx context.Context, persistenceID string, fromSequenceNr, toSequenceNr, minOrdering, limit int64) (EntryCursor, error)

	// PersistenceIDs opens a cursor over the distinct persistence ids in
	// the journal. Unordered.
	PersistenceIDs(ctx context.Context) (IDCursor, error)

	// MinMaxOrdering reads the summary ordering bounds for query planning.
	// ok is false when no events were ever written for the id.
	MinMaxOrdering(ctx context.Context, persistenceID string) (md Metadata, ok bool, err error)

	// RewritePayload replaces the payload and metadata of one existing row
	// in place. This is a maintenance operation (re-encryption and the
	// like); normal write and delete paths never touch stored payloads.
	RewritePayload(ctx context.Context, persistenceID string, sequenceNr int64, payload []byte, metadata json.RawMessage) error
}
