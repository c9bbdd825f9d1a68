package journal

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
)

// DeletePolicy selects what Delete does to covered rows.
type DeletePolicy string

const (
	// DeleteSoft tombstones rows, keeping them visible to downstream tag and
	// ordering consumers.
	DeleteSoft DeletePolicy = "soft"
	// DeleteHard physically removes rows, recording the highest removed
	// sequence number in the deletion marker.
	DeleteHard DeletePolicy = "hard"
)

// DecodePolicy selects how a message stream reacts to a row the serializer
// cannot decode.
type DecodePolicy string

const (
	// DecodeFail terminates the stream with the decode error.
	DecodeFail DecodePolicy = "fail"
	// DecodeSkip delivers the failure on the element and continues.
	DecodeSkip DecodePolicy = "skip"
)

// Options is the DAO-level configuration surface.
type Options struct {
	DeletePolicy DeletePolicy
	DecodePolicy DecodePolicy
	// PruneReads enables the metadata-assisted read path: range reads are
	// bounded below by the id's minimum ordering token so a partitioned
	// backend can skip segments that cannot contain matches.
	PruneReads bool
	// MaxBatchSize caps a single write batch. 0 means no cap.
	MaxBatchSize int
}

// Dao orchestrates the store, the tag resolver and the serializer boundary
// into the journal contract surface: atomic batched writes, policy-driven
// deletion, highest-sequence-number lookup, bounded message streams and
// persistence id discovery.
type Dao struct {
	store Store
	tags  *TagResolver
	ser   Serializer
	opts  Options
}

func NewDao(store Store, tags *TagResolver, ser Serializer, opts Options) *Dao {
	if store == nil {
		panic("journal: store must not be nil")
	}
	if tags == nil {
		panic("journal: tag resolver must not be nil")
	}
	if ser == nil {
		panic("journal: serializer must not be nil")
	}
	if opts.DeletePolicy == "" {
		opts.DeletePolicy = DeleteSoft
	}
	if opts.DecodePolicy == "" {
		opts.DecodePolicy = DecodeFail
	}
	return &Dao{store: store, tags: tags, ser: ser, opts: opts}
}

// Write persists the batch atomically: every event durable and reflected in
// the summary table, or none. Events are sorted by sequence number before
// submission; tags are resolved up front so a tag store outage fails the
// batch before anything is written.
func (d *Dao) Write(ctx context.Context, events []PersistentEvent) error {
	if len(events) == 0 {
		return nil
	}
	if d.opts.MaxBatchSize > 0 && len(events) > d.opts.MaxBatchSize {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(events), d.opts.MaxBatchSize)
	}

	sorted := make([]PersistentEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].PersistenceID != sorted[j].PersistenceID {
			return sorted[i].PersistenceID < sorted[j].PersistenceID
		}
		return sorted[i].SequenceNr < sorted[j].SequenceNr
	})

	entries := make([]Entry, 0, len(sorted))
	for _, ev := range sorted {
		payload, tagNames, metadata, err := d.ser.Serialize(ev.Event)
		if err != nil {
			return fmt.Errorf("serialize %s seq %d: %w", ev.PersistenceID, ev.SequenceNr, err)
		}

		tagIDs, err := d.tags.ResolveAll(ctx, tagNames)
		if err != nil {
			return err
		}

		entries = append(entries, Entry{
			PersistenceID: ev.PersistenceID,
			SequenceNr:    ev.SequenceNr,
			Payload:       payload,
			TagIDs:        tagIDs,
			Metadata:      metadata,
		})
	}

	if err := d.store.WriteBatch(ctx, entries); err != nil {
		return err
	}

	slog.Debug("[Journal] Wrote batch", "events", len(entries))
	return nil
}

// Delete removes events up to toSequenceNr inclusive, soft or hard per the
// configured policy. Idempotent: a repeat call affects 0 rows and succeeds.
func (d *Dao) Delete(ctx context.Context, persistenceID string, toSequenceNr int64) error {
	highest, err := d.store.HighestSequenceNr(ctx, persistenceID, 0)
	if err != nil {
		return fmt.Errorf("delete %s: read highest sequence nr: %w", persistenceID, err)
	}

	var affected int64
	switch d.opts.DeletePolicy {
	case DeleteHard:
		affected, err = d.store.HardDelete(ctx, persistenceID, toSequenceNr)
	default:
		affected, err = d.store.SoftDelete(ctx, persistenceID, toSequenceNr)
	}
	if err != nil {
		return err
	}

	slog.Info("[Journal] Deleted events",
		"persistence_id", persistenceID,
		"to_sequence_nr", toSequenceNr,
		"highest_before", highest,
		"policy", d.opts.DeletePolicy,
		"rows", affected)
	return nil
}

// HighestSequenceNr returns the highest known sequence number at or above
// fromSequenceNr, or 0 when the id was never written. Under the hard-delete
// policy the deletion marker keeps the answer correct after all rows for the
// id were physically removed.
func (d *Dao) HighestSequenceNr(ctx context.Context, persistenceID string, fromSequenceNr int64) (int64, error) {
	return d.store.HighestSequenceNr(ctx, persistenceID, fromSequenceNr)
}

// Messages opens a lazy, finite, restartable stream of decoded events for
// one persistence id, bounded by [fromSequenceNr, toSequenceNr] and capped
// at max (max <= 0 means no cap). When read pruning is enabled and summary
// metadata exists for the id, the scan is bounded below by the id's minimum
// ordering token; absent metadata falls back to the unbounded query.
func (d *Dao) Messages(ctx context.Context, persistenceID string, fromSequenceNr, toSequenceNr, max int64) (*MessageStream, error) {
	if max <= 0 {
		max = math.MaxInt64
	}

	var minOrdering int64
	if d.opts.PruneReads {
		md, ok, err := d.store.MinMaxOrdering(ctx, persistenceID)
		if err != nil {
			return nil, fmt.Errorf("messages %s: read ordering bounds: %w", persistenceID, err)
		}
		if ok {
			minOrdering = md.MinOrdering
		}
	}

	cursor, err := d.store.Range(ctx, persistenceID, fromSequenceNr, toSequenceNr, minOrdering, max)
	if err != nil {
		return nil, err
	}
	return newMessageStream(cursor, d.ser, d.opts.DecodePolicy), nil
}

// AllPersistenceIDs returns the set of distinct persistence ids, fully
// materialized.
func (d *Dao) AllPersistenceIDs(ctx context.Context) ([]string, error) {
	cursor, err := d.store.PersistenceIDs(ctx)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var ids []string
	for cursor.Next() {
		ids = append(ids, cursor.ID())
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// AllPersistenceIDsStream returns a pull-based cursor over distinct
// persistence ids without buffering the full result.
func (d *Dao) AllPersistenceIDsStream(ctx context.Context) (IDCursor, error) {
	return d.store.PersistenceIDs(ctx)
}

// RewritePayload replaces one stored row's payload and metadata in place.
// Maintenance only (re-encryption and the like); the normal write and delete
// paths never rewrite stored rows.
func (d *Dao) RewritePayload(ctx context.Context, persistenceID string, sequenceNr int64, event any) error {
	payload, _, metadata, err := d.ser.Serialize(event)
	if err != nil {
		return fmt.Errorf("serialize rewrite %s seq %d: %w", persistenceID, sequenceNr, err)
	}
	if err := d.store.RewritePayload(ctx, persistenceID, sequenceNr, payload, metadata); err != nil {
		return err
	}
	slog.Info("[Journal] Rewrote payload", "persistence_id", persistenceID, "sequence_nr", sequenceNr)
	return nil
}
