// Package journaltest provides in-memory implementations of the journal
// storage interfaces for tests.
package journaltest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/chronicle-lab/chronicle/internal/journal"
	"github.com/chronicle-lab/chronicle/internal/snapshot"
)

// MemStore is an in-memory journal.Store honoring the same invariants as
// the Postgres adapter: store-assigned global ordering, duplicate-sequence
// rejection, monotonic summary guard, deletion markers.
type MemStore struct {
	mu       sync.Mutex
	entries  []journal.Entry
	metadata map[string]journal.Metadata
	deleted  map[string]int64

	ordering int64

	// RangeCalls records the minOrdering hint of every Range call, so tests
	// can observe whether the pruned read path was taken.
	RangeCalls []int64

	// FailWith, when set, makes every operation return this error.
	FailWith error
}

func NewMemStore() *MemStore {
	return &MemStore{
		metadata: make(map[string]journal.Metadata),
		deleted:  make(map[string]int64),
	}
}

func (s *MemStore) WriteBatch(_ context.Context, entries []journal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}

	for _, e := range entries {
		for _, existing := range s.entries {
			if existing.PersistenceID == e.PersistenceID && existing.SequenceNr == e.SequenceNr {
				return fmt.Errorf("%w: (%s, %d)", journal.ErrDuplicateSequence, e.PersistenceID, e.SequenceNr)
			}
		}
	}

	staged := make([]journal.Entry, 0, len(entries))
	stagedMeta := make(map[string]journal.Metadata)
	for _, e := range entries {
		s.ordering++
		e.Ordering = s.ordering
		staged = append(staged, e)

		md, ok := stagedMeta[e.PersistenceID]
		if !ok {
			md, ok = s.metadata[e.PersistenceID]
		}
		if !ok {
			stagedMeta[e.PersistenceID] = journal.Metadata{
				MaxSequenceNr: e.SequenceNr,
				MinOrdering:   e.Ordering,
				MaxOrdering:   e.Ordering,
			}
			continue
		}
		if e.SequenceNr <= md.MaxSequenceNr {
			return fmt.Errorf("%w: %s: candidate max %d", journal.ErrMetadataRegression, e.PersistenceID, e.SequenceNr)
		}
		md.MaxSequenceNr = e.SequenceNr
		if e.Ordering < md.MinOrdering {
			md.MinOrdering = e.Ordering
		}
		if e.Ordering > md.MaxOrdering {
			md.MaxOrdering = e.Ordering
		}
		stagedMeta[e.PersistenceID] = md
	}

	s.entries = append(s.entries, staged...)
	for id, md := range stagedMeta {
		s.metadata[id] = md
	}
	return nil
}

func (s *MemStore) SoftDelete(_ context.Context, persistenceID string, toSequenceNr int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return 0, s.FailWith
	}

	var affected int64
	for i := range s.entries {
		e := &s.entries[i]
		if e.PersistenceID == persistenceID && e.SequenceNr <= toSequenceNr && !e.Deleted {
			e.Deleted = true
			affected++
		}
	}
	return affected, nil
}

func (s *MemStore) HardDelete(_ context.Context, persistenceID string, toSequenceNr int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return 0, s.FailWith
	}

	var kept []journal.Entry
	var affected, covered int64
	for _, e := range s.entries {
		if e.PersistenceID == persistenceID && e.SequenceNr <= toSequenceNr {
			affected++
			if e.SequenceNr > covered {
				covered = e.SequenceNr
			}
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	if covered > s.deleted[persistenceID] {
		s.deleted[persistenceID] = covered
	}
	return affected, nil
}

func (s *MemStore) HighestSequenceNr(_ context.Context, persistenceID string, fromSequenceNr int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return 0, s.FailWith
	}

	highest := s.deleted[persistenceID]
	for _, e := range s.entries {
		if e.PersistenceID == persistenceID && e.SequenceNr >= fromSequenceNr && e.SequenceNr > highest {
			highest = e.SequenceNr
		}
	}
	return highest, nil
}

func (s *MemStore) Range(_ context.Context, persistenceID string, fromSequenceNr, toSequenceNr, minOrdering, limit int64) (journal.EntryCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RangeCalls = append(s.RangeCalls, minOrdering)
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	var matched []journal.Entry
	for _, e := range s.entries {
		if e.PersistenceID != persistenceID || e.Deleted {
			continue
		}
		if e.SequenceNr < fromSequenceNr || e.SequenceNr > toSequenceNr {
			continue
		}
		if minOrdering > 0 && e.Ordering < minOrdering {
			continue
		}
		matched = append(matched, e)
	}
	sortEntries(matched)
	if int64(len(matched)) > limit {
		matched = matched[:limit]
	}
	return &sliceCursor{entries: matched}, nil
}

func (s *MemStore) PersistenceIDs(_ context.Context) (journal.IDCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, e := range s.entries {
		if _, ok := seen[e.PersistenceID]; ok {
			continue
		}
		seen[e.PersistenceID] = struct{}{}
		ids = append(ids, e.PersistenceID)
	}
	return &idSliceCursor{ids: ids}, nil
}

func (s *MemStore) MinMaxOrdering(_ context.Context, persistenceID string) (journal.Metadata, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return journal.Metadata{}, false, s.FailWith
	}
	md, ok := s.metadata[persistenceID]
	return md, ok, nil
}

func (s *MemStore) RewritePayload(_ context.Context, persistenceID string, sequenceNr int64, payload []byte, metadata json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	for i := range s.entries {
		e := &s.entries[i]
		if e.PersistenceID == persistenceID && e.SequenceNr == sequenceNr {
			e.Payload = payload
			e.Metadata = metadata
			return nil
		}
	}
	return fmt.Errorf("rewrite (%s, %d): no such row", persistenceID, sequenceNr)
}

// Entries returns a copy of all stored rows in insertion order.
func (s *MemStore) Entries() []journal.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]journal.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Metadata returns the summary row for the id.
func (s *MemStore) Metadata(persistenceID string) (journal.Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	md, ok := s.metadata[persistenceID]
	return md, ok
}

func sortEntries(entries []journal.Entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].SequenceNr < entries[j-1].SequenceNr; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

type sliceCursor struct {
	entries []journal.Entry
	pos     int
	closed  bool
}

func (c *sliceCursor) Next() bool {
	if c.closed || c.pos >= len(c.entries) {
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Entry() journal.Entry { return c.entries[c.pos-1] }
func (c *sliceCursor) Err() error           { return nil }
func (c *sliceCursor) Close() error         { c.closed = true; return nil }

type idSliceCursor struct {
	ids    []string
	pos    int
	closed bool
}

func (c *idSliceCursor) Next() bool {
	if c.closed || c.pos >= len(c.ids) {
		return false
	}
	c.pos++
	return true
}

func (c *idSliceCursor) ID() string  { return c.ids[c.pos-1] }
func (c *idSliceCursor) Err() error  { return nil }
func (c *idSliceCursor) Close() error { c.closed = true; return nil }

// MemTagStore is an in-memory journal.TagStore.
type MemTagStore struct {
	mu      sync.Mutex
	ids     map[string]int32
	next    int32
	Creates int

	// FailWith, when set, makes CreateOrFind return this error.
	FailWith error
}

func NewMemTagStore() *MemTagStore {
	return &MemTagStore{ids: make(map[string]int32)}
}

func (s *MemTagStore) CreateOrFind(_ context.Context, name string) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return 0, s.FailWith
	}
	if id, ok := s.ids[name]; ok {
		return id, nil
	}
	s.Creates++
	s.next++
	s.ids[name] = s.next
	return s.next, nil
}

// Len returns the number of distinct tags created.
func (s *MemTagStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// MemSnapshotStore is an in-memory snapshot.Store.
type MemSnapshotStore struct {
	mu    sync.Mutex
	snaps map[string][]snapshot.Snapshot
}

func NewMemSnapshotStore() *MemSnapshotStore {
	return &MemSnapshotStore{snaps: make(map[string][]snapshot.Snapshot)}
}

func (s *MemSnapshotStore) Save(_ context.Context, snap snapshot.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.snaps[snap.PersistenceID]
	for i := range existing {
		if existing[i].SequenceNr == snap.SequenceNr {
			existing[i] = snap
			return nil
		}
	}
	s.snaps[snap.PersistenceID] = append(existing, snap)
	return nil
}

func (s *MemSnapshotStore) Latest(_ context.Context, persistenceID string, maxSequenceNr int64) (*snapshot.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *snapshot.Snapshot
	for i := range s.snaps[persistenceID] {
		snap := s.snaps[persistenceID][i]
		if snap.SequenceNr > maxSequenceNr {
			continue
		}
		if best == nil || snap.SequenceNr > best.SequenceNr {
			best = &snap
		}
	}
	return best, nil
}

func (s *MemSnapshotStore) Delete(_ context.Context, persistenceID string, toSequenceNr int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []snapshot.Snapshot
	for _, snap := range s.snaps[persistenceID] {
		if snap.SequenceNr <= toSequenceNr {
			continue
		}
		kept = append(kept, snap)
	}
	s.snaps[persistenceID] = kept
	return nil
}
