package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// TagStore is the persisted tag name to id table. CreateOrFind must be an
// atomic insert-if-absent against the uniqueness constraint on name: on
// conflict it re-reads and returns the winning id rather than erroring.
type TagStore interface {
	CreateOrFind(ctx context.Context, name string) (int32, error)
}

// TagResolver maps free-text tag names to compact integer ids. The cache is
// process-wide, unbounded and append-only: tag identity is immutable once
// created, so entries are never evicted or invalidated. Concurrent first
// resolutions of the same name are collapsed into one store round trip.
type TagResolver struct {
	store TagStore
	cache sync.Map // name -> int32
	group singleflight.Group
}

func NewTagResolver(store TagStore) *TagResolver {
	if store == nil {
		panic("journal: tag store must not be nil")
	}
	return &TagResolver{store: store}
}

// Resolve returns the one id permanently associated with name, creating the
// tag row on first sight. Store unavailability surfaces as ErrTagResolution;
// a fabricated id is never returned.
func (r *TagResolver) Resolve(ctx context.Context, name string) (int32, error) {
	if cached, ok := r.cache.Load(name); ok {
		return cached.(int32), nil
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		// Re-check under the flight: a racing caller may have populated the
		// cache between the miss above and winning the flight.
		if cached, ok := r.cache.Load(name); ok {
			return cached.(int32), nil
		}

		id, err := r.store.CreateOrFind(ctx, name)
		if err != nil {
			return int32(0), err
		}

		r.cache.Store(name, id)
		slog.Debug("[Tags] Resolved tag", "name", name, "id", id)
		return id, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrTagResolution, name, err)
	}
	return v.(int32), nil
}

// ResolveAll resolves every name in order, deduplicating the returned ids.
func (r *TagResolver) ResolveAll(ctx context.Context, names []string) ([]int32, error) {
	if len(names) == 0 {
		return nil, nil
	}

	ids := make([]int32, 0, len(names))
	seen := make(map[int32]struct{}, len(names))
	for _, name := range names {
		id, err := r.Resolve(ctx, name)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
