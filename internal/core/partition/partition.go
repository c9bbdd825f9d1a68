package partition

import "hash/fnv"

// DefaultShards is the default metadata shard count.
// Never changes after initial deployment — it's a capacity decision, not a scaling decision.
const DefaultShards = 256

// For returns the metadata shard for a given persistence ID.
// Stable and deterministic: same persistenceID always maps to the same shard.
// Uses FNV-32a (stdlib, fast, well-distributed).
func For(persistenceID string, shards int) int {
	if shards <= 0 {
		shards = DefaultShards
	}
	h := fnv.New32a()
	h.Write([]byte(persistenceID))
	return int(h.Sum32()) % shards
}
