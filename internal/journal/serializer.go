package journal

import (
	"encoding/json"
	"fmt"
)

// PersistentEvent is one domain event presented for writing. Event is opaque
// to the journal; only the serializer understands its shape.
type PersistentEvent struct {
	PersistenceID string
	SequenceNr    int64
	Event         any
}

// Serializer is the caller-owned boundary between domain events and stored
// rows. The journal never interprets payload bytes or metadata shape.
type Serializer interface {
	// Serialize converts a domain event into payload bytes, the tag names to
	// index it under, and an opaque JSON metadata document.
	Serialize(event any) (payload []byte, tags []string, metadata json.RawMessage, err error)

	// Deserialize reconstructs the domain event from stored payload and
	// metadata.
	Deserialize(payload []byte, metadata json.RawMessage) (any, error)
}

// TaggedBlob is the pass-through event shape used by callers that do their
// own encoding upstream: payload bytes plus tag names plus metadata.
type TaggedBlob struct {
	Payload  []byte
	Tags     []string
	Metadata json.RawMessage
}

// BlobSerializer passes TaggedBlob events through unchanged. It is the
// default serializer for the HTTP surface, which receives already-encoded
// payloads.
type BlobSerializer struct{}

func (BlobSerializer) Serialize(event any) ([]byte, []string, json.RawMessage, error) {
	blob, ok := event.(TaggedBlob)
	if !ok {
		return nil, nil, nil, fmt.Errorf("blob serializer: unsupported event type %T", event)
	}
	meta := blob.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	return blob.Payload, blob.Tags, meta, nil
}

func (BlobSerializer) Deserialize(payload []byte, metadata json.RawMessage) (any, error) {
	return TaggedBlob{Payload: payload, Metadata: metadata}, nil
}
