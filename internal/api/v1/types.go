package v1

import (
	"encoding/json"
	"fmt"
)

// EventWrite is one event in a write batch. The payload is opaque to the
// journal: clients encode it upstream and it is stored byte for byte
// (base64 on the wire, per encoding/json's []byte convention).
type EventWrite struct {
	// SequenceNr is the per-entity, strictly positive event index. The
	// caller owns sequence assignment; the journal only enforces uniqueness.
	SequenceNr int64 `json:"sequence_nr"`

	// Payload is the opaque event body.
	Payload []byte `json:"payload"`

	// Tags are free-text labels for cross-entity subscription filtering.
	Tags []string `json:"tags,omitempty"`

	// Metadata is a caller-defined JSON document stored pass-through; the
	// journal never interprets its shape.
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// WriteRequest is the body of a journal write batch. The batch is atomic:
// either every event is durable or none are.
type WriteRequest struct {
	Events []EventWrite `json:"events"`
}

// Validate ensures the batch shape is acceptable before it reaches the DAO.
func (r *WriteRequest) Validate() error {
	if len(r.Events) == 0 {
		return fmt.Errorf("events must not be empty")
	}
	for i, ev := range r.Events {
		if ev.SequenceNr <= 0 {
			return fmt.Errorf("events[%d].sequence_nr must be > 0", i)
		}
		for j, tag := range ev.Tags {
			if tag == "" {
				return fmt.Errorf("events[%d].tags[%d] must not be empty", i, j)
			}
		}
	}
	return nil
}

// Message is one element of a message stream response (NDJSON line). Error
// is set instead of Payload/Metadata when the stored row could not be
// decoded and the journal runs under the skip policy.
type Message struct {
	PersistenceID string          `json:"persistence_id"`
	SequenceNr    int64           `json:"sequence_nr"`
	Ordering      int64           `json:"ordering,omitempty"`
	Payload       []byte          `json:"payload,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// StreamError is the terminal NDJSON line of a failed stream.
type StreamError struct {
	Error string `json:"error"`
}

// HighestSequenceNrResponse is the body of a highest-sequence-number lookup.
type HighestSequenceNrResponse struct {
	PersistenceID     string `json:"persistence_id"`
	HighestSequenceNr int64  `json:"highest_sequence_nr"`
}

// SnapshotWrite is the body of a snapshot save.
type SnapshotWrite struct {
	SequenceNr int64           `json:"sequence_nr"`
	Payload    []byte          `json:"payload"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

func (s *SnapshotWrite) Validate() error {
	if s.SequenceNr <= 0 {
		return fmt.Errorf("sequence_nr must be > 0")
	}
	return nil
}

// SnapshotResponse is the body of a snapshot load.
type SnapshotResponse struct {
	PersistenceID string          `json:"persistence_id"`
	SequenceNr    int64           `json:"sequence_nr"`
	CreatedAt     int64           `json:"created_at"`
	Payload       []byte          `json:"payload"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// PayloadRewrite is the body of the maintenance payload rewrite.
type PayloadRewrite struct {
	Payload  []byte          `json:"payload"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}
