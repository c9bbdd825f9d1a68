package journal

import (
	"errors"
	"fmt"
)

// ErrDuplicateSequence is returned when a write hits an existing
// (persistence id, sequence number) pair. It implies an ordering bug in the
// caller, so it is never retried here.
var ErrDuplicateSequence = errors.New("journal: duplicate sequence number")

// ErrMetadataRegression is returned when a summary update would lower a
// stored max sequence number. The enclosing transaction rolls back entirely.
var ErrMetadataRegression = errors.New("journal: metadata max sequence number regression")

// ErrTagResolution is returned when the tag store is unreachable while
// resolving a tag name. The write batch carrying the tag fails as a whole.
var ErrTagResolution = errors.New("journal: tag resolution failed")

// ErrBatchTooLarge is returned when a write batch exceeds the configured cap.
var ErrBatchTooLarge = errors.New("journal: batch exceeds max batch size")

// ErrUnsortedBatch is returned when a batch is not sorted by sequence number
// ascending for a persistence id.
var ErrUnsortedBatch = errors.New("journal: batch not sorted by sequence number")

// DecodeError reports one stored row the serializer could not decode. It is
// surfaced per element on the message stream, not as a batch failure.
type DecodeError struct {
	PersistenceID string
	SequenceNr    int64
	Err           error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("journal: decode %s seq %d: %v", e.PersistenceID, e.SequenceNr, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
