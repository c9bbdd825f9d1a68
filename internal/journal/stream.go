package journal

// Message is one decoded element of a message stream. When the stream runs
// under DecodeSkip, a row the serializer rejected is delivered with Err set
// and a nil Event, and the stream continues past it.
type Message struct {
	PersistenceID string
	SequenceNr    int64
	Ordering      int64
	Event         any
	Err           error
}

// MessageStream is a lazy, finite, pull-based stream of decoded events. It
// owns the underlying row cursor and releases it on every exit path: normal
// exhaustion, terminal failure, and early abandonment via Close.
type MessageStream struct {
	cursor EntryCursor
	ser    Serializer
	policy DecodePolicy

	cur    Message
	err    error
	closed bool
}

func newMessageStream(cursor EntryCursor, ser Serializer, policy DecodePolicy) *MessageStream {
	return &MessageStream{cursor: cursor, ser: ser, policy: policy}
}

// Next advances to the next message. It returns false when the stream is
// exhausted or failed terminally; check Err afterwards.
func (s *MessageStream) Next() bool {
	if s.closed || s.err != nil {
		return false
	}

	for s.cursor.Next() {
		entry := s.cursor.Entry()

		event, err := s.ser.Deserialize(entry.Payload, entry.Metadata)
		if err != nil {
			decodeErr := &DecodeError{
				PersistenceID: entry.PersistenceID,
				SequenceNr:    entry.SequenceNr,
				Err:           err,
			}
			if s.policy == DecodeSkip {
				s.cur = Message{
					PersistenceID: entry.PersistenceID,
					SequenceNr:    entry.SequenceNr,
					Ordering:      entry.Ordering,
					Err:           decodeErr,
				}
				return true
			}
			s.err = decodeErr
			s.release()
			return false
		}

		s.cur = Message{
			PersistenceID: entry.PersistenceID,
			SequenceNr:    entry.SequenceNr,
			Ordering:      entry.Ordering,
			Event:         event,
		}
		return true
	}

	s.err = s.cursor.Err()
	s.release()
	return false
}

// Message returns the current element. Only valid after Next returned true.
func (s *MessageStream) Message() Message { return s.cur }

// Err returns the terminal stream error, if any. Per-element decode failures
// under DecodeSkip are reported on the Message instead.
func (s *MessageStream) Err() error { return s.err }

// Close releases the underlying cursor. Safe to call more than once.
func (s *MessageStream) Close() error {
	if s.closed {
		return nil
	}
	return s.release()
}

func (s *MessageStream) release() error {
	s.closed = true
	return s.cursor.Close()
}
