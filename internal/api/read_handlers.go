package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/chronicle-lab/chronicle/internal/api/v1"
	httperr "github.com/chronicle-lab/chronicle/internal/core/errors"
	"github.com/chronicle-lab/chronicle/internal/journal"
)

const ndjsonContentType = "application/x-ndjson"

// HighestSequenceNrHandler handles
// GET /v1/journal/:persistence_id/highest-sequence-nr?from_sequence_nr=N.
func (s *Service) HighestSequenceNrHandler(c *gin.Context) {
	persistenceID := c.Param("persistence_id")

	fromSequenceNr, apiErr := parseInt64Query(c, "from_sequence_nr", 0, false)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	highest, err := s.dao.HighestSequenceNr(c.Request.Context(), persistenceID, fromSequenceNr)
	if err != nil {
		slog.Error("Failed to read highest sequence nr", "persistence_id", persistenceID, "error", err)
		writeError(c, &apiError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Failed to read highest sequence number",
		})
		return
	}

	c.JSON(http.StatusOK, v1.HighestSequenceNrResponse{
		PersistenceID:     persistenceID,
		HighestSequenceNr: highest,
	})
}

// MessagesHandler handles GET /v1/journal/:persistence_id/messages?from=&to=&max=.
// The response is an NDJSON stream: one Message per line, and on terminal
// stream failure a final StreamError line, never a silent close.
func (s *Service) MessagesHandler(c *gin.Context) {
	persistenceID := c.Param("persistence_id")

	from, apiErr := parseInt64Query(c, "from", 1, false)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	to, apiErr := parseInt64Query(c, "to", math.MaxInt64, false)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	max, apiErr := parseInt64Query(c, "max", 0, false)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	stream, err := s.dao.Messages(c.Request.Context(), persistenceID, from, to, max)
	if err != nil {
		slog.Error("Failed to open message stream", "persistence_id", persistenceID, "error", err)
		writeError(c, &apiError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Failed to open message stream",
		})
		return
	}
	defer stream.Close()

	c.Header("Content-Type", ndjsonContentType)
	c.Status(http.StatusOK)

	enc := json.NewEncoder(c.Writer)
	for stream.Next() {
		msg := stream.Message()

		line := v1.Message{
			PersistenceID: msg.PersistenceID,
			SequenceNr:    msg.SequenceNr,
			Ordering:      msg.Ordering,
		}
		if msg.Err != nil {
			line.Error = msg.Err.Error()
		} else if blob, ok := msg.Event.(journal.TaggedBlob); ok {
			line.Payload = blob.Payload
			line.Metadata = blob.Metadata
		} else {
			line.Error = fmt.Sprintf("unexpected event type %T", msg.Event)
		}

		if err := enc.Encode(line); err != nil {
			// Client went away; the deferred Close releases the cursor.
			slog.Debug("Message stream consumer gone", "persistence_id", persistenceID, "error", err)
			return
		}
		c.Writer.Flush()
	}

	if err := stream.Err(); err != nil {
		slog.Error("Message stream failed", "persistence_id", persistenceID, "error", err)
		enc.Encode(v1.StreamError{Error: err.Error()}) //nolint:errcheck
	}
	c.Writer.Flush()
}

// PersistenceIDsHandler handles GET /v1/persistence-ids: the fully
// materialized set form.
func (s *Service) PersistenceIDsHandler(c *gin.Context) {
	ids, err := s.dao.AllPersistenceIDs(c.Request.Context())
	if err != nil {
		slog.Error("Failed to list persistence ids", "error", err)
		writeError(c, &apiError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Failed to list persistence ids",
		})
		return
	}
	if ids == nil {
		ids = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"persistence_ids": ids})
}

// PersistenceIDsStreamHandler handles GET /v1/persistence-ids/stream: the
// pull-based NDJSON form, one id per line, nothing buffered.
func (s *Service) PersistenceIDsStreamHandler(c *gin.Context) {
	cursor, err := s.dao.AllPersistenceIDsStream(c.Request.Context())
	if err != nil {
		slog.Error("Failed to open persistence id stream", "error", err)
		writeError(c, &apiError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Failed to open persistence id stream",
		})
		return
	}
	defer cursor.Close()

	c.Header("Content-Type", ndjsonContentType)
	c.Status(http.StatusOK)

	enc := json.NewEncoder(c.Writer)
	for cursor.Next() {
		if err := enc.Encode(gin.H{"persistence_id": cursor.ID()}); err != nil {
			slog.Debug("Persistence id stream consumer gone", "error", err)
			return
		}
		c.Writer.Flush()
	}

	if err := cursor.Err(); err != nil {
		slog.Error("Persistence id stream failed", "error", err)
		enc.Encode(v1.StreamError{Error: err.Error()}) //nolint:errcheck
	}
	c.Writer.Flush()
}
