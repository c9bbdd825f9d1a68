package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	v1 "github.com/chronicle-lab/chronicle/internal/api/v1"
	httperr "github.com/chronicle-lab/chronicle/internal/core/errors"
	"github.com/chronicle-lab/chronicle/internal/journal"
)

const (
	msgReadBodyFailed    = "Failed to read request body"
	msgInvalidJSON       = "Invalid JSON body"
	msgWriteFailed       = "Failed to write events"
	msgDuplicateSequence = "Sequence number already written"
	msgDeleteFailed      = "Failed to delete events"
	msgRewriteFailed     = "Failed to rewrite payload"
)

// apiError carries the structured HTTP error shape from a helper back to the
// handler. Helpers return this instead of writing to gin.Context directly,
// keeping them decoupled from HTTP.
type apiError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *apiError) Error() string {
	return e.message
}

// WriteHandler handles POST /v1/journal/:persistence_id/events.
func (s *Service) WriteHandler(c *gin.Context) {
	persistenceID := c.Param("persistence_id")

	req, payloadSize, err := s.parseWriteRequest(c)
	if err != nil {
		writeError(c, err)
		return
	}

	slog.Info("Received write batch",
		"persistence_id", persistenceID,
		"events", len(req.Events),
		"payload_size", payloadSize)

	events := make([]journal.PersistentEvent, 0, len(req.Events))
	for _, ev := range req.Events {
		events = append(events, journal.PersistentEvent{
			PersistenceID: persistenceID,
			SequenceNr:    ev.SequenceNr,
			Event: journal.TaggedBlob{
				Payload:  ev.Payload,
				Tags:     ev.Tags,
				Metadata: ev.Metadata,
			},
		})
	}

	if err := s.dao.Write(c.Request.Context(), events); err != nil {
		writeError(c, mapWriteError(persistenceID, err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "written", "events": len(events)})
}

// parseWriteRequest reads the raw request body and binds it into a
// WriteRequest. Returns the parsed batch and the raw payload size (used for
// structured logging upstream).
func (s *Service) parseWriteRequest(c *gin.Context) (*v1.WriteRequest, int, *apiError) {
	// Enforce maximum body size to prevent OOM attacks
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return nil, 0, &apiError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, len(bodyBytes), &apiError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var req v1.WriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, len(bodyBytes), &apiError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}

	if err := req.Validate(); err != nil {
		slog.Warn("Batch validation failed", "error", err)
		return nil, len(bodyBytes), &apiError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    err.Error(),
		}
	}

	return &req, len(bodyBytes), nil
}

// mapWriteError converts a DAO write failure into the HTTP error shape.
func mapWriteError(persistenceID string, err error) *apiError {
	switch {
	case errors.Is(err, journal.ErrDuplicateSequence):
		slog.Info("Duplicate sequence number rejected", "persistence_id", persistenceID, "error", err)
		return &apiError{
			statusCode: http.StatusConflict,
			errorType:  httperr.HttpDuplicateSequenceError,
			message:    msgDuplicateSequence,
		}
	case errors.Is(err, journal.ErrBatchTooLarge):
		return &apiError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpBatchTooLargeError,
			message:    err.Error(),
		}
	case errors.Is(err, journal.ErrTagResolution):
		slog.Error("Tag resolution failed", "persistence_id", persistenceID, "error", err)
		return &apiError{
			statusCode: http.StatusServiceUnavailable,
			errorType:  httperr.HttpTagResolutionError,
			message:    err.Error(),
		}
	default:
		slog.Error("Failed to write events", "persistence_id", persistenceID, "error", err)
		return &apiError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgWriteFailed,
		}
	}
}

// DeleteHandler handles DELETE /v1/journal/:persistence_id?to_sequence_nr=N.
func (s *Service) DeleteHandler(c *gin.Context) {
	persistenceID := c.Param("persistence_id")

	toSequenceNr, apiErr := parseInt64Query(c, "to_sequence_nr", 0, true)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	if err := s.dao.Delete(c.Request.Context(), persistenceID, toSequenceNr); err != nil {
		slog.Error("Failed to delete events", "persistence_id", persistenceID, "error", err)
		writeError(c, &apiError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgDeleteFailed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "to_sequence_nr": toSequenceNr})
}

// RewritePayloadHandler handles the maintenance path
// PUT /v1/journal/:persistence_id/events/:sequence_nr/payload.
func (s *Service) RewritePayloadHandler(c *gin.Context) {
	persistenceID := c.Param("persistence_id")

	sequenceNr, err := strconv.ParseInt(c.Param("sequence_nr"), 10, 64)
	if err != nil || sequenceNr <= 0 {
		writeError(c, &apiError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "sequence_nr must be a positive integer",
		})
		return
	}

	var req v1.PayloadRewrite
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, &apiError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		})
		return
	}

	rewriteErr := s.dao.RewritePayload(c.Request.Context(), persistenceID, sequenceNr, journal.TaggedBlob{
		Payload:  req.Payload,
		Metadata: req.Metadata,
	})
	if rewriteErr != nil {
		slog.Error("Failed to rewrite payload",
			"persistence_id", persistenceID,
			"sequence_nr", sequenceNr,
			"error", rewriteErr)
		writeError(c, &apiError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgRewriteFailed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "rewritten"})
}

// parseInt64Query reads an int64 query parameter. A required parameter that
// is absent, or any non-integer value, yields a 400.
func parseInt64Query(c *gin.Context, name string, fallback int64, required bool) (int64, *apiError) {
	raw, ok := c.GetQuery(name)
	if !ok {
		if required {
			return 0, &apiError{
				statusCode: http.StatusBadRequest,
				errorType:  httperr.HttpInvalidJsonError,
				message:    name + " query parameter is required",
			}
		}
		return fallback, nil
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &apiError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    name + " must be an integer",
		}
	}
	return value, nil
}

// writeError serializes an apiError as the JSON HTTP response.
func writeError(c *gin.Context, err *apiError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
