package api

import (
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	v1 "github.com/chronicle-lab/chronicle/internal/api/v1"
	httperr "github.com/chronicle-lab/chronicle/internal/core/errors"
	"github.com/chronicle-lab/chronicle/internal/snapshot"
)

// SaveSnapshotHandler handles POST /v1/snapshots/:persistence_id.
func (s *Service) SaveSnapshotHandler(c *gin.Context) {
	persistenceID := c.Param("persistence_id")

	var req v1.SnapshotWrite
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, &apiError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		})
		return
	}
	if err := req.Validate(); err != nil {
		writeError(c, &apiError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    err.Error(),
		})
		return
	}

	err := s.snapshots.Save(c.Request.Context(), snapshot.Snapshot{
		PersistenceID: persistenceID,
		SequenceNr:    req.SequenceNr,
		CreatedAt:     time.Now().UTC().UnixMilli(),
		Payload:       req.Payload,
		Metadata:      req.Metadata,
	})
	if err != nil {
		slog.Error("Failed to save snapshot", "persistence_id", persistenceID, "error", err)
		writeError(c, &apiError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Failed to save snapshot",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "saved"})
}

// LoadSnapshotHandler handles GET /v1/snapshots/:persistence_id?max_sequence_nr=N.
// Returns the newest snapshot at or below the bound, 404 when none exists.
func (s *Service) LoadSnapshotHandler(c *gin.Context) {
	persistenceID := c.Param("persistence_id")

	maxSequenceNr, apiErr := parseInt64Query(c, "max_sequence_nr", math.MaxInt64, false)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	snap, err := s.snapshots.Latest(c.Request.Context(), persistenceID, maxSequenceNr)
	if err != nil {
		slog.Error("Failed to load snapshot", "persistence_id", persistenceID, "error", err)
		writeError(c, &apiError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Failed to load snapshot",
		})
		return
	}
	if snap == nil {
		writeError(c, &apiError{
			statusCode: http.StatusNotFound,
			errorType:  httperr.HttpNotFoundError,
			message:    "No snapshot found",
		})
		return
	}

	c.JSON(http.StatusOK, v1.SnapshotResponse{
		PersistenceID: snap.PersistenceID,
		SequenceNr:    snap.SequenceNr,
		CreatedAt:     snap.CreatedAt,
		Payload:       snap.Payload,
		Metadata:      snap.Metadata,
	})
}

// DeleteSnapshotsHandler handles DELETE /v1/snapshots/:persistence_id?to_sequence_nr=N.
func (s *Service) DeleteSnapshotsHandler(c *gin.Context) {
	persistenceID := c.Param("persistence_id")

	toSequenceNr, apiErr := parseInt64Query(c, "to_sequence_nr", 0, true)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	if err := s.snapshots.Delete(c.Request.Context(), persistenceID, toSequenceNr); err != nil {
		slog.Error("Failed to delete snapshots", "persistence_id", persistenceID, "error", err)
		writeError(c, &apiError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Failed to delete snapshots",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "to_sequence_nr": toSequenceNr})
}
