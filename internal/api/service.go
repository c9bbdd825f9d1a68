package api

import (
	"github.com/gin-gonic/gin"

	"github.com/chronicle-lab/chronicle/internal/journal"
	"github.com/chronicle-lab/chronicle/internal/snapshot"
)

// Service exposes the journal contract surface over HTTP: batched writes,
// deletion, highest-sequence-number lookup, message and persistence id
// streams, snapshots, and the maintenance payload rewrite.
type Service struct {
	dao              *journal.Dao
	snapshots        snapshot.Store
	maxBodySizeBytes int
}

func NewService(dao *journal.Dao, snapshots snapshot.Store, maxBodySizeMB int) *Service {
	if dao == nil {
		panic("api: dao must not be nil")
	}
	if snapshots == nil {
		panic("api: snapshot store must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		dao:              dao,
		snapshots:        snapshots,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the journal API routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/journal/:persistence_id/events", s.WriteHandler)
	r.DELETE("/v1/journal/:persistence_id", s.DeleteHandler)
	r.GET("/v1/journal/:persistence_id/highest-sequence-nr", s.HighestSequenceNrHandler)
	r.GET("/v1/journal/:persistence_id/messages", s.MessagesHandler)

	// Maintenance path; never part of normal writes.
	r.PUT("/v1/journal/:persistence_id/events/:sequence_nr/payload", s.RewritePayloadHandler)

	r.GET("/v1/persistence-ids", s.PersistenceIDsHandler)
	r.GET("/v1/persistence-ids/stream", s.PersistenceIDsStreamHandler)

	r.POST("/v1/snapshots/:persistence_id", s.SaveSnapshotHandler)
	r.GET("/v1/snapshots/:persistence_id", s.LoadSnapshotHandler)
	r.DELETE("/v1/snapshots/:persistence_id", s.DeleteSnapshotsHandler)
}
