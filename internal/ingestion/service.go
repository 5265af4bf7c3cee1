package ingestion

import (
	"context"

	"github.com/gin-gonic/gin"

	v1 "github.com/devarena-lab/project-devarena/internal/api/v1"
	"github.com/devarena-lab/project-devarena/internal/core/reward"
	"github.com/devarena-lab/project-devarena/internal/core/storage"
)

// MergeProcessor is the reward engine as the HTTP layer sees it.
type MergeProcessor interface {
	Process(ctx context.Context, evt v1.MergeEvent) (reward.Result, error)
}

type Service struct {
	processor        MergeProcessor
	store            storage.LedgerStore
	maxBodySizeBytes int
}

func NewService(processor MergeProcessor, store storage.LedgerStore, maxBodySizeMB int) *Service {
	if processor == nil {
		panic("ingestion: processor must not be nil")
	}
	if store == nil {
		panic("ingestion: store must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		processor:        processor,
		store:            store,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the merge ingestion routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/merges", s.MergeHandler)
	r.GET("/v1/developers/:developer_id/activity", s.ListActivityHandler)
}
