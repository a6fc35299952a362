package item_process

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/ingestion/pipeline"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

// Processor is satisfied by *pipeline.Pipeline.
type Processor interface {
	ProcessItem(ctx context.Context, itemID uuid.UUID) (*pipeline.Result, error)
}

type Pipeline struct {
	log  *logger.Logger
	proc Processor
}

func New(baseLog *logger.Logger, proc Processor) *Pipeline {
	return &Pipeline{
		log:  baseLog.With("job", types.JobTypeItemProcess),
		proc: proc,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeItemProcess }
