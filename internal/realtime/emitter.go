package realtime

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/secondbrain-backend/internal/pkg/ctxutil"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

// Publisher fans a message out to every process holding SSE clients.
type Publisher interface {
	Publish(ctx context.Context, msg SSEMessage) error
}

// Emitter delivers user events. With a Publisher (the Redis bus) every
// process, this one included, receives the message through its forwarder;
// without one the local hub is used directly.
type Emitter struct {
	log *logger.Logger
	hub *SSEHub
	pub Publisher
}

func NewEmitter(log *logger.Logger, hub *SSEHub, pub Publisher) *Emitter {
	return &Emitter{log: log.With("component", "RealtimeEmitter"), hub: hub, pub: pub}
}

func (e *Emitter) Emit(ctx context.Context, userID uuid.UUID, event SSEEvent, data any) {
	if e == nil || userID == uuid.Nil {
		return
	}
	msg := SSEMessage{Channel: UserChannel(userID), Event: event, Data: data}
	if e.pub != nil {
		err := e.pub.Publish(ctxutil.Default(ctx), msg)
		if err == nil {
			return
		}
		e.log.Warn("realtime publish failed; delivering locally", "event", event, "error", err)
	}
	if e.hub != nil {
		e.hub.Broadcast(msg)
	}
}
