package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Envelope wraps an inbound event with its tenant scope for transport
type Envelope struct {
	TenantID     uuid.UUID `json:"tenant_id"`
	Jurisdiction string    `json:"jurisdiction"`
	Event        Event     `json:"event"`
}

// Queue yields raw inbound messages. Pop returns (nil, nil) when no message
// arrived within the poll timeout.
type Queue interface {
	Pop(ctx context.Context) ([]byte, error)
}

// Consumer drains the inbound queue and feeds the processor. Idempotency on
// event ID makes redelivery after a crash safe.
type Consumer struct {
	queue     Queue
	processor *Processor
	logger    *zap.Logger
}

const popErrorBackoff = time.Second

// NewConsumer creates the lifecycle queue consumer
func NewConsumer(queue Queue, processor *Processor, logger *zap.Logger) *Consumer {
	return &Consumer{queue: queue, processor: processor, logger: logger}
}

// Run consumes events until the context is cancelled. Undecodable messages
// and failed events are logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		raw, err := c.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("queue pop failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(popErrorBackoff):
			}
			continue
		}
		if raw == nil {
			continue
		}
		c.handle(ctx, raw)
	}
}

func (c *Consumer) handle(ctx context.Context, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Error("dropping undecodable lifecycle message", zap.Error(err))
		return
	}
	rctx, err := values.NewRequestContext(env.TenantID, env.Jurisdiction)
	if err != nil {
		c.logger.Error("dropping lifecycle message with invalid scope", zap.Error(err))
		return
	}
	if err := c.processor.Handle(ctx, rctx, env.Event); err != nil {
		c.logger.Error("lifecycle event failed",
			zap.String("event_id", env.Event.EventID.String()),
			zap.String("event_type", string(env.Event.Type)),
			zap.Error(err))
	}
}
