package lifecycle_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	screeningdomain "github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/service/lifecycle"
	"github.com/clearvet/screening-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type channelQueue struct {
	messages chan []byte
}

func (q *channelQueue) Pop(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case raw := <-q.messages:
		return raw, nil
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

type countingVigilance struct {
	reevaluated atomic.Int32
	cancelled   atomic.Int32
	resumed     atomic.Int32
}

func (v *countingVigilance) Reevaluate(context.Context, values.RequestContext, uuid.UUID, screeningdomain.RoleCategory) error {
	v.reevaluated.Add(1)
	return nil
}

func (v *countingVigilance) Cancel(context.Context, values.RequestContext, uuid.UUID) error {
	v.cancelled.Add(1)
	return nil
}

func (v *countingVigilance) Resume(context.Context, values.RequestContext, uuid.UUID, screeningdomain.RoleCategory) error {
	v.resumed.Add(1)
	return nil
}

func newConsumerFixture(t *testing.T) (*lifecycle.Consumer, *channelQueue, *countingVigilance, values.RequestContext) {
	t.Helper()
	rctx, err := values.NewRequestContext(uuid.New(), "US-CA")
	require.NoError(t, err)

	vigilance := &countingVigilance{}
	auditLog, _ := testutil.NewAuditLogger()
	proc := lifecycle.NewProcessor(&stubScreener{}, vigilance,
		&memProcessed{seen: make(map[uuid.UUID]bool)},
		&memIntakes{intakes: make(map[string]*lifecycle.Intake)},
		auditLog, zap.NewNop())

	queue := &channelQueue{messages: make(chan []byte, 4)}
	return lifecycle.NewConsumer(queue, proc, zap.NewNop()), queue, vigilance, rctx
}

func encode(t *testing.T, env lifecycle.Envelope) []byte {
	t.Helper()
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

func TestConsumerProcessesQueuedEvents(t *testing.T) {
	consumer, queue, vigilance, rctx := newConsumerFixture(t)

	queue.messages <- encode(t, lifecycle.Envelope{
		TenantID:     rctx.TenantID(),
		Jurisdiction: "US-CA",
		Event: lifecycle.Event{
			EventID:    uuid.New(),
			Type:       lifecycle.EventEmployeeTerminated,
			SubjectKey: "emp-9",
			EntityID:   uuid.New(),
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool {
		return vigilance.cancelled.Load() == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestConsumerSkipsUndecodableMessages(t *testing.T) {
	consumer, queue, vigilance, rctx := newConsumerFixture(t)

	queue.messages <- []byte("not json")
	queue.messages <- encode(t, lifecycle.Envelope{
		TenantID:     rctx.TenantID(),
		Jurisdiction: "US-CA",
		Event: lifecycle.Event{
			EventID:    uuid.New(),
			Type:       lifecycle.EventPositionChanged,
			SubjectKey: "emp-10",
			EntityID:   uuid.New(),
			Role:       screeningdomain.RoleFinance,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	// the bad message is dropped and the one behind it still processes
	require.Eventually(t, func() bool {
		return vigilance.reevaluated.Load() == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
