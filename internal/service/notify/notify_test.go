package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clearvet/screening-backend/internal/service/notify"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type flakyNotifier struct {
	failures int
	calls    int
}

func (n *flakyNotifier) Deliver(_ context.Context, _ notify.Alert) error {
	n.calls++
	if n.calls <= n.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestDispatchDeliversFirstTry(t *testing.T) {
	n := &flakyNotifier{}
	d := notify.NewDispatcher(n, 3, time.Millisecond, zap.NewNop())
	alert := notify.NewAlert(uuid.New(), notify.KindScreeningComplete, notify.SeverityLow)

	require.NoError(t, d.Dispatch(context.Background(), alert))

	del, ok := d.Delivery(alert.ID)
	require.True(t, ok)
	assert.True(t, del.Delivered)
	assert.Zero(t, del.RetryCount)
	assert.Empty(t, del.LastError)
}

func TestDispatchRetriesAndTracksCount(t *testing.T) {
	n := &flakyNotifier{failures: 2}
	d := notify.NewDispatcher(n, 3, time.Millisecond, zap.NewNop())
	alert := notify.NewAlert(uuid.New(), notify.KindAlertGenerated, notify.SeverityHigh)

	require.NoError(t, d.Dispatch(context.Background(), alert))
	assert.Equal(t, 3, n.calls)

	del, ok := d.Delivery(alert.ID)
	require.True(t, ok)
	assert.True(t, del.Delivered)
	assert.Equal(t, 2, del.RetryCount)
}

func TestDispatchExhaustsAttempts(t *testing.T) {
	n := &flakyNotifier{failures: 10}
	d := notify.NewDispatcher(n, 3, time.Millisecond, zap.NewNop())
	alert := notify.NewAlert(uuid.New(), notify.KindReviewRequired, notify.SeverityMedium)

	require.Error(t, d.Dispatch(context.Background(), alert))
	assert.Equal(t, 3, n.calls)

	del, ok := d.Delivery(alert.ID)
	require.True(t, ok)
	assert.False(t, del.Delivered)
	assert.Equal(t, 2, del.RetryCount)
	assert.Contains(t, del.LastError, "connection refused")
}
