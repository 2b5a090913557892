// Package notify defines the outbound alert contract. Alert consumption is
// an external concern; the engine hands alerts to a Notifier adapter and
// tracks delivery outcomes.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind classifies an outbound alert
type Kind string

const (
	KindScreeningComplete    Kind = "screening_complete"
	KindReviewRequired       Kind = "review_required"
	KindAlertGenerated       Kind = "alert_generated"
	KindAdverseActionPending Kind = "adverse_action_pending"
)

// Severity grades an alert for the consumer
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert is one outbound notification
type Alert struct {
	ID          uuid.UUID              `json:"id"`
	TenantID    uuid.UUID              `json:"tenant_id"`
	Kind        Kind                   `json:"kind"`
	Severity    Severity               `json:"severity"`
	EntityID    uuid.UUID              `json:"entity_id,omitempty"`
	ScreeningID uuid.UUID              `json:"screening_id,omitempty"`
	Body        map[string]interface{} `json:"body,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NewAlert builds an alert pending dispatch
func NewAlert(tenantID uuid.UUID, kind Kind, severity Severity) Alert {
	return Alert{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Kind:      kind,
		Severity:  severity,
		Body:      make(map[string]interface{}),
		CreatedAt: time.Now().UTC(),
	}
}

// Notifier is the delivery adapter contract: email, webhook, queue. The
// engine has no opinion about who consumes alerts.
type Notifier interface {
	Deliver(ctx context.Context, alert Alert) error
}

// Delivery is the tracked outcome of one alert
type Delivery struct {
	AlertID    uuid.UUID `json:"alert_id"`
	Delivered  bool      `json:"delivered"`
	RetryCount int       `json:"retry_count"`
	LastError  string    `json:"last_error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Dispatcher delivers alerts through a Notifier with bounded retries and
// records per-alert delivery state.
type Dispatcher struct {
	notifier    Notifier
	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.Logger

	mu         sync.Mutex
	deliveries map[uuid.UUID]Delivery
}

// NewDispatcher creates a dispatcher over a delivery adapter
func NewDispatcher(notifier Notifier, maxAttempts int, retryDelay time.Duration, logger *zap.Logger) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Dispatcher{
		notifier:    notifier,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		logger:      logger,
		deliveries:  make(map[uuid.UUID]Delivery),
	}
}

// Dispatch delivers one alert, retrying failed deliveries up to the attempt
// cap. The recorded delivery keeps the retry count and last error.
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert) error {
	var lastErr error
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				d.record(alert.ID, false, attempt-1, ctx.Err())
				return ctx.Err()
			case <-time.After(d.retryDelay):
			}
		}

		lastErr = d.notifier.Deliver(ctx, alert)
		if lastErr == nil {
			d.record(alert.ID, true, attempt, nil)
			return nil
		}
		d.logger.Warn("alert delivery failed",
			zap.String("alert_id", alert.ID.String()),
			zap.String("kind", string(alert.Kind)),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}
	d.record(alert.ID, false, d.maxAttempts-1, lastErr)
	return lastErr
}

// Delivery returns the tracked outcome for an alert
func (d *Dispatcher) Delivery(alertID uuid.UUID) (Delivery, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	del, ok := d.deliveries[alertID]
	return del, ok
}

func (d *Dispatcher) record(alertID uuid.UUID, delivered bool, retries int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	del := Delivery{
		AlertID:    alertID,
		Delivered:  delivered,
		RetryCount: retries,
		UpdatedAt:  time.Now().UTC(),
	}
	if err != nil {
		del.LastError = err.Error()
	}
	d.deliveries[alertID] = del
}

// LogNotifier writes alerts to the process log; the default adapter when no
// external consumer is configured.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n *LogNotifier) Deliver(_ context.Context, alert Alert) error {
	n.Logger.Info("alert",
		zap.String("alert_id", alert.ID.String()),
		zap.String("tenant_id", alert.TenantID.String()),
		zap.String("kind", string(alert.Kind)),
		zap.String("severity", string(alert.Severity)),
		zap.Any("body", alert.Body))
	return nil
}
