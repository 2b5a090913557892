// Package lifecycle processes inbound HR lifecycle events and maps them onto
// screening and monitoring operations. Processing is idempotent on event ID.
package lifecycle

import (
	"context"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Processor dispatches lifecycle events:
// hire_initiated holds a screening intake until consent,
// consent_granted initiates and starts the screening,
// position_changed re-evaluates vigilance,
// employee_terminated cancels monitoring,
// rehire_initiated resumes monitoring or falls back to a fresh intake.
type Processor struct {
	screener  Screener
	vigilance VigilanceManager
	processed ProcessedStore
	intakes   IntakeStore
	auditLog  *audit.Logger
	logger    *zap.Logger
	validate  *validator.Validate
}

// NewProcessor creates the lifecycle event processor
func NewProcessor(
	screener Screener,
	vigilance VigilanceManager,
	processed ProcessedStore,
	intakes IntakeStore,
	auditLog *audit.Logger,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		screener:  screener,
		vigilance: vigilance,
		processed: processed,
		intakes:   intakes,
		auditLog:  auditLog,
		logger:    logger,
		validate:  validator.New(),
	}
}

// Handle processes one lifecycle event. Redelivery of an already-processed
// event ID returns nil without side effects. An event whose handler fails is
// released for redelivery so no event is consumed without its side effects.
func (p *Processor) Handle(ctx context.Context, rctx values.RequestContext, event Event) error {
	if err := p.validate.Struct(event); err != nil {
		return errors.NewValidationError("INVALID_EVENT", err.Error()).
			WithCorrelation(rctx.CorrelationID().String())
	}

	fresh, err := p.processed.MarkIfNew(ctx, rctx.TenantID(), event.EventID)
	if err != nil {
		return err
	}
	if !fresh {
		p.logger.Debug("duplicate lifecycle event ignored",
			zap.String("event_id", event.EventID.String()),
			zap.String("event_type", string(event.Type)))
		return nil
	}
	p.emitReceived(ctx, rctx, event)

	if err := p.dispatch(ctx, rctx, event); err != nil {
		if unmarkErr := p.processed.Unmark(ctx, rctx.TenantID(), event.EventID); unmarkErr != nil {
			p.logger.Error("failed to release event for redelivery",
				zap.String("event_id", event.EventID.String()),
				zap.Error(unmarkErr))
		}
		return err
	}
	return nil
}

func (p *Processor) dispatch(ctx context.Context, rctx values.RequestContext, event Event) error {
	switch event.Type {
	case EventHireInitiated:
		return p.handleHire(ctx, rctx, event)
	case EventConsentGranted:
		return p.handleConsent(ctx, rctx, event)
	case EventPositionChanged:
		return p.vigilance.Reevaluate(ctx, rctx, event.EntityID, event.Role)
	case EventEmployeeTerminated:
		return p.vigilance.Cancel(ctx, rctx, event.EntityID)
	case EventRehireInitiated:
		return p.handleRehire(ctx, rctx, event)
	default:
		return errors.NewValidationError("UNKNOWN_EVENT_TYPE", "unhandled lifecycle event type")
	}
}

// handleHire parks the screening intake until consent arrives
func (p *Processor) handleHire(ctx context.Context, rctx values.RequestContext, event Event) error {
	if event.Screening == nil {
		return errors.NewValidationError("MISSING_SCREENING", "hire event requires screening details")
	}
	return p.intakes.Save(ctx, &Intake{
		TenantID:   rctx.TenantID(),
		SubjectKey: event.SubjectKey,
		Request:    *event.Screening,
		ReceivedAt: event.OccurredAt,
	})
}

// handleConsent joins the parked intake with the consent reference and
// starts the screening. Execution runs detached; the event handler does not
// block for the screening duration.
func (p *Processor) handleConsent(ctx context.Context, rctx values.RequestContext, event Event) error {
	if event.ConsentRef == "" {
		return errors.NewValidationError("MISSING_CONSENT_REF", "consent event requires a consent reference")
	}
	intake, err := p.intakes.Get(ctx, rctx.TenantID(), event.SubjectKey)
	if err != nil {
		return err
	}

	req := intake.Request
	req.ConsentRef = event.ConsentRef
	request, err := p.screener.Initiate(ctx, rctx, req)
	if err != nil {
		return err
	}
	if err := p.intakes.Delete(ctx, rctx.TenantID(), event.SubjectKey); err != nil {
		return err
	}

	runCtx := context.WithoutCancel(ctx)
	go func() {
		if _, err := p.screener.Execute(runCtx, rctx, request); err != nil {
			p.logger.Error("lifecycle-triggered screening failed",
				zap.String("screening_id", request.ScreeningID.String()),
				zap.String("subject_key", event.SubjectKey),
				zap.Error(err))
		}
	}()
	return nil
}

// handleRehire resumes monitoring when the entity is still known, otherwise
// falls back to a fresh intake awaiting consent.
func (p *Processor) handleRehire(ctx context.Context, rctx values.RequestContext, event Event) error {
	err := p.vigilance.Resume(ctx, rctx, event.EntityID, event.Role)
	if err == nil {
		return nil
	}
	if !errors.IsType(err, errors.ErrorTypeNotFound) {
		return err
	}

	if event.Screening == nil {
		return errors.NewValidationError("MISSING_SCREENING",
			"rehire of an unknown entity requires screening details")
	}
	p.logger.Info("no monitoring to resume; parking rescreen intake",
		zap.String("subject_key", event.SubjectKey))
	return p.handleHire(ctx, rctx, event)
}

func (p *Processor) emitReceived(ctx context.Context, rctx values.RequestContext, event Event) {
	if p.auditLog == nil {
		return
	}
	auditEvent, err := audit.NewEvent(audit.EventLifecycleReceived, rctx.TenantID(), rctx.CorrelationID(),
		event.EventID.String(), "lifecycle_event", string(event.Type))
	if err != nil {
		return
	}
	auditEvent.WithMetadata("event_type", string(event.Type)).
		WithMetadata("subject_key", event.SubjectKey)
	if err := p.auditLog.Emit(ctx, auditEvent); err != nil {
		p.logger.Warn("failed to emit lifecycle event", zap.Error(err))
	}
}
