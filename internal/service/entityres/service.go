// Package entityres resolves screening subjects to canonical entities and
// maintains the entity graph through merge and split operations.
package entityres

import (
	"context"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	"github.com/clearvet/screening-backend/internal/domain/entity"
	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Resolver maps subject claims onto canonical entities. Exact identifier
// matches win outright; otherwise candidates are scored fuzzily and the
// threshold decides between attach and create.
type Resolver struct {
	store    Store
	auditLog *audit.Logger
	logger   *zap.Logger
}

// NewResolver creates the entity resolver
func NewResolver(store Store, auditLog *audit.Logger, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, auditLog: auditLog, logger: logger}
}

// Resolve finds or creates the canonical entity for a subject. SSN and
// national-ID hashes are tried first; absent those, candidates are ranked by
// composite similarity with ties broken by most recent update.
func (r *Resolver) Resolve(ctx context.Context, rctx values.RequestContext, subject *screening.Subject) (*Match, error) {
	if subject == nil {
		return nil, errors.NewValidationError("MISSING_SUBJECT", "resolution requires a subject")
	}
	if subject.TenantID != rctx.TenantID() {
		return nil, errors.NewPermissionError("subject belongs to a different tenant")
	}

	for _, hash := range []string{subject.Identifiers.SSNHash, subject.Identifiers.NationalIDHash} {
		if hash == "" {
			continue
		}
		found, err := r.store.FindByIdentifierHash(ctx, subject.TenantID, hash)
		if err != nil {
			return nil, err
		}
		if found != nil {
			found.AttachSubject(subject.ID)
			if err := r.store.Save(ctx, found); err != nil {
				return nil, err
			}
			r.logger.Info("subject resolved by identifier hash",
				zap.String("subject_id", subject.ID.String()),
				zap.String("entity_id", found.ID.String()))
			return &Match{Entity: found, Score: 1, Exact: true}, nil
		}
	}

	candidates, err := r.store.ListByTenant(ctx, subject.TenantID)
	if err != nil {
		return nil, err
	}

	var (
		best      *entity.Entity
		bestScore float64
	)
	for _, candidate := range candidates {
		score := compositeScore(subject.Identifiers, candidate.Canonical)
		if score < matchThreshold {
			continue
		}
		switch {
		case best == nil, score > bestScore:
			best, bestScore = candidate, score
		case score == bestScore && candidate.UpdatedAt.After(best.UpdatedAt):
			best = candidate
		}
	}

	if best != nil {
		best.AttachSubject(subject.ID)
		if err := r.store.Save(ctx, best); err != nil {
			return nil, err
		}
		r.logger.Info("subject resolved by fuzzy match",
			zap.String("subject_id", subject.ID.String()),
			zap.String("entity_id", best.ID.String()),
			zap.Float64("score", bestScore))
		return &Match{Entity: best, Score: bestScore}, nil
	}

	created, err := entity.New(subject.TenantID, subject.ID, subject.Identifiers)
	if err != nil {
		return nil, err
	}
	if err := r.store.Save(ctx, created); err != nil {
		return nil, err
	}
	r.logger.Info("new entity created for subject",
		zap.String("subject_id", subject.ID.String()),
		zap.String("entity_id", created.ID.String()))
	return &Match{Entity: created, Created: true}, nil
}

// Merge moves every screening from the source entity onto the target and
// records the operation. The move is reversible until confirmed.
func (r *Resolver) Merge(ctx context.Context, rctx values.RequestContext, sourceID, targetID uuid.UUID, performedBy string) (*entity.Operation, error) {
	source, err := r.store.Get(ctx, rctx.TenantID(), sourceID)
	if err != nil {
		return nil, err
	}
	target, err := r.store.Get(ctx, rctx.TenantID(), targetID)
	if err != nil {
		return nil, err
	}

	moved := make([]uuid.UUID, len(source.ScreeningIDs))
	copy(moved, source.ScreeningIDs)

	op, err := entity.NewOperation(entity.OperationMerge, sourceID, targetID, moved, performedBy)
	if err != nil {
		return nil, err
	}

	for _, screeningID := range moved {
		target.AttachScreening(screeningID)
	}
	source.ScreeningIDs = nil
	source.UpdatedAt = rctx.Timestamp()

	if err := r.saveBoth(ctx, source, target); err != nil {
		return nil, err
	}
	if err := r.store.SaveOperation(ctx, op); err != nil {
		return nil, err
	}
	r.emitOperation(ctx, rctx, op, "merge")
	return op, nil
}

// Split creates a new entity anchored on one of the source's subjects and
// moves the selected screenings onto it.
func (r *Resolver) Split(ctx context.Context, rctx values.RequestContext, sourceID, subjectID uuid.UUID, screeningIDs []uuid.UUID, performedBy string) (*entity.Operation, error) {
	if len(screeningIDs) == 0 {
		return nil, errors.NewValidationError("EMPTY_SPLIT", "split requires at least one screening")
	}
	source, err := r.store.Get(ctx, rctx.TenantID(), sourceID)
	if err != nil {
		return nil, err
	}

	attached := make(map[uuid.UUID]bool, len(source.ScreeningIDs))
	for _, id := range source.ScreeningIDs {
		attached[id] = true
	}
	for _, id := range screeningIDs {
		if !attached[id] {
			return nil, errors.NewValidationError("SCREENING_NOT_ATTACHED",
				"split may only move screenings attached to the source entity")
		}
	}

	created, err := entity.New(source.TenantID, subjectID, source.Canonical)
	if err != nil {
		return nil, err
	}

	op, err := entity.NewOperation(entity.OperationSplit, sourceID, created.ID, screeningIDs, performedBy)
	if err != nil {
		return nil, err
	}

	for _, id := range screeningIDs {
		source.ScreeningIDs = removeUUID(source.ScreeningIDs, id)
		created.AttachScreening(id)
	}
	source.SubjectIDs = removeUUID(source.SubjectIDs, subjectID)
	source.UpdatedAt = rctx.Timestamp()

	if err := r.saveBoth(ctx, source, created); err != nil {
		return nil, err
	}
	if err := r.store.SaveOperation(ctx, op); err != nil {
		return nil, err
	}
	r.emitOperation(ctx, rctx, op, "split")
	return op, nil
}

// Confirm makes a recorded operation permanent; it can no longer be reversed
func (r *Resolver) Confirm(ctx context.Context, rctx values.RequestContext, operationID uuid.UUID) error {
	op, err := r.store.GetOperation(ctx, rctx.TenantID(), operationID)
	if err != nil {
		return err
	}
	op.Confirm()
	if err := r.store.SaveOperation(ctx, op); err != nil {
		return err
	}
	r.emitOperation(ctx, rctx, op, "confirm")
	return nil
}

// Reverse undoes an unconfirmed operation, moving the recorded screenings
// back to the source entity.
func (r *Resolver) Reverse(ctx context.Context, rctx values.RequestContext, operationID uuid.UUID) error {
	op, err := r.store.GetOperation(ctx, rctx.TenantID(), operationID)
	if err != nil {
		return err
	}
	if err := op.Reverse(); err != nil {
		return err
	}

	source, err := r.store.Get(ctx, rctx.TenantID(), op.SourceEntityID)
	if err != nil {
		return err
	}
	target, err := r.store.Get(ctx, rctx.TenantID(), op.TargetEntityID)
	if err != nil {
		return err
	}
	for _, id := range op.MovedScreenings {
		target.ScreeningIDs = removeUUID(target.ScreeningIDs, id)
		source.AttachScreening(id)
	}
	target.UpdatedAt = rctx.Timestamp()

	if err := r.saveBoth(ctx, source, target); err != nil {
		return err
	}
	if err := r.store.SaveOperation(ctx, op); err != nil {
		return err
	}
	r.emitOperation(ctx, rctx, op, "reverse")
	return nil
}

func (r *Resolver) saveBoth(ctx context.Context, a, b *entity.Entity) error {
	if err := r.store.Save(ctx, a); err != nil {
		return err
	}
	return r.store.Save(ctx, b)
}

func (r *Resolver) emitOperation(ctx context.Context, rctx values.RequestContext, op *entity.Operation, action string) {
	if r.auditLog == nil {
		return
	}
	event, err := audit.NewEvent(audit.EventEntityOperation, rctx.TenantID(), rctx.CorrelationID(),
		op.ID.String(), "entity_operation", action)
	if err != nil {
		return
	}
	event.WithMetadata("operation_type", string(op.Type)).
		WithMetadata("source_entity_id", op.SourceEntityID.String()).
		WithMetadata("target_entity_id", op.TargetEntityID.String()).
		WithMetadata("moved_screenings", len(op.MovedScreenings)).
		WithMetadata("performed_by", op.PerformedBy)
	if err := r.auditLog.Emit(ctx, event); err != nil {
		r.logger.Warn("failed to emit entity operation event", zap.Error(err))
	}
}

func removeUUID(ids []uuid.UUID, target uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
