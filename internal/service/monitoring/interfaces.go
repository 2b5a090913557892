package monitoring

import (
	"context"
	"time"

	monitordomain "github.com/clearvet/screening-backend/internal/domain/monitoring"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/google/uuid"
)

// ConfigStore persists monitoring configurations
type ConfigStore interface {
	// Due returns up to limit active configurations whose next check time
	// has passed, ordered by next check time.
	Due(ctx context.Context, now time.Time, limit int) ([]*monitordomain.Config, error)

	Get(ctx context.Context, tenantID, entityID uuid.UUID) (*monitordomain.Config, error)
	Save(ctx context.Context, cfg *monitordomain.Config) error
}

// ProfileStore loads persisted profile versions for delta computation
type ProfileStore interface {
	Version(ctx context.Context, tenantID, entityID uuid.UUID, version int) (*profile.Profile, error)
}

// Executor runs the re-investigation for a monitored entity and returns the
// newly versioned profile.
type Executor interface {
	Execute(ctx context.Context, rctx values.RequestContext, entityID uuid.UUID, mode monitordomain.CheckMode) (*profile.Profile, error)
}
