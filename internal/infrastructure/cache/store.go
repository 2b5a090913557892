package cache

import (
	"context"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
)

// Entry is one content-addressed cached provider result
type Entry struct {
	Fingerprint values.Fingerprint        `json:"-"`
	ProviderID  string                    `json:"provider_id"`
	CheckType   screening.InformationType `json:"check_type"`
	Payload     []byte                    `json:"payload"`
	CachedAt    time.Time                 `json:"cached_at"`
}

// Age returns how old the entry is
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CachedAt)
}

// Store is the content-addressed cache of provider results. Implementations
// must treat fingerprints as opaque keys; tenant scoping happens in the
// fingerprint inputs.
type Store interface {
	// Get returns the entry for a fingerprint, or (nil, nil) on a miss
	Get(ctx context.Context, fp values.Fingerprint) (*Entry, error)
	// Put stores or replaces an entry
	Put(ctx context.Context, entry *Entry) error
	// Delete removes an entry
	Delete(ctx context.Context, fp values.Fingerprint) error
}
