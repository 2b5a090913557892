package knowledge

import (
	"sync"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/google/uuid"
)

// SourceClass ranks fact sources for derived-view precedence:
// authoritative provider > corroborated self-report > single-source self-report.
type SourceClass int

const (
	SourceSelfReport SourceClass = iota
	SourceCorroborated
	SourceAuthoritative
)

// Fact is one claim discovered during an investigation. Facts are
// append-only within an investigation.
type Fact struct {
	ID           uuid.UUID                 `json:"id"`
	InfoType     screening.InformationType `json:"info_type"`
	Claim        string                    `json:"claim"`
	Field        string                    `json:"field"` // semantic slot, e.g. "name", "dob", "address"
	Value        string                    `json:"value"`
	SourceID     string                    `json:"source_provider_id"`
	SourceClass  SourceClass               `json:"source_class"`
	EvidenceRefs []string                  `json:"evidence_refs,omitempty"`
	Confidence   float64                   `json:"confidence"`
	EffectiveAt  time.Time                 `json:"effective_at,omitempty"`
	DiscoveredAt time.Time                 `json:"discovered_at"`
}

// ReconciliationStatus tracks whether contradicting facts were resolved
type ReconciliationStatus string

const (
	ReconciliationOpen             ReconciliationStatus = "open"
	ReconciliationResolved         ReconciliationStatus = "resolved"
	ReconciliationAcceptedConflict ReconciliationStatus = "accepted_conflict"
)

// InconsistencyKind names the contradiction shape detected between facts
type InconsistencyKind string

const (
	InconsistencyTimeline            InconsistencyKind = "timeline_impossibility"
	InconsistencyContradiction       InconsistencyKind = "claim_contradiction"
	InconsistencyIdentifierMismatch  InconsistencyKind = "identifier_mismatch"
	InconsistencyCredentialInflation InconsistencyKind = "credential_inflation"
)

// Inconsistency records two or more facts whose claims contradict
type Inconsistency struct {
	ID         uuid.UUID                 `json:"id"`
	InfoType   screening.InformationType `json:"info_type"`
	Kind       InconsistencyKind         `json:"kind"`
	FactIDs    []uuid.UUID               `json:"fact_ids"`
	Detail     string                    `json:"detail"`
	Status     ReconciliationStatus      `json:"status"`
	DetectedAt time.Time                 `json:"detected_at"`
}

// GapKind distinguishes missing fundamentals from corroboration gaps; the
// refiner prioritizes fundamentals.
type GapKind string

const (
	GapMissingFundamental GapKind = "missing_fundamental"
	GapCorroboration      GapKind = "corroboration"
)

// Gap names a slot the investigation has not yet filled
type Gap struct {
	InfoType screening.InformationType `json:"info_type"`
	Field    string                    `json:"field"`
	Kind     GapKind                   `json:"kind"`
	Detail   string                    `json:"detail,omitempty"`
}

// ConnectedEntity is a connection discovered during investigation, used by
// the degree orchestrator to expand outward.
type ConnectedEntity struct {
	EntityID       uuid.UUID   `json:"entity_id"`
	Name           string      `json:"name"`
	ConnectionType string      `json:"connection_type"` // employer, address, associate
	Relevance      float64     `json:"relevance"`
	SourceFactIDs  []uuid.UUID `json:"source_fact_ids,omitempty"`
}

// Snapshot is a read-only view over one information type's accumulated state
type Snapshot struct {
	InfoType        screening.InformationType
	Facts           []Fact
	Inconsistencies []Inconsistency
	Gaps            []Gap
}

// Base is the per-investigation knowledge store. It is monotonic over facts:
// facts can be added but never removed or changed. Writes for one info type
// are serialized by a per-type lock.
type Base struct {
	InvestigationID uuid.UUID

	mu              sync.RWMutex
	typeLocks       map[screening.InformationType]*sync.Mutex
	facts           []Fact
	inconsistencies []Inconsistency
	gaps            map[screening.InformationType]map[string]Gap
	connections     []ConnectedEntity
}

// NewBase creates an empty knowledge base for one investigation
func NewBase(investigationID uuid.UUID) *Base {
	locks := make(map[screening.InformationType]*sync.Mutex)
	for _, t := range screening.AllInformationTypes() {
		locks[t] = &sync.Mutex{}
	}
	return &Base{
		InvestigationID: investigationID,
		typeLocks:       locks,
		gaps:            make(map[screening.InformationType]map[string]Gap),
	}
}

// TypeLock returns the write lock serializing commits for one info type
func (b *Base) TypeLock(t screening.InformationType) *sync.Mutex {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.typeLocks[t]
}

// AddFact appends a fact. The fact is stamped with a discovery time and ID
// if missing.
func (b *Base) AddFact(f Fact) (Fact, error) {
	if !f.InfoType.IsValid() {
		return Fact{}, errors.NewValidationError("INVALID_INFO_TYPE", "fact carries an unknown information type")
	}
	if f.SourceID == "" {
		return Fact{}, errors.NewValidationError("MISSING_SOURCE", "fact requires a source provider")
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return Fact{}, errors.NewValidationError("INVALID_CONFIDENCE", "fact confidence must be within [0,1]")
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.DiscoveredAt.IsZero() {
		f.DiscoveredAt = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.facts = append(b.facts, f)
	return f, nil
}

// AddInconsistency records a detected contradiction in open status
func (b *Base) AddInconsistency(inc Inconsistency) (Inconsistency, error) {
	if len(inc.FactIDs) < 2 {
		return Inconsistency{}, errors.NewValidationError("TOO_FEW_FACTS", "inconsistency requires at least two facts")
	}
	if inc.ID == uuid.Nil {
		inc.ID = uuid.New()
	}
	if inc.Status == "" {
		inc.Status = ReconciliationOpen
	}
	if inc.DetectedAt.IsZero() {
		inc.DetectedAt = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.inconsistencies = append(b.inconsistencies, inc)
	return inc, nil
}

// ResolveInconsistency moves an inconsistency to a resolved state
func (b *Base) ResolveInconsistency(id uuid.UUID, status ReconciliationStatus) error {
	if status == ReconciliationOpen {
		return errors.NewValidationError("INVALID_STATUS", "cannot resolve to open status")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.inconsistencies {
		if b.inconsistencies[i].ID == id {
			b.inconsistencies[i].Status = status
			return nil
		}
	}
	return errors.NewNotFoundError("inconsistency")
}

// SetGap records or replaces a gap keyed by (info type, field)
func (b *Base) SetGap(g Gap) {
	b.mu.Lock()
	defer b.mu.Unlock()
	byField, ok := b.gaps[g.InfoType]
	if !ok {
		byField = make(map[string]Gap)
		b.gaps[g.InfoType] = byField
	}
	byField[g.Field] = g
}

// ClearGap removes a gap once the slot has been filled
func (b *Base) ClearGap(infoType screening.InformationType, field string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if byField, ok := b.gaps[infoType]; ok {
		delete(byField, field)
	}
}

// AddConnection records a discovered connected entity
func (b *Base) AddConnection(c ConnectedEntity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connections = append(b.connections, c)
}

// Connections returns discovered connections ordered by descending relevance
func (b *Base) Connections() []ConnectedEntity {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ConnectedEntity, len(b.connections))
	copy(out, b.connections)
	return out
}

// Snapshot returns a copy of one information type's accumulated state
func (b *Base) Snapshot(t screening.InformationType) Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := Snapshot{InfoType: t}
	for _, f := range b.facts {
		if f.InfoType == t {
			snap.Facts = append(snap.Facts, f)
		}
	}
	for _, inc := range b.inconsistencies {
		if inc.InfoType == t {
			snap.Inconsistencies = append(snap.Inconsistencies, inc)
		}
	}
	for _, g := range b.gaps[t] {
		snap.Gaps = append(snap.Gaps, g)
	}
	return snap
}

// AllFacts returns a copy of every fact in discovery order
func (b *Base) AllFacts() []Fact {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Fact, len(b.facts))
	copy(out, b.facts)
	return out
}

// OpenInconsistencies returns inconsistencies still in open status
func (b *Base) OpenInconsistencies() []Inconsistency {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Inconsistency
	for _, inc := range b.inconsistencies {
		if inc.Status == ReconciliationOpen {
			out = append(out, inc)
		}
	}
	return out
}

// AllInconsistencies returns every recorded inconsistency
func (b *Base) AllInconsistencies() []Inconsistency {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Inconsistency, len(b.inconsistencies))
	copy(out, b.inconsistencies)
	return out
}

// PrimaryName derives the subject's name using source precedence; among
// equal classes the most recently discovered fact wins.
func (b *Base) PrimaryName() (string, bool) {
	return b.deriveField(screening.InfoIdentity, "name")
}

// ConfirmedDOB derives the date of birth the same way
func (b *Base) ConfirmedDOB() (string, bool) {
	return b.deriveField(screening.InfoIdentity, "dob")
}

// CurrentAddress derives the most recent address claim
func (b *Base) CurrentAddress() (string, bool) {
	return b.deriveField(screening.InfoIdentity, "address")
}

func (b *Base) deriveField(t screening.InformationType, field string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var best *Fact
	for i := range b.facts {
		f := &b.facts[i]
		if f.InfoType != t || f.Field != field {
			continue
		}
		if best == nil ||
			f.SourceClass > best.SourceClass ||
			(f.SourceClass == best.SourceClass && f.DiscoveredAt.After(best.DiscoveredAt)) {
			best = f
		}
	}
	if best == nil {
		return "", false
	}
	return best.Value, true
}
