package profile

import (
	"time"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/finding"
	"github.com/google/uuid"
)

// RiskLevel buckets a risk score into the recommendation bands
type RiskLevel string

const (
	RiskClear                  RiskLevel = "clear"
	RiskReview                 RiskLevel = "review"
	RiskEnhancedReview         RiskLevel = "enhanced_review"
	RiskAdverseActionCandidate RiskLevel = "adverse_action_candidate"
)

// LevelForScore maps a 0-100 score onto its band: [0,25] clear,
// (25,50] review, (50,75] enhanced_review, (75,100] adverse_action_candidate.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score <= 25:
		return RiskClear
	case score <= 50:
		return RiskReview
	case score <= 75:
		return RiskEnhancedReview
	default:
		return RiskAdverseActionCandidate
	}
}

// Edge is one connection in the entity graph. Edges are stored once and
// treated as symmetric.
type Edge struct {
	From           uuid.UUID `json:"from"`
	To             uuid.UUID `json:"to"`
	ConnectionType string    `json:"connection_type"`
	Strength       float64   `json:"strength"`
}

// EntityGraph is an adjacency table of symmetric edges. Cycles are fine;
// traversal uses visited sets, never recursive object references.
type EntityGraph struct {
	edges    []Edge
	adjacent map[uuid.UUID][]uuid.UUID
}

// NewEntityGraph creates an empty graph
func NewEntityGraph() *EntityGraph {
	return &EntityGraph{adjacent: make(map[uuid.UUID][]uuid.UUID)}
}

// AddEdge inserts a symmetric edge, ignoring exact duplicates
func (g *EntityGraph) AddEdge(e Edge) {
	for _, existing := range g.edges {
		if sameEdge(existing, e) {
			return
		}
	}
	g.edges = append(g.edges, e)
	g.adjacent[e.From] = append(g.adjacent[e.From], e.To)
	g.adjacent[e.To] = append(g.adjacent[e.To], e.From)
}

func sameEdge(a, b Edge) bool {
	direct := a.From == b.From && a.To == b.To
	reversed := a.From == b.To && a.To == b.From
	return (direct || reversed) && a.ConnectionType == b.ConnectionType
}

// Neighbors returns the entities directly connected to one entity
func (g *EntityGraph) Neighbors(id uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, len(g.adjacent[id]))
	copy(out, g.adjacent[id])
	return out
}

// Edges returns a copy of all edges
func (g *EntityGraph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Reachable walks the graph breadth-first from a starting entity up to
// maxHops, using a visited set to survive cycles.
func (g *EntityGraph) Reachable(start uuid.UUID, maxHops int) []uuid.UUID {
	visited := map[uuid.UUID]bool{start: true}
	frontier := []uuid.UUID{start}
	var out []uuid.UUID

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []uuid.UUID
		for _, id := range frontier {
			for _, n := range g.adjacent[id] {
				if !visited[n] {
					visited[n] = true
					out = append(out, n)
					next = append(next, n)
				}
			}
		}
		frontier = next
	}
	return out
}

// BranchStatus marks whether a degree branch completed cleanly
type BranchStatus string

const (
	BranchComplete BranchStatus = "complete"
	BranchDegraded BranchStatus = "degraded"
)

// Profile is an immutable, versioned risk profile for an entity. Version
// numbers are strictly monotonic per entity.
type Profile struct {
	ID           uuid.UUID         `json:"id"`
	EntityID     uuid.UUID         `json:"entity_id"`
	TenantID     uuid.UUID         `json:"tenant_id"`
	Version      int               `json:"version"`
	Findings     []finding.Finding `json:"findings"`
	RiskScore    float64           `json:"risk_score"`
	RiskLevel    RiskLevel         `json:"risk_level"`
	Graph        *EntityGraph      `json:"-"`
	Connections  []Edge            `json:"connections"`
	BranchStatus BranchStatus      `json:"branch_status"`
	CreatedAt    time.Time         `json:"created_at"`
}

// New creates a validated profile version
func New(entityID, tenantID uuid.UUID, version int, findings []finding.Finding, riskScore float64, graph *EntityGraph) (*Profile, error) {
	if entityID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_ENTITY", "profile requires an entity")
	}
	if version < 1 {
		return nil, errors.NewValidationError("INVALID_VERSION", "profile versions start at 1")
	}
	if riskScore < 0 || riskScore > 100 {
		return nil, errors.NewValidationError("INVALID_SCORE", "risk score must be within [0,100]")
	}
	if graph == nil {
		graph = NewEntityGraph()
	}
	return &Profile{
		ID:           uuid.New(),
		EntityID:     entityID,
		TenantID:     tenantID,
		Version:      version,
		Findings:     findings,
		RiskScore:    riskScore,
		RiskLevel:    LevelForScore(riskScore),
		Graph:        graph,
		Connections:  graph.Edges(),
		BranchStatus: BranchComplete,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// MarkDegraded returns a copy flagged as produced from partial results
func (p Profile) MarkDegraded() Profile {
	p.BranchStatus = BranchDegraded
	return p
}

// FindingByID looks up a finding on this profile version
func (p *Profile) FindingByID(id uuid.UUID) (finding.Finding, bool) {
	for _, f := range p.Findings {
		if f.ID == id {
			return f, true
		}
	}
	return finding.Finding{}, false
}
