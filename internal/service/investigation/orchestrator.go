package investigation

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/clearvet/screening-backend/internal/domain/compliance"
	"github.com/clearvet/screening-backend/internal/domain/knowledge"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// connectionNamespace derives stable entity IDs for discovered connections
// so repeated investigations resolve the same connection to the same node.
var connectionNamespace = uuid.MustParse("7f3a1c9e-4b2d-4e8f-9a6c-d5e0f1a2b3c4")

// networkCheckTypes are the checks run against connected entities during
// network expansion.
var networkCheckTypes = []screening.InformationType{
	screening.InfoSanctions,
	screening.InfoRegulatory,
	screening.InfoAdverseMedia,
}

// Branch is one connected entity's investigation within a degree expansion
type Branch struct {
	EntityID       uuid.UUID
	Name           string
	ConnectionType string
	Degree         screening.Degree
	Status         profile.BranchStatus
	States         map[screening.InformationType]*screening.SARState
	Base           *knowledge.Base
}

// Result is the consolidated outcome of one investigation across degrees
type Result struct {
	SubjectStates map[screening.InformationType]*screening.SARState
	Base          *knowledge.Base
	Branches      []Branch
	Graph         *profile.EntityGraph
	Degraded      bool
}

// RunOption adjusts a single investigation run
type RunOption func(*RunOptions)

// RunOptions is the resolved form of a run's options. Investigator
// implementations fold the variadic options through NewRunOptions.
type RunOptions struct {
	// Observer is invoked as each of the subject's information types
	// reaches its terminal state. Types within one phase finish
	// concurrently, so calls may arrive from multiple goroutines.
	Observer func(screening.InformationType, *screening.SARState)

	// Completed marks information types already terminal from an earlier
	// execution of the same screening. They are skipped instead of
	// re-investigated.
	Completed map[screening.InformationType]bool
}

// NewRunOptions folds run options into their resolved form
func NewRunOptions(opts ...RunOption) *RunOptions {
	o := &RunOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithTypeObserver registers a terminal-state callback for the subject's
// information types.
func WithTypeObserver(fn func(screening.InformationType, *screening.SARState)) RunOption {
	return func(o *RunOptions) { o.Observer = fn }
}

// WithCompletedTypes marks information types to skip as already terminal
func WithCompletedTypes(types ...screening.InformationType) RunOption {
	return func(o *RunOptions) {
		if o.Completed == nil {
			o.Completed = make(map[screening.InformationType]bool, len(types))
		}
		for _, t := range types {
			o.Completed[t] = true
		}
	}
}

// Orchestrator runs degrees in order: the subject first, then direct
// connections, then a second hop for the Enhanced tier.
type Orchestrator struct {
	sar    *SARController
	cfg    config.InvestigationConfig
	logger *zap.Logger
}

// NewOrchestrator creates a degree orchestrator over a SAR controller
func NewOrchestrator(sar *SARController, cfg config.InvestigationConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{sar: sar, cfg: cfg, logger: logger}
}

// Run investigates the subject to the requested degree. Branch failures
// degrade the result instead of failing it; only cancellation aborts.
func (o *Orchestrator) Run(
	ctx context.Context,
	rctx values.RequestContext,
	subject *screening.Subject,
	tier screening.Tier,
	degree screening.Degree,
	rules *compliance.Ruleset,
	base *knowledge.Base,
	opts ...RunOption,
) (*Result, error) {
	options := NewRunOptions(opts...)

	result := &Result{
		SubjectStates: make(map[screening.InformationType]*screening.SARState),
		Base:          base,
		Graph:         profile.NewEntityGraph(),
	}

	o.seedSubjectClaims(base, subject)

	// D1: every permitted info type for the subject, phase by phase.
	for _, phase := range []screening.InfoPhase{screening.PhaseFoundation, screening.PhaseRecords, screening.PhaseIntelligence} {
		states, err := o.runPhase(ctx, rctx, subject, tier, rules, base, phase, options)
		if err != nil {
			return result, err
		}
		for t, s := range states {
			result.SubjectStates[t] = s
		}
	}

	connections := o.extractConnections(base)
	for _, c := range connections {
		base.AddConnection(c)
		result.Graph.AddEdge(profile.Edge{
			From:           subject.ID,
			To:             c.EntityID,
			ConnectionType: c.ConnectionType,
			Strength:       c.Relevance,
		})
	}

	if degree < screening.DegreeD2 {
		return result, nil
	}

	// D2: direct connections, capped and ranked by relevance.
	queue := o.rankAndCap(connections)
	branches, err := o.runBranches(ctx, rctx, subject, tier, rules, queue, screening.DegreeD2)
	if err != nil {
		return result, err
	}
	result.Branches = append(result.Branches, branches...)

	if degree < screening.DegreeD3 {
		o.consolidate(result)
		return result, nil
	}

	// D3: one hop further from each D2 branch.
	var hop []knowledge.ConnectedEntity
	seen := make(map[uuid.UUID]bool, len(queue))
	seen[subject.ID] = true
	for _, c := range queue {
		seen[c.EntityID] = true
	}
	for _, branch := range branches {
		for _, c := range o.extractConnections(branch.Base) {
			if seen[c.EntityID] {
				continue
			}
			seen[c.EntityID] = true
			result.Graph.AddEdge(profile.Edge{
				From:           branch.EntityID,
				To:             c.EntityID,
				ConnectionType: c.ConnectionType,
				Strength:       c.Relevance,
			})
			hop = append(hop, c)
		}
	}
	d3Branches, err := o.runBranches(ctx, rctx, subject, tier, rules, o.rankAndCap(hop), screening.DegreeD3)
	if err != nil {
		return result, err
	}
	result.Branches = append(result.Branches, d3Branches...)

	o.consolidate(result)
	return result, nil
}

// runPhase runs one phase's info types concurrently. The phase only returns
// once every type reached a terminal state, preserving phase ordering.
func (o *Orchestrator) runPhase(
	ctx context.Context,
	rctx values.RequestContext,
	subject *screening.Subject,
	tier screening.Tier,
	rules *compliance.Ruleset,
	base *knowledge.Base,
	phase screening.InfoPhase,
	options *RunOptions,
) (map[screening.InformationType]*screening.SARState, error) {
	var mu sync.Mutex
	states := make(map[screening.InformationType]*screening.SARState)
	g, gctx := errgroup.WithContext(ctx)

	for _, infoType := range screening.TypesForPhase(phase) {
		if options.Completed[infoType] {
			continue
		}
		t := infoType
		g.Go(func() error {
			state, err := o.sar.Run(gctx, rctx, subject, tier, rules, base, t)
			if state != nil {
				mu.Lock()
				states[t] = state
				mu.Unlock()
				if options.Observer != nil && state.Phase.IsTerminal() {
					options.Observer(t, state)
				}
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return states, err
	}
	return states, nil
}

// runBranches investigates connected entities concurrently. A failed branch
// is marked degraded and the expansion continues.
func (o *Orchestrator) runBranches(
	ctx context.Context,
	rctx values.RequestContext,
	subject *screening.Subject,
	tier screening.Tier,
	rules *compliance.Ruleset,
	queue []knowledge.ConnectedEntity,
	degree screening.Degree,
) ([]Branch, error) {
	var (
		mu       sync.Mutex
		branches []Branch
	)
	g, gctx := errgroup.WithContext(ctx)

	for _, conn := range queue {
		c := conn
		g.Go(func() error {
			branch := o.runBranch(gctx, rctx, subject, tier, rules, c, degree)
			mu.Lock()
			branches = append(branches, branch)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return branches, err
	}
	if err := ctx.Err(); err != nil {
		return branches, err
	}

	sort.SliceStable(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, nil
}

func (o *Orchestrator) runBranch(
	ctx context.Context,
	rctx values.RequestContext,
	subject *screening.Subject,
	tier screening.Tier,
	rules *compliance.Ruleset,
	conn knowledge.ConnectedEntity,
	degree screening.Degree,
) Branch {
	branchSubject := &screening.Subject{
		ID:           conn.EntityID,
		TenantID:     subject.TenantID,
		Version:      1,
		Identifiers:  screening.Identifiers{FullName: conn.Name},
		Jurisdiction: subject.Jurisdiction,
		RoleCategory: screening.RoleOther,
	}
	branch := Branch{
		EntityID:       conn.EntityID,
		Name:           conn.Name,
		ConnectionType: conn.ConnectionType,
		Degree:         degree,
		Status:         profile.BranchComplete,
		States:         make(map[screening.InformationType]*screening.SARState),
		Base:           knowledge.NewBase(uuid.New()),
	}

	for _, infoType := range networkCheckTypes {
		if !rules.IsPermitted(infoType) {
			continue
		}
		state, err := o.sar.Run(ctx, rctx, branchSubject, tier, rules, branch.Base, infoType)
		if state != nil {
			branch.States[infoType] = state
		}
		if err != nil || stateDegraded(state) {
			branch.Status = profile.BranchDegraded
			if err != nil {
				o.logger.Warn("branch investigation failed",
					zap.String("entity", conn.Name),
					zap.String("connection_type", conn.ConnectionType),
					zap.Error(err))
			}
		}
	}
	return branch
}

func stateDegraded(state *screening.SARState) bool {
	if state == nil {
		return true
	}
	switch state.CompletionReason {
	case screening.ReasonProvidersExhausted, screening.ReasonDeadlineExceeded:
		return true
	}
	return false
}

// subjectClaimSource identifies facts taken from the subject's own intake
const subjectClaimSource = "subject_intake"

// seedSubjectClaims records the subject's identifier claims as self-reported
// identity facts. Provider results then corroborate or contradict them under
// source precedence instead of landing in an empty base.
func (o *Orchestrator) seedSubjectClaims(base *knowledge.Base, subject *screening.Subject) {
	for _, f := range base.AllFacts() {
		if f.SourceID == subjectClaimSource {
			return
		}
	}

	ids := subject.Identifiers
	claims := map[string]string{
		"name":             ids.FullName,
		"ssn_hash":         ids.SSNHash,
		"national_id_hash": ids.NationalIDHash,
	}
	if !ids.DateOfBirth.IsZero() {
		claims["dob"] = ids.DateOfBirth.Format("2006-01-02")
	}
	if len(ids.Addresses) > 0 {
		addr := ids.Addresses[0]
		claims["address"] = strings.TrimSpace(strings.Join([]string{addr.Line1, addr.City, addr.Region, addr.Country}, " "))
	}

	for field, value := range claims {
		if value == "" {
			continue
		}
		if _, err := base.AddFact(knowledge.Fact{
			InfoType:    screening.InfoIdentity,
			Field:       field,
			Value:       value,
			SourceID:    subjectClaimSource,
			SourceClass: knowledge.SourceSelfReport,
			Confidence:  0.6,
		}); err != nil {
			o.logger.Warn("failed to seed subject claim",
				zap.String("field", field),
				zap.Error(err))
		}
	}
}

// extractConnections derives connected entities from employer, associate and
// address facts. Entity IDs are stable across runs for the same name.
func (o *Orchestrator) extractConnections(base *knowledge.Base) []knowledge.ConnectedEntity {
	relevanceByType := map[string]float64{
		"employer":  0.9,
		"associate": 0.7,
		"address":   0.4,
	}
	fieldToType := map[string]string{
		"employer":  "employer",
		"associate": "associate",
		"address":   "address",
	}

	seen := make(map[string]bool)
	var out []knowledge.ConnectedEntity
	for _, f := range base.AllFacts() {
		connType, ok := fieldToType[f.Field]
		if !ok || f.Value == "" {
			continue
		}
		key := connType + "|" + values.NormalizeQueryInput(f.Value)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, knowledge.ConnectedEntity{
			EntityID:       uuid.NewSHA1(connectionNamespace, []byte(key)),
			Name:           f.Value,
			ConnectionType: connType,
			Relevance:      relevanceByType[connType],
			SourceFactIDs:  []uuid.UUID{f.ID},
		})
	}
	return out
}

// rankAndCap orders connections by descending relevance and applies the
// per-degree expansion cap.
func (o *Orchestrator) rankAndCap(connections []knowledge.ConnectedEntity) []knowledge.ConnectedEntity {
	ranked := append([]knowledge.ConnectedEntity(nil), connections...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Relevance > ranked[j].Relevance })
	if limit := o.cfg.NetworkMaxEntitiesPerDegree; limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func (o *Orchestrator) consolidate(result *Result) {
	for _, b := range result.Branches {
		if b.Status == profile.BranchDegraded {
			result.Degraded = true
			return
		}
	}
}
