// Package risk turns an investigation's accumulated evidence into a scored,
// deterministic risk assessment through a staged pipeline: finding
// extraction, anomaly detection, pattern recognition, connection analysis
// and final aggregation.
package risk

import (
	"context"
	"fmt"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	"github.com/clearvet/screening-backend/internal/domain/finding"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/service/investigation"
	"go.uber.org/zap"
)

const maxNetworkAdjustment = 15.0

// Pipeline is the risk assessment pipeline. Given identical facts and
// ruleset it produces identical scores and finding IDs.
type Pipeline struct {
	auditLog *audit.Logger
	logger   *zap.Logger
}

// NewPipeline creates the risk pipeline
func NewPipeline(auditLog *audit.Logger, logger *zap.Logger) *Pipeline {
	return &Pipeline{auditLog: auditLog, logger: logger}
}

// Assess consolidates an investigation into a risk assessment
func (p *Pipeline) Assess(
	ctx context.Context,
	rctx values.RequestContext,
	role screening.RoleCategory,
	inv *investigation.Result,
) (*Assessment, error) {
	findings := BuildFindings(inv.Base, role)

	anomalyAdj, anomalies := detectAnomalies(inv.Base)
	patternAdj, patterns := recognizePatterns(findings)
	networkAdj, networkFindings := p.analyzeConnections(inv, role)

	base := 0.0
	for _, f := range findings {
		base += f.RelevanceToRole * f.Severity.Weight()
	}

	findings = append(findings, networkFindings...)

	final := clamp(base+patternAdj+anomalyAdj+networkAdj, 0, 100)
	assessment := &Assessment{
		FinalScore:        final,
		BaseScore:         base,
		PatternAdjustment: patternAdj,
		AnomalyAdjustment: anomalyAdj,
		NetworkAdjustment: networkAdj,
		Recommendation:    profile.LevelForScore(final),
		Findings:          findings,
		Anomalies:         anomalies,
		Patterns:          patterns,
	}

	p.emitAssessed(ctx, rctx, assessment)
	return assessment, nil
}

// analyzeConnections scores network risk from connected entities' findings,
// weighted by connection closeness. Each risky branch also yields a network
// finding; branch findings enter the score only through the adjustment.
func (p *Pipeline) analyzeConnections(inv *investigation.Result, role screening.RoleCategory) (float64, []finding.Finding) {
	var (
		adjustment float64
		out        []finding.Finding
	)
	for _, branch := range inv.Branches {
		branchFindings := BuildFindings(branch.Base, role)
		if len(branchFindings) == 0 {
			continue
		}
		maxSeverity := branchFindings[0].Severity
		for _, f := range branchFindings[1:] {
			if f.Severity > maxSeverity {
				maxSeverity = f.Severity
			}
		}

		weight := connectionWeight[branch.ConnectionType]
		if weight == 0 {
			weight = 0.5
		}
		adjustment += maxSeverity.Weight() * weight * 0.1

		supporting := branchFindings[0].SupportingFacts
		built, err := finding.New(finding.CategoryNetwork, networkSeverity(maxSeverity),
			fmt.Sprintf("connected %s %q carries %s-severity findings", branch.ConnectionType, branch.Name, maxSeverity),
			supporting)
		if err != nil {
			continue
		}
		out = append(out, built.
			WithSubcategory("network_risk").
			WithRelevance(relevanceFor(role, finding.CategoryNetwork)).
			WithDeterministicID())
	}
	if adjustment > maxNetworkAdjustment {
		adjustment = maxNetworkAdjustment
	}
	return adjustment, out
}

// networkSeverity steps branch severity down one level; a connection's risk
// is real but indirect.
func networkSeverity(branchMax finding.Severity) finding.Severity {
	if branchMax > finding.SeverityLow {
		return branchMax - 1
	}
	return finding.SeverityLow
}

func (p *Pipeline) emitAssessed(ctx context.Context, rctx values.RequestContext, a *Assessment) {
	if p.auditLog == nil {
		return
	}
	event, err := audit.NewEvent(audit.EventRiskAssessed, rctx.TenantID(), rctx.CorrelationID(),
		rctx.CorrelationID().String(), "risk_assessment", string(audit.EventRiskAssessed))
	if err != nil {
		return
	}
	event.WithMetadata("final_score", a.FinalScore).
		WithMetadata("base_score", a.BaseScore).
		WithMetadata("recommendation", string(a.Recommendation)).
		WithMetadata("findings", len(a.Findings))
	if err := p.auditLog.Emit(ctx, event); err != nil {
		p.logger.Warn("failed to emit risk assessment event", zap.Error(err))
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
