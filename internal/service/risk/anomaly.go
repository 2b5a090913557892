package risk

import (
	"math"
	"sort"
	"strconv"

	"github.com/clearvet/screening-backend/internal/domain/knowledge"
)

const (
	systematicInconsistencyFloor = 4
	systematicAdjustment         = 10.0
	deceptionAdjustment          = 5.0
	outlierAdjustment            = 5.0
)

// detectAnomalies scores anomaly adjustments from the knowledge base:
// systematic inconsistency patterns, deception-shaped inconsistencies and
// statistical outliers over numeric fact distributions.
func detectAnomalies(base *knowledge.Base) (float64, []string) {
	var (
		adjustment float64
		labels     []string
	)

	inconsistencies := base.AllInconsistencies()
	if len(inconsistencies) >= systematicInconsistencyFloor {
		adjustment += systematicAdjustment
		labels = append(labels, "systematic_inconsistency")
	}

	timeline, credential := false, false
	for _, inc := range inconsistencies {
		switch inc.Kind {
		case knowledge.InconsistencyTimeline:
			timeline = true
		case knowledge.InconsistencyCredentialInflation:
			credential = true
		}
	}
	if timeline {
		adjustment += deceptionAdjustment
		labels = append(labels, "deception_timeline")
	}
	if credential {
		adjustment += deceptionAdjustment
		labels = append(labels, "deception_credential")
	}

	for _, field := range outlierFields(base) {
		adjustment += outlierAdjustment
		labels = append(labels, "statistical_outlier:"+field)
	}
	return adjustment, labels
}

// outlierFields returns numeric fact fields whose maximum exceeds the mean
// by more than two standard deviations. Small samples are skipped.
func outlierFields(base *knowledge.Base) []string {
	byField := make(map[string][]float64)
	for _, f := range base.AllFacts() {
		if v, err := strconv.ParseFloat(f.Value, 64); err == nil {
			byField[f.Field] = append(byField[f.Field], v)
		}
	}

	var out []string
	for field, vals := range byField {
		if len(vals) < 4 {
			continue
		}
		mean := 0.0
		for _, v := range vals {
			mean += v
		}
		mean /= float64(len(vals))

		variance := 0.0
		for _, v := range vals {
			variance += (v - mean) * (v - mean)
		}
		stddev := math.Sqrt(variance / float64(len(vals)))
		if stddev == 0 {
			continue
		}

		max := vals[0]
		for _, v := range vals[1:] {
			if v > max {
				max = v
			}
		}
		if max > mean+2*stddev {
			out = append(out, field)
		}
	}
	sort.Strings(out)
	return out
}
