package cache

import (
	"time"

	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// Freshness is the age-based status of a cached provider result
type Freshness string

const (
	Fresh   Freshness = "fresh"
	Stale   Freshness = "stale"
	Expired Freshness = "expired"
)

// Decision tells the gateway what to do with a cache hit
type Decision string

const (
	DecisionReturnCached Decision = "return_cached"
	DecisionReturnStale  Decision = "return_stale" // cached result flagged stale=true
	DecisionRefresh      Decision = "refresh"
)

// window is the fresh/stale age pair for one check type
type window struct {
	fresh time.Duration
	stale time.Duration
}

const day = 24 * time.Hour

// freshnessWindows is the standard-tier policy table. Sanctions results are
// never cached. Types without an explicit row in the specification inherit
// the window of their closest peer: identity shares employment's windows,
// civil shares criminal's, licenses shares regulatory's, digital_footprint
// shares adverse_media's.
var freshnessWindows = map[screening.InformationType]window{
	screening.InfoSanctions:        {0, 0},
	screening.InfoAdverseMedia:     {24 * time.Hour, 7 * day},
	screening.InfoDigitalFootprint: {24 * time.Hour, 7 * day},
	screening.InfoCriminal:         {7 * day, 30 * day},
	screening.InfoCivil:            {7 * day, 30 * day},
	screening.InfoRegulatory:       {30 * day, 90 * day},
	screening.InfoLicenses:         {30 * day, 90 * day},
	screening.InfoFinancial:        {30 * day, 90 * day},
	screening.InfoEmployment:       {90 * day, 180 * day},
	screening.InfoIdentity:         {90 * day, 180 * day},
	screening.InfoEducation:        {365 * day, 730 * day},
}

// Windows returns the fresh and stale windows for a check type under a
// tier. The Enhanced tier tightens the fresh window to 50% and the stale
// window to 70% of standard.
func Windows(checkType screening.InformationType, tier screening.Tier) (fresh, stale time.Duration) {
	w := freshnessWindows[checkType]
	if tier == screening.TierEnhanced {
		return w.fresh / 2, time.Duration(float64(w.stale) * 0.7)
	}
	return w.fresh, w.stale
}

// Classify computes the freshness status of an entry of the given age
func Classify(checkType screening.InformationType, tier screening.Tier, age time.Duration) Freshness {
	fresh, stale := Windows(checkType, tier)
	switch {
	case age < fresh:
		return Fresh
	case age < stale:
		return Stale
	default:
		return Expired
	}
}

// Decide maps freshness onto the gateway action. FRESH returns the cached
// result; EXPIRED must refresh; STALE refreshes for the Enhanced tier and
// otherwise returns the cached result flagged stale.
func Decide(checkType screening.InformationType, tier screening.Tier, age time.Duration) Decision {
	switch Classify(checkType, tier, age) {
	case Fresh:
		return DecisionReturnCached
	case Stale:
		if tier == screening.TierEnhanced {
			return DecisionRefresh
		}
		return DecisionReturnStale
	default:
		return DecisionRefresh
	}
}
