package entityres

import (
	"strings"

	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
)

// compositeScore weighs name, date of birth and address agreement between a
// subject claim and a candidate entity's canonical identifiers. Name and
// address use normalized edit-distance similarity; date of birth is exact.
func compositeScore(claim, candidate screening.Identifiers) float64 {
	score := nameWeight * stringSimilarity(claim.FullName, candidate.FullName)

	if !claim.DateOfBirth.IsZero() && !candidate.DateOfBirth.IsZero() {
		cy, cm, cd := claim.DateOfBirth.Date()
		ey, em, ed := candidate.DateOfBirth.Date()
		if cy == ey && cm == em && cd == ed {
			score += dobWeight
		}
	}

	best := 0.0
	for _, ca := range claim.Addresses {
		for _, ea := range candidate.Addresses {
			if s := stringSimilarity(flattenAddress(ca), flattenAddress(ea)); s > best {
				best = s
			}
		}
	}
	return score + addressWeight*best
}

// stringSimilarity is 1 minus the Levenshtein distance over the normalized
// forms, scaled by the longer length. Empty inputs score zero.
func stringSimilarity(a, b string) float64 {
	a = values.NormalizeQueryInput(a)
	b = values.NormalizeQueryInput(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	ra, rb := []rune(a), []rune(b)
	longer := len(ra)
	if len(rb) > longer {
		longer = len(rb)
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longer)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func flattenAddress(a screening.Address) string {
	return strings.TrimSpace(strings.Join([]string{a.Line1, a.City, a.Region, a.PostalCode, a.Country}, " "))
}
