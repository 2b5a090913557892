package values

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"github.com/clearvet/screening-backend/internal/domain/errors"
)

// Fingerprint is the stable hash over (provider, check type, normalized query
// inputs) used for cache and single-flight keying. Tenant-scoped inputs are
// folded in by the caller so tenant-specific entries never collide with
// tenant-agnostic ones.
type Fingerprint struct {
	value string
}

// ComputeFingerprint derives a fingerprint from the provider, check type and
// query parameters. Parameters are normalized and serialized in sorted key
// order so logically identical queries always hash identically.
func ComputeFingerprint(providerID, checkType string, params map[string]string) (Fingerprint, error) {
	if providerID == "" {
		return Fingerprint{}, errors.NewValidationError("MISSING_PROVIDER", "provider ID is required for fingerprint")
	}
	if checkType == "" {
		return Fingerprint{}, errors.NewValidationError("MISSING_CHECK_TYPE", "check type is required for fingerprint")
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(providerID)
	b.WriteByte('|')
	b.WriteString(checkType)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(NormalizeQueryInput(params[k]))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return Fingerprint{value: hex.EncodeToString(sum[:])}, nil
}

// NormalizeQueryInput pins the normalization standard for fingerprint inputs:
// lowercase, diacritics stripped to ASCII where possible, punctuation removed,
// interior whitespace collapsed to single spaces. Locale-specific name and
// address formatting collapses to the same key under these rules.
func NormalizeQueryInput(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(foldDiacritic(r))
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// foldDiacritic maps common Latin-1 accented letters onto their ASCII base.
// Characters outside the table pass through unchanged.
func foldDiacritic(r rune) rune {
	switch r {
	case 'à', 'á', 'â', 'ã', 'ä', 'å':
		return 'a'
	case 'è', 'é', 'ê', 'ë':
		return 'e'
	case 'ì', 'í', 'î', 'ï':
		return 'i'
	case 'ò', 'ó', 'ô', 'õ', 'ö':
		return 'o'
	case 'ù', 'ú', 'û', 'ü':
		return 'u'
	case 'ñ':
		return 'n'
	case 'ç':
		return 'c'
	case 'ý', 'ÿ':
		return 'y'
	}
	return r
}

// MustFingerprint panics on invalid input; intended for tests and literals
func MustFingerprint(providerID, checkType string, params map[string]string) Fingerprint {
	fp, err := ComputeFingerprint(providerID, checkType, params)
	if err != nil {
		panic(err)
	}
	return fp
}

func (f Fingerprint) String() string { return f.value }
func (f Fingerprint) IsZero() bool   { return f.value == "" }

func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.value == other.value
}
