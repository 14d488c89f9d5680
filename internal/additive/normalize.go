// Package additive provides canonicalization of additive identifiers and
// risk classifications.
package additive

import (
	"regexp"
	"strings"

	"github.com/foodscan/foodscan/internal/domain"
)

var (
	langPrefixRe = regexp.MustCompile(`(?i)^[a-z]{2}:\s*`)
	canonicalRe  = regexp.MustCompile(`^E(\d{3,4})([A-Z]?)$`)
	leadDigitRe  = regexp.MustCompile(`^\d`)
	nonDigitRe   = regexp.MustCompile(`\D`)
	plausibleRe  = regexp.MustCompile(`^[A-Z0-9][A-Z0-9\-]*$`)
)

// CollapseSet lists E-number bases whose letter variants all collapse to the
// bare base. The general rule keeps single-letter suffixes as distinct
// official identifiers (E150D is a different regulated colourant than E150C),
// but some families, like the lecithins under E322, store only the base row
// and treat letter variants as informal subtypes.
type CollapseSet map[string]struct{}

// DefaultCollapseSet covers the lecithins family. Extend via NewCollapseSet
// when new families need the same treatment.
func DefaultCollapseSet() CollapseSet {
	return NewCollapseSet("E322")
}

// NewCollapseSet builds a collapse set from normalized base identifiers.
func NewCollapseSet(bases ...string) CollapseSet {
	s := make(CollapseSet, len(bases))
	for _, b := range bases {
		if n, ok := Normalize(b); ok {
			s[n] = struct{}{}
		}
	}
	return s
}

// Contains reports whether base is in the collapse set.
func (s CollapseSet) Contains(base string) bool {
	_, ok := s[base]
	return ok
}

// Normalize converts a raw additive token into its canonical form:
// strip a language-tag prefix and whitespace, uppercase, remove internal
// spaces, prefix a leading digit with E. Tokens matching E + 3-4 digits +
// optional letter are canonical; other plausible identifiers pass through
// unchanged; garbage returns ("", false).
//
// Normalize is idempotent and never panics. Callers must treat a false
// result as "drop this item", never as a fatal condition.
func Normalize(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	s = langPrefixRe.ReplaceAllString(s, "")
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return "", false
	}

	if leadDigitRe.MatchString(s) {
		s = "E" + s
	}

	if canonicalRe.MatchString(s) {
		return s, true
	}

	// Not an E-number but still a usable identifier (e.g. "ASPARTAME").
	if plausibleRe.MatchString(s) {
		return s, true
	}

	return "", false
}

// BaseOf strips the trailing letter suffix from a canonical identifier.
// Families in the collapse set lose the suffix entirely; all other families
// keep it, since the suffix denotes a distinct regulated substance.
func BaseOf(id string, collapse CollapseSet) string {
	m := canonicalRe.FindStringSubmatch(id)
	if m == nil {
		return id
	}
	base := "E" + m[1]
	suffix := m[2]
	if suffix == "" {
		return base
	}
	if collapse.Contains(base) {
		return base
	}
	return base + suffix
}

// DigitsOf returns only the digits of an identifier, the coarsest lookup key.
func DigitsOf(id string) string {
	return nonDigitRe.ReplaceAllString(id, "")
}

// NormalizeRiskLevel canonicalizes a free-form risk label to a RiskLevel.
func NormalizeRiskLevel(raw string) domain.RiskLevel {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch domain.RiskLevel(s) {
	case domain.RiskHigh, domain.RiskMedium, domain.RiskLow, domain.RiskUnknown:
		return domain.RiskLevel(s)
	}
	switch {
	case s == "":
		return domain.RiskUnknown
	case strings.Contains(s, "high"):
		return domain.RiskHigh
	case strings.Contains(s, "med"), strings.Contains(s, "moderate"), strings.Contains(s, "emerging"):
		return domain.RiskMedium
	case strings.Contains(s, "low"), strings.Contains(s, "no risk"), strings.Contains(s, "none"):
		return domain.RiskLow
	}
	return domain.RiskUnknown
}

// NormalizeAll normalizes and deduplicates a raw token list, preserving input
// order. Unparseable tokens are dropped silently.
func NormalizeAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		id, ok := Normalize(r)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
