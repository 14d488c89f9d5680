package domain

// ConditionKind distinguishes the two kinds of rule conditions.
type ConditionKind string

const (
	// ConditionPattern is a case-insensitive regular expression matched
	// against individual input items. Invalid patterns degrade to
	// substring containment rather than failing evaluation.
	ConditionPattern ConditionKind = "pattern"

	// ConditionAggregate is a named predicate evaluated over the whole
	// item list, e.g. "two or more intense sweeteners present".
	ConditionAggregate ConditionKind = "aggregate"
)

// RuleCondition is one condition of an interaction rule.
type RuleCondition struct {
	Kind ConditionKind `json:"kind"`

	// Pattern holds the regex/substring pattern for ConditionPattern, or
	// the predicate expression for ConditionAggregate.
	Pattern string `json:"pattern"`
}

// InteractionRule describes a combination of ingredients/additives believed
// to compound a health risk. A rule fires at most once per request, and only
// when every condition is satisfied.
type InteractionRule struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Confidence string `json:"confidence,omitempty"`

	// Severity may be stored directly as a label (high/medium/low/info).
	// When empty it is derived from Weight.
	Severity string `json:"severity,omitempty"`

	// Weight is the stored integer risk weight (0-3).
	Weight int `json:"weight"`

	// Rationale explains why the combination is risky; Guidance tells the
	// user what to do about it.
	Rationale string `json:"rationale,omitempty"`
	Guidance  string `json:"guidance,omitempty"`

	Conditions []RuleCondition  `json:"conditions"`
	Sources    []EvidenceSource `json:"sources,omitempty"`

	Enabled bool `json:"enabled"`
}

// EvidenceSource is a literature or regulatory reference attached to one or
// more interaction rules.
type EvidenceSource struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	URL       string `json:"url"`
	Publisher string `json:"publisher,omitempty"`
	Year      string `json:"year,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Match is a fired interaction rule with the evidence of why it fired.
type Match struct {
	RuleID   string `json:"ruleId"`
	Title    string `json:"title,omitempty"`
	Severity string `json:"severity"`
	Weight   int    `json:"weight"`

	// MatchedItems are the distinct input items that satisfied the rule's
	// conditions, in input order.
	MatchedItems []string `json:"matchedItems"`

	// MatchedOn maps each satisfied condition pattern to the item (or
	// aggregate description) that satisfied it.
	MatchedOn map[string]string `json:"matchedOn,omitempty"`

	Rationale string           `json:"rationale,omitempty"`
	Guidance  string           `json:"guidance,omitempty"`
	Sources   []EvidenceSource `json:"sources,omitempty"`
}

// Severity labels ordered from most to least severe.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
	SeverityInfo   = "info"
)

// SeverityFromWeight maps a stored integer risk weight to a severity label.
func SeverityFromWeight(weight int) string {
	switch {
	case weight >= 3:
		return SeverityHigh
	case weight == 2:
		return SeverityMedium
	case weight == 1:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// SeverityRank orders severity labels for sorting; higher is more severe.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// InteractionSummary is the aggregate outcome of one rule evaluation.
type InteractionSummary struct {
	Score   int    `json:"score"`
	Grade   string `json:"grade"`
	Matches int    `json:"matches"`
	Method  string `json:"method"`
}
