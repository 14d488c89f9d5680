// Package domain defines the core interfaces and types for Foodscan.
package domain

// RiskLevel is the canonical risk classification for an additive.
type RiskLevel string

const (
	RiskHigh    RiskLevel = "high"
	RiskMedium  RiskLevel = "medium"
	RiskLow     RiskLevel = "low"
	RiskUnknown RiskLevel = "unknown"
)

// AdditiveRecord is the resolved evidence record for a single additive.
// Built by the offline import pipeline; read-only at request time.
type AdditiveRecord struct {
	// ENumber is the canonical identifier, e.g. "E150D".
	ENumber string `json:"eNumber"`

	Name        string    `json:"name"`
	RiskLevel   RiskLevel `json:"riskLevel"`
	Description string    `json:"description,omitempty"`

	// FunctionalClass is the regulatory class, e.g. "colour", "emulsifier".
	FunctionalClass string `json:"functionalClass,omitempty"`

	// Source citation for the evidence behind the risk classification.
	SourceTitle string `json:"sourceTitle,omitempty"`
	SourceURL   string `json:"sourceUrl,omitempty"`
	SourceDate  string `json:"sourceDate,omitempty"`

	// ADI is the acceptable daily intake in mg per kg body weight per day.
	ADI *float64 `json:"adi,omitempty"`

	// Exposure flags: whether estimated dietary exposure exceeds the ADI.
	ExposureMeanGtADI *bool `json:"exposureMeanGtAdi,omitempty"`
	ExposureP95GtADI  *bool `json:"exposureP95GtAdi,omitempty"`

	// Tags derived from the free-text evidence at import time.
	Organs       []string `json:"organs,omitempty"`
	HealthTopics []string `json:"healthTopics,omitempty"`

	// MatchedFrom records the original identifier when the record was
	// resolved via its base key rather than its exact form, e.g. a lookup
	// for "E322I" matched against the stored "E322" row.
	MatchedFrom string `json:"matchedFrom,omitempty"`
}

// Authorisation is the coarser fallback record from the regulatory
// authorisation list, used when no curated evidence row exists.
type Authorisation struct {
	ENumber        string   `json:"eNumber"`
	Name           string   `json:"name"`
	Group          string   `json:"group"`
	BasicRiskLevel string   `json:"basicRiskLevel"`
	ADI            *float64 `json:"adi,omitempty"`
	Message        string   `json:"message,omitempty"`
	SourceURL      string   `json:"sourceUrl,omitempty"`
}
