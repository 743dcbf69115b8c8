// Package intent implements the tiered intent classifier: deterministic
// patterns, fuzzy keyword matching, semantic similarity, and LLM fallback.
package intent

import (
	"time"

	"github.com/rainbow-desk/rainbow/internal/language"
)

// Tier identifies which classifier stage produced a result.
type Tier string

const (
	Tier1 Tier = "T1" // deterministic regex patterns
	Tier2 Tier = "T2" // fuzzy keyword matching
	Tier3 Tier = "T3" // semantic embedding similarity
	Tier4 Tier = "T4" // LLM classification
)

// Unknown is the intent returned when every tier fails.
const Unknown = "unknown"

// Result is the outcome of one classification.
type Result struct {
	Intent       string
	Confidence   float64
	Tier         Tier
	DetectedLang language.Detection
	Model        string // set only for T4
	ResponseTime time.Duration
}

// TierSettings governs one tier without code change.
type TierSettings struct {
	Enabled         bool    `json:"enabled"`
	ContextMessages int     `json:"contextMessages"`
	Threshold       float64 `json:"threshold,omitempty"` // T2/T3 only
}

// Settings holds the per-tier configuration.
type Settings struct {
	T1 TierSettings `json:"t1"`
	T2 TierSettings `json:"t2"`
	T3 TierSettings `json:"t3"`
	T4 TierSettings `json:"t4"`
}

// DefaultSettings returns the standard tier configuration.
func DefaultSettings() Settings {
	return Settings{
		T1: TierSettings{Enabled: true, ContextMessages: 0},
		T2: TierSettings{Enabled: true, ContextMessages: 0, Threshold: 0.80},
		T3: TierSettings{Enabled: true, ContextMessages: 2, Threshold: 0.70},
		T4: TierSettings{Enabled: true, ContextMessages: 5},
	}
}
