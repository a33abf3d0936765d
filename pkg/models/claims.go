package models

// ClaimType enumerates the kind of assertion a claim makes.
type ClaimType string

const (
	ClaimFactual   ClaimType = "factual"
	ClaimCausal    ClaimType = "causal"
	ClaimNormative ClaimType = "normative"
	ClaimForecast  ClaimType = "forecast"
	ClaimDefinition ClaimType = "definition"
)

// Stance enumerates how the speaker relates to a claim.
type Stance string

const (
	StanceAsserts   Stance = "asserts"
	StanceDenies    Stance = "denies"
	StanceHedges    Stance = "hedges"
	StanceQuestions Stance = "questions"
)

// EvidenceSpan points at a run of text within the source segment that backs
// an extracted item. The Miner prompt asks for at least one span per
// Claim/Jargon/Person/MentalModel, but the Miner does not check it: an item
// with an empty evidence list or an empty Quote is kept, not dropped.
type EvidenceSpan struct {
	Quote string `json:"quote"`
	Start int    `json:"start,omitempty"`
	End   int    `json:"end,omitempty"`
}

// Claim is a standalone assertion extracted from a segment, with provenance.
type Claim struct {
	ClaimText    string         `json:"claim_text"`
	ClaimType    ClaimType      `json:"claim_type"`
	Stance       Stance         `json:"stance"`
	ContextQuote string         `json:"context_quote"`
	Timestamp    float64        `json:"timestamp"`
	EvidenceSpans []EvidenceSpan `json:"evidence_spans"`
}

// JargonTerm is a domain term the Miner flagged as worth surfacing.
type JargonTerm struct {
	Term          string         `json:"term"`
	Definition    string         `json:"definition,omitempty"`
	ContextQuote  string         `json:"context_quote"`
	Timestamp     float64        `json:"timestamp"`
	EvidenceSpans []EvidenceSpan `json:"evidence_spans"`
}

// Person is a named individual referenced in a segment.
type Person struct {
	Name          string         `json:"name"`
	Role          string         `json:"role,omitempty"`
	ContextQuote  string         `json:"context_quote"`
	Timestamp     float64        `json:"timestamp"`
	EvidenceSpans []EvidenceSpan `json:"evidence_spans"`
}

// MentalModel is a named framework or heuristic referenced in a segment.
type MentalModel struct {
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	ContextQuote  string         `json:"context_quote"`
	Timestamp     float64        `json:"timestamp"`
	EvidenceSpans []EvidenceSpan `json:"evidence_spans"`
}

// MinerOutput is the Miner's (C3) output for a single segment.
type MinerOutput struct {
	EpisodeSourceID string        `json:"episode_source_id"`
	SegmentID       string        `json:"segment_id"`
	Claims          []Claim       `json:"claims"`
	Jargon          []JargonTerm  `json:"jargon"`
	People          []Person      `json:"people"`
	MentalModels    []MentalModel `json:"mental_models"`
	// EmptyWithError marks a segment whose mine result stayed schema-invalid
	// after one repair attempt (spec.md §4.3 error semantics). Such segments
	// are eligible for re-mine (C5 stage 3).
	EmptyWithError bool   `json:"empty_with_error,omitempty"`
	ErrorReason    string `json:"error_reason,omitempty"`
}

// Tier buckets an EvaluatedClaim's importance per spec.md §3.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
)

// TierFor returns the tier for an importance score, or "" if the claim
// should be rejected (importance < 4).
func TierFor(importance int) Tier {
	switch {
	case importance >= 8:
		return TierA
	case importance >= 6:
		return TierB
	case importance >= 4:
		return TierC
	default:
		return ""
	}
}

// Decision is the Evaluator's (C4) accept/reject verdict on a claim.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// EvaluatedClaim is a Claim after flagship evaluation: scored, tiered, and
// ranked within its episode.
type EvaluatedClaim struct {
	ClaimID          string    `json:"claim_id"`
	EpisodeSourceID  string    `json:"episode_source_id"`
	SegmentID        string    `json:"segment_id"`
	Canonical        string    `json:"canonical"`
	ClaimText        string    `json:"claim_text"`
	ClaimType        ClaimType `json:"claim_type"`
	Decision         Decision  `json:"decision"`
	Importance       int       `json:"importance"`
	// PreFilterImportance preserves the score before any Taste Filter boost
	// was applied, for audit (spec.md §9 redesign flag: boost applied once,
	// at a single well-defined point, with the original preserved).
	PreFilterImportance int    `json:"pre_filter_importance"`
	Novelty             int    `json:"novelty"`
	ConfidenceFinal     int    `json:"confidence_final"`
	Tier                Tier   `json:"tier"`
	Rank                int    `json:"rank"`
	Reasoning           string `json:"reasoning"`
	UpdatedAt           int64  `json:"updated_at"` // unix nanos, optimistic-concurrency token
}

// SummaryAssessment is the Evaluator's per-episode rollup.
type SummaryAssessment struct {
	EpisodeSourceID     string         `json:"episode_source_id"`
	TotalClaimsProcessed int           `json:"total_claims_processed"`
	ClaimsAccepted      int            `json:"claims_accepted"`
	ClaimsRejected      int            `json:"claims_rejected"`
	KeyThemes           []string       `json:"key_themes"`
	AverageScores       AverageScores  `json:"average_scores"`
}

// AverageScores holds per-episode mean scores across accepted claims.
type AverageScores struct {
	Importance float64 `json:"importance"`
	Novelty    float64 `json:"novelty"`
	Confidence float64 `json:"confidence"`
}
