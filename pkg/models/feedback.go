package models

import "time"

// EntityType enumerates what kind of extracted item a FeedbackExample judges.
type EntityType string

const (
	EntityClaim   EntityType = "claim"
	EntityPerson  EntityType = "person"
	EntityJargon  EntityType = "jargon"
	EntityConcept EntityType = "concept"
)

// Verdict is a human reviewer's accept/reject call on an item.
type Verdict string

const (
	VerdictAccept Verdict = "accept"
	VerdictReject Verdict = "reject"
)

// FeedbackExample is a single piece of user feedback, stored append-only and
// exclusively owned by the Taste Engine's vector store.
type FeedbackExample struct {
	ID             string     `json:"id"`
	EntityType     EntityType `json:"entity_type"`
	EntityText     string     `json:"entity_text"`
	Verdict        Verdict    `json:"verdict"`
	ReasonCategory string     `json:"reason_category"`
	UserNotes      string     `json:"user_notes,omitempty"`
	SourceID       string     `json:"source_id,omitempty"`
	IsGolden       bool       `json:"is_golden"`
	CreatedAt      time.Time  `json:"created_at"`
}

// PendingFeedback is a row in the append-only pending_feedback durable queue
// that the Feedback Intake Worker (C7) drains.
type PendingFeedback struct {
	ID          int64      `json:"id"`
	Payload     []byte     `json:"payload"` // raw JSON of a FeedbackExample
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	RetryCount  int        `json:"retry_count"`
	Failed      bool       `json:"failed"`
	LastError   string     `json:"last_error,omitempty"`
}

// SimilarExample is a vector-search hit against the Taste Engine's store.
type SimilarExample struct {
	Text       string            `json:"text"`
	Similarity float64           `json:"similarity"`
	Verdict    Verdict           `json:"verdict"`
	Metadata   map[string]string `json:"metadata"`
}
