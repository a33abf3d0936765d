// Package models holds the shared domain types that flow through the Engine:
// episodes and segments ingested from collaborators, the claims/jargon/people
// mined from them, evaluated claims, jobs/runs, LLM audit records, feedback
// examples, and questions. Types here are plain structs with no persistence
// logic — repositories in pkg/store translate to and from SQL rows.
package models

import "time"

// Episode is the addressable unit of ingestion. It is created once per
// external source and never mutated by the Engine; collaborators may enrich
// its metadata but the Engine only reads it.
type Episode struct {
	SourceID string    `json:"source_id"`
	Title    string    `json:"title"`
	Duration float64   `json:"duration_seconds"`
	Speakers []string  `json:"speakers"`
	Segments []Segment `json:"segments,omitempty"`
}

// Segment is an ordered, non-overlapping child of an Episode.
type Segment struct {
	EpisodeSourceID string  `json:"episode_source_id"`
	SegmentID       string  `json:"segment_id"`
	Speaker         string  `json:"speaker"`
	T0              float64 `json:"t0_seconds"`
	T1              float64 `json:"t1_seconds"`
	Text            string  `json:"text"`
}

// Duration returns the segment's length in seconds.
func (s Segment) Duration() float64 {
	return s.T1 - s.T0
}

// ValidateOrdering checks the Episode invariant that segments are
// non-overlapping and ordered by t0.
func (e Episode) ValidateOrdering() error {
	for i := 1; i < len(e.Segments); i++ {
		prev, cur := e.Segments[i-1], e.Segments[i]
		if cur.T0 < prev.T0 {
			return &OrderingError{Prev: prev.SegmentID, Cur: cur.SegmentID, Reason: "out of t0 order"}
		}
		if cur.T0 < prev.T1 {
			return &OrderingError{Prev: prev.SegmentID, Cur: cur.SegmentID, Reason: "overlaps previous segment"}
		}
	}
	return nil
}

// OrderingError reports a Segment invariant violation.
type OrderingError struct {
	Prev, Cur, Reason string
}

func (e *OrderingError) Error() string {
	return "segment ordering: " + e.Cur + " after " + e.Prev + ": " + e.Reason
}

// EpisodeMeta is metadata collaborators may attach; kept separate from
// Episode itself since the Engine never writes it.
type EpisodeMeta struct {
	SourceID  string    `json:"source_id"`
	CreatedAt time.Time `json:"created_at"`
}
