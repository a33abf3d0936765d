// Package batch is the Batch Orchestrator (C5): three-stage (mine →
// evaluate → remine) pipeline over the Provider Abstraction's BatchProvider,
// grounded end to end on original_source's batch_pipeline.py.
package batch

import (
	"fmt"
	"strings"
)

// Stage is which pipeline stage produced/consumes a batch item.
type Stage string

const (
	StageMine     Stage = "mine"
	StageEvaluate Stage = "evaluate"
	StageRemine   Stage = "remine"
)

// CustomID is the Engine's single structured custom_id shape, replacing the
// original's inconsistent "source:segment" / "flagship:source" /
// "remine:source:segment" string formats with one parseable type (spec.md §9
// OQ2).
type CustomID struct {
	Stage     Stage
	SourceID  string
	SegmentID string // empty for StageEvaluate, which is per-episode
}

// String formats a CustomID as "stage:source_id[:segment_id]".
func (c CustomID) String() string {
	if c.SegmentID == "" {
		return fmt.Sprintf("%s:%s", c.Stage, c.SourceID)
	}
	return fmt.Sprintf("%s:%s:%s", c.Stage, c.SourceID, c.SegmentID)
}

// ParseCustomID parses a CustomID previously produced by String.
func ParseCustomID(s string) (CustomID, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return CustomID{}, fmt.Errorf("malformed custom_id %q: want at least stage:source_id", s)
	}
	id := CustomID{Stage: Stage(parts[0]), SourceID: parts[1]}
	if len(parts) == 3 {
		id.SegmentID = parts[2]
	}
	switch id.Stage {
	case StageMine, StageEvaluate, StageRemine:
	default:
		return CustomID{}, fmt.Errorf("malformed custom_id %q: unknown stage %q", s, parts[0])
	}
	return id, nil
}
