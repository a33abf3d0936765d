package schema

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// builtinSchemas enumerates every LLM I/O shape the Engine validates,
// per spec.md §4.2. miner_output carries both a versioned name and a base
// alias so downstream code can pin "miner_output.v1" while the Miner itself
// always writes against the current version.
func builtinSchemas() []schemaDef {
	return []schemaDef{
		{version: "miner_output.v1", alias: "miner_output", schema: minerOutputSchema()},
		{version: "evaluated_claim.v1", alias: "evaluated_claim", schema: evaluatedClaimSchema()},
		{version: "discovery.v1", alias: "discovery", schema: discoverySchema()},
		{version: "merge_analysis.v1", alias: "merge_analysis", schema: mergeAnalysisSchema()},
		{version: "assignment.v1", alias: "assignment", schema: assignmentSchema()},
	}
}

func evidenceSpanSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"quote": {Type: "string"},
			"start": {Type: "integer"},
			"end":   {Type: "integer"},
		},
		Required: []string{"quote"},
	}
}

func evidenceListSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:  "array",
		Items: evidenceSpanSchema(),
	}
}

// minerOutputSchema mirrors models.MinerOutput: four extraction lists whose
// items require the context_quote and evidence_spans keys. Timestamp is not
// required, and neither an empty quote nor an empty span list is rejected.
func minerOutputSchema() *jsonschema.Schema {
	claimItem := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"claim_text":     {Type: "string"},
			"claim_type":     {Type: "string"},
			"stance":         {Type: "string"},
			"context_quote":  {Type: "string"},
			"timestamp":      {Type: "number"},
			"evidence_spans": evidenceListSchema(),
		},
		Required: []string{"claim_text", "context_quote", "evidence_spans"},
	}
	jargonItem := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"term":           {Type: "string"},
			"definition":     {Type: "string"},
			"context_quote":  {Type: "string"},
			"timestamp":      {Type: "number"},
			"evidence_spans": evidenceListSchema(),
		},
		Required: []string{"term", "context_quote", "evidence_spans"},
	}
	personItem := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"name":           {Type: "string"},
			"role":           {Type: "string"},
			"context_quote":  {Type: "string"},
			"timestamp":      {Type: "number"},
			"evidence_spans": evidenceListSchema(),
		},
		Required: []string{"name", "context_quote", "evidence_spans"},
	}
	mentalModelItem := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"name":           {Type: "string"},
			"description":    {Type: "string"},
			"context_quote":  {Type: "string"},
			"timestamp":      {Type: "number"},
			"evidence_spans": evidenceListSchema(),
		},
		Required: []string{"name", "context_quote", "evidence_spans"},
	}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"episode_source_id": {Type: "string"},
			"segment_id":        {Type: "string"},
			"claims":            {Type: "array", Items: claimItem},
			"jargon":            {Type: "array", Items: jargonItem},
			"people":            {Type: "array", Items: personItem},
			"mental_models":     {Type: "array", Items: mentalModelItem},
		},
		Required: []string{"episode_source_id", "segment_id", "claims", "jargon", "people", "mental_models"},
	}
}

// evaluatedClaimSchema mirrors the Flagship Evaluator's (C4) per-claim
// scoring output, before tier/rank are computed app-side.
func evaluatedClaimSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"claim_id":         {Type: "string"},
			"decision":         {Type: "string"},
			"importance":       {Type: "integer"},
			"novelty":          {Type: "integer"},
			"confidence_final": {Type: "integer"},
			"reasoning":        {Type: "string"},
		},
		Required: []string{"claim_id", "decision", "importance", "novelty", "confidence_final", "reasoning"},
	}
}

// discoverySchema mirrors models.CandidateQuestion, the Question Mapper's
// (C8) Stage A output.
func discoverySchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"question_text": {Type: "string"},
			"question_type": {Type: "string"},
			"domain":        {Type: "string"},
			"claim_ids":     {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			"confidence":    {Type: "number"},
			"rationale":     {Type: "string"},
		},
		Required: []string{"question_text", "question_type", "domain", "claim_ids", "confidence", "rationale"},
	}
}

// mergeAnalysisSchema mirrors models.MergeAnalysis's LLM-produced fields
// (domain_fallback is filled in app-side, not by the model).
// new_question_text keys the response back to its candidate the same way
// merger.py's rec_map does, rather than relying on array-position alignment.
func mergeAnalysisSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"new_question_text":  {Type: "string"},
			"decision":           {Type: "string"},
			"target_question_id": {Type: "string"},
			"confidence":         {Type: "number"},
			"rationale":          {Type: "string"},
		},
		Required: []string{"new_question_text", "decision", "confidence", "rationale"},
	}
}

// assignmentSchema mirrors models.ClaimQuestionMapping's LLM-produced
// fields, the Question Mapper's (C8) Stage C output.
func assignmentSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"claim_id":        {Type: "string"},
			"question_id":     {Type: "string"},
			"relation_type":   {Type: "string"},
			"relevance_score": {Type: "number"},
		},
		Required: []string{"claim_id", "question_id", "relation_type", "relevance_score"},
	}
}
