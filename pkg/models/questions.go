package models

// QuestionType enumerates the kind of question a claim might answer.
type QuestionType string

const (
	QuestionFactual      QuestionType = "factual"
	QuestionCausal       QuestionType = "causal"
	QuestionNormative    QuestionType = "normative"
	QuestionComparative  QuestionType = "comparative"
	QuestionProcedural   QuestionType = "procedural"
	QuestionForecasting  QuestionType = "forecasting"
)

// Question is a discovered (or human-authored) question claims can answer.
type Question struct {
	QuestionID      string       `json:"question_id"`
	QuestionText    string       `json:"question_text"`
	QuestionType    QuestionType `json:"question_type"`
	Domain          string       `json:"domain"`
	ImportanceScore float64      `json:"importance_score"`
	Reviewed        bool         `json:"reviewed"`
	DeprecatedInto  string       `json:"deprecated_into,omitempty"` // set when merged away
}

// RelationType enumerates how a claim relates to a question.
type RelationType string

const (
	RelationAnswers        RelationType = "answers"
	RelationPartialAnswer  RelationType = "partial_answer"
	RelationSupportsAnswer RelationType = "supports_answer"
	RelationContradicts    RelationType = "contradicts"
	RelationPrerequisite   RelationType = "prerequisite"
	RelationFollowUp       RelationType = "follow_up"
	RelationContext        RelationType = "context"
)

// ClaimQuestionMapping ties a claim to a question with a relation type and a
// relevance score. (claim_id, question_id) is unique.
type ClaimQuestionMapping struct {
	ClaimID       string       `json:"claim_id"`
	QuestionID    string       `json:"question_id"`
	RelationType  RelationType `json:"relation_type"`
	RelevanceScore float64     `json:"relevance_score"`
}

// MergeDecision is Stage B's verdict for a newly discovered question against
// the existing question set.
type MergeDecision string

const (
	MergeIntoExisting     MergeDecision = "merge_into_existing"
	MergeExistingIntoNew  MergeDecision = "merge_existing_into_new"
	LinkAsRelated         MergeDecision = "link_as_related"
	KeepDistinct          MergeDecision = "keep_distinct"
)

// CandidateQuestion is Stage A's (Discovery) raw output before merge
// analysis has run.
type CandidateQuestion struct {
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	Domain       string       `json:"domain"`
	ClaimIDs     []string     `json:"claim_ids"`
	Confidence   float64      `json:"confidence"`
	Rationale    string       `json:"rationale"`
}

// MergeAnalysis is Stage B's verdict for one candidate question.
type MergeAnalysis struct {
	Candidate        CandidateQuestion `json:"candidate"`
	Decision         MergeDecision     `json:"decision"`
	TargetQuestionID string            `json:"target_question_id,omitempty"`
	Confidence       float64           `json:"confidence"`
	Rationale        string            `json:"rationale"`
	DomainFallback   bool              `json:"domain_fallback"`
}
