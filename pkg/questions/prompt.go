// Package questions is the Question Mapper (C8): a three-stage
// claim-to-question pipeline — Discover candidate questions from a batch of
// claims, Merge them against the existing question set, and Assign the
// claims to the finalized questions with a relation type. Grounded directly
// on question_mapper/{discovery,merger,assignment,orchestrator}.py; the
// cache-optimized "static instructions first, data last" prompt shape
// follows pkg/mining and pkg/evaluation's BuildPrompt convention rather than
// the original's file-loaded prompt templates, since every other LLM caller
// in this module builds prompts as Go string constants.
package questions

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

// ClaimInput is the minimal claim projection the Question Mapper needs:
// enough to reference and reason about a claim without re-deriving it from
// the source segment. Mirrors discovery.py/assignment.py's claim dict
// contract (required 'claim_id' and 'claim_text' keys).
type ClaimInput struct {
	ClaimID   string `json:"claim_id"`
	ClaimText string `json:"claim_text"`
}

const discoveryInstructions = `You are analyzing a batch of claims to discover the key questions they answer.

Return a JSON array. Each element has: question_text, question_type (one of
factual, causal, normative, comparative, procedural, forecasting), domain (a
short topic label), claim_ids (subset of the input claim_ids this question
draws on), confidence (0.0-1.0), rationale.

Discover questions organically from the content. Do not force claims into a
predetermined question structure. A claim may contribute to zero, one, or
several questions.`

// BuildDiscoveryPrompt assembles Stage A's prompt: static instructions
// first, the claim batch last.
func BuildDiscoveryPrompt(claims []ClaimInput) string {
	data, _ := json.MarshalIndent(claims, "", "  ")
	var b strings.Builder
	b.WriteString(discoveryInstructions)
	fmt.Fprintf(&b, "\n\nCLAIMS (%d):\n", len(claims))
	b.Write(data)
	return b.String()
}

const mergeInstructions = `You are comparing newly discovered questions against an existing set of
questions to find duplicates, subsets, and related questions.

For each new question, return a JSON array element with: new_question_text
(copied verbatim from the input), decision (one of merge_into_existing,
merge_existing_into_new, link_as_related, keep_distinct), target_question_id
(required for the two merge_* decisions, the id of the existing question
involved), confidence (0.0-1.0), rationale.

merge_into_existing means the new question duplicates or is a subset of an
existing one. merge_existing_into_new means the existing question is a
subset of the new, broader one. link_as_related means both should be kept
but cross-referenced. keep_distinct means no meaningful relationship.`

type newQuestionPayload struct {
	QuestionText string   `json:"question_text"`
	QuestionType string   `json:"question_type"`
	Domain       string   `json:"domain"`
	ClaimIDs     []string `json:"claim_ids"`
}

type existingQuestionPayload struct {
	QuestionID   string `json:"question_id"`
	QuestionText string `json:"question_text"`
	QuestionType string `json:"question_type"`
	Domain       string `json:"domain"`
}

// BuildMergePrompt assembles Stage B's prompt against an already
// domain-filtered existing-question set (see filterByDomain in mapper.go).
func BuildMergePrompt(newQuestions []models.CandidateQuestion, existing []models.Question) string {
	newPayload := make([]newQuestionPayload, len(newQuestions))
	for i, q := range newQuestions {
		newPayload[i] = newQuestionPayload{
			QuestionText: q.QuestionText,
			QuestionType: string(q.QuestionType),
			Domain:       q.Domain,
			ClaimIDs:     q.ClaimIDs,
		}
	}
	existingPayload := make([]existingQuestionPayload, len(existing))
	for i, q := range existing {
		existingPayload[i] = existingQuestionPayload{
			QuestionID:   q.QuestionID,
			QuestionText: q.QuestionText,
			QuestionType: string(q.QuestionType),
			Domain:       q.Domain,
		}
	}

	newData, _ := json.MarshalIndent(newPayload, "", "  ")
	existingData, _ := json.MarshalIndent(existingPayload, "", "  ")

	var b strings.Builder
	b.WriteString(mergeInstructions)
	b.WriteString("\n\nNEW QUESTIONS:\n")
	b.Write(newData)
	b.WriteString("\n\nEXISTING QUESTIONS:\n")
	b.Write(existingData)
	return b.String()
}

const assignmentInstructions = `You are assigning claims to a finalized set of questions.

For each claim-question pair that has a meaningful relationship, return a
JSON array element with: claim_id, question_id, relation_type (one of
answers, partial_answer, supports_answer, contradicts, prerequisite,
follow_up, context), relevance_score (0.0-1.0), rationale.

A claim may be assigned to multiple questions with different relation
types. Omit pairs with no meaningful relationship rather than forcing a
low-relevance assignment.`

type assignQuestionPayload struct {
	QuestionID   string `json:"question_id"`
	QuestionText string `json:"question_text"`
}

// BuildAssignmentPrompt assembles Stage C's prompt.
func BuildAssignmentPrompt(claims []ClaimInput, finalQuestions []models.Question) string {
	qPayload := make([]assignQuestionPayload, len(finalQuestions))
	for i, q := range finalQuestions {
		qPayload[i] = assignQuestionPayload{QuestionID: q.QuestionID, QuestionText: q.QuestionText}
	}
	claimsData, _ := json.MarshalIndent(claims, "", "  ")
	qData, _ := json.MarshalIndent(qPayload, "", "  ")

	var b strings.Builder
	b.WriteString(assignmentInstructions)
	b.WriteString("\n\nCLAIMS:\n")
	b.Write(claimsData)
	b.WriteString("\n\nQUESTIONS:\n")
	b.Write(qData)
	return b.String()
}
