package activities

import (
	"time"

	"github.com/autoshop-ai/orchestrator/internal/models"
)

// DecompositionInput is the input for the DecomposeQuestion activity.
type DecompositionInput struct {
	RequestID string `json:"request_id"`
	Question  string `json:"question"`
}

// DecompositionResult carries the categorized sub-questions.
type DecompositionResult struct {
	SubQuestions []models.SubQuestion `json:"sub_questions"`
}

// SpecialistInput is the input for one ResearchSubQuestion activity call.
type SpecialistInput struct {
	RequestID        string             `json:"request_id"`
	Category         models.Category    `json:"category"`
	SubQuestion      models.SubQuestion `json:"sub_question"`
	OriginalQuestion string             `json:"original_question"`
}

// SpecialistResult carries one sub-question's findings text.
type SpecialistResult struct {
	Findings string `json:"findings"`
}

// SynthesisInput is the input for the SynthesizeReport activity.
type SynthesisInput struct {
	RequestID        string                     `json:"request_id"`
	Question         string                     `json:"question"`
	CategoryFindings map[models.Category]string `json:"category_findings"`
}

// SynthesisResult carries the final integrated report.
type SynthesisResult struct {
	Report string `json:"report"`
}

// EmitProgressInput describes one progress event. Percentage is derived from
// Current/Total when Total is positive.
type EmitProgressInput struct {
	RequestID    string   `json:"request_id"`
	Status       string   `json:"status"`
	AgentID      string   `json:"agent_id"`
	Message      string   `json:"message,omitempty"`
	Current      int      `json:"current,omitempty"`
	Total        int      `json:"total,omitempty"`
	SubQuestions []string `json:"sub_questions,omitempty"`
}

// MarkStartedInput moves the stored request to in_progress.
type MarkStartedInput struct {
	RequestID string    `json:"request_id"`
	At        time.Time `json:"at"`
}

// SaveSubQuestionsInput persists the decomposition output.
type SaveSubQuestionsInput struct {
	RequestID    string               `json:"request_id"`
	SubQuestions []models.SubQuestion `json:"sub_questions"`
}

// SaveSubQuestionFindingsInput marks one sub-question complete.
type SaveSubQuestionFindingsInput struct {
	RequestID     string `json:"request_id"`
	SubQuestionID string `json:"sub_question_id"`
	Findings      string `json:"findings"`
}

// SaveCategoryFindingsInput persists a category's aggregated findings.
type SaveCategoryFindingsInput struct {
	RequestID string          `json:"request_id"`
	Category  models.Category `json:"category"`
	Findings  string          `json:"findings"`
}

// CompleteRequestInput writes the successful terminal state.
type CompleteRequestInput struct {
	RequestID   string    `json:"request_id"`
	FinalReport string    `json:"final_report"`
	At          time.Time `json:"at"`
}

// FailRequestInput writes the failed terminal state.
type FailRequestInput struct {
	RequestID string    `json:"request_id"`
	Error     string    `json:"error"`
	At        time.Time `json:"at"`
}
