package models

import "time"

// Category is the fixed research taxonomy. Every sub-question belongs to
// exactly one category, and exactly one specialist owns each category.
type Category string

const (
	CategoryVehicleSystems  Category = "vehicle_systems"
	CategoryCompliance      Category = "compliance"
	CategoryOEMData         Category = "oem_data"
	CategoryCommunityForums Category = "community_forums"
)

// Categories returns the fixed category set in canonical order.
func Categories() []Category {
	return []Category{
		CategoryVehicleSystems,
		CategoryCompliance,
		CategoryOEMData,
		CategoryCommunityForums,
	}
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryVehicleSystems, CategoryCompliance, CategoryOEMData, CategoryCommunityForums:
		return true
	}
	return false
}

// RequestStatus is the research request state machine. Transitions are
// monotonic: pending -> in_progress -> completed|failed.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusInProgress RequestStatus = "in_progress"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
)

// Terminal reports whether s is a terminal state.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status value.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// NoResearchSentinel is returned as a category's findings when decomposition
// produced no sub-questions for it. The specialist makes zero reasoning calls
// in that case.
const NoResearchSentinel = "no research required for this category"

// SubQuestion is one atomic, independently researchable question derived from
// the original query.
type SubQuestion struct {
	ID        string   `json:"id" db:"id"`
	Question  string   `json:"question" db:"question"`
	Category  Category `json:"category" db:"category"`
	Completed bool     `json:"completed" db:"completed"`
	Findings  string   `json:"findings,omitempty" db:"findings"`
}

// ResearchRequest is one research run. SubQuestions is empty until
// decomposition succeeds and immutable in length thereafter; FinalReport and
// Error are mutually exclusive and set only in a terminal state.
type ResearchRequest struct {
	ID               string              `json:"id"`
	OriginalQuestion string              `json:"original_question"`
	Status           RequestStatus       `json:"status"`
	SubQuestions     []SubQuestion       `json:"sub_questions,omitempty"`
	CategoryFindings map[Category]string `json:"category_findings,omitempty"`
	FinalReport      string              `json:"final_report,omitempty"`
	Error            string              `json:"error,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	StartedAt        *time.Time          `json:"started_at,omitempty"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
}

// SubQuestionsByCategory partitions subs by category, preserving order within
// each partition. Every category from Categories() is present in the result,
// possibly with an empty slice.
func SubQuestionsByCategory(subs []SubQuestion) map[Category][]SubQuestion {
	out := make(map[Category][]SubQuestion, 4)
	for _, c := range Categories() {
		out[c] = nil
	}
	for _, sq := range subs {
		out[sq.Category] = append(out[sq.Category], sq)
	}
	return out
}
