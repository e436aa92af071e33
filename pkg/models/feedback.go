package models

import (
	"time"

	"github.com/google/uuid"
)

// EvaluatorType identifies who wrote a piece of feedback.
type EvaluatorType string

const (
	EvaluatorAssociate  EvaluatorType = "associate"
	EvaluatorFreelancer EvaluatorType = "freelancer"
)

func (e EvaluatorType) Valid() bool {
	return e == EvaluatorAssociate || e == EvaluatorFreelancer
}

// EvaluatorFor maps an interview role to the evaluator type it writes feedback as.
func EvaluatorFor(r Role) EvaluatorType {
	if r == RoleHost {
		return EvaluatorAssociate
	}
	return EvaluatorFreelancer
}

type Recommendation string

const (
	RecommendHire   Recommendation = "hire"
	RecommendMaybe  Recommendation = "maybe"
	RecommendNoHire Recommendation = "no_hire"
)

func (r Recommendation) Valid() bool {
	switch r {
	case RecommendHire, RecommendMaybe, RecommendNoHire:
		return true
	}
	return false
}

// Ratings are integer scores from 1 to 5. Only Overall is mandatory.
type Ratings struct {
	TechnicalSkills *int `json:"technical_skills,omitempty"`
	Communication   *int `json:"communication,omitempty"`
	CulturalFit     *int `json:"cultural_fit,omitempty"`
	Overall         int  `json:"overall"`
}

// Feedback is created once per (interview, evaluator type) and never mutated.
type Feedback struct {
	ID                  uuid.UUID      `json:"id"`
	InterviewID         uuid.UUID      `json:"interview_id"`
	EvaluatorType       EvaluatorType  `json:"evaluator_type"`
	EvaluatorID         string         `json:"evaluator_id"`
	Ratings             Ratings        `json:"ratings"`
	Recommendation      Recommendation `json:"recommendation"`
	Strengths           string         `json:"strengths,omitempty"`
	AreasForImprovement string         `json:"areas_for_improvement,omitempty"`
	DetailedFeedback    string         `json:"detailed_feedback,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
}

// FeedbackSummary aggregates the feedback a user has received.
type FeedbackSummary struct {
	TotalInterviews     int     `json:"totalInterviews"`
	AverageRating       float64 `json:"averageRating"`
	HireRecommendations int     `json:"hireRecommendations"`
	FeedbackReceived    int     `json:"feedbackReceived"`
}

// MyFeedback is the response of the feedback overview for one user.
type MyFeedback struct {
	Interviews []*Interview    `json:"interviews"`
	Summary    FeedbackSummary `json:"summary"`
}
