package interview

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/intervue/pkg/models"
)

const maxFeedbackText = 5000

// FeedbackInput is the evaluator-supplied part of a Feedback record.
type FeedbackInput struct {
	Ratings             models.Ratings        `json:"ratings"`
	Recommendation      models.Recommendation `json:"recommendation"`
	Strengths           string                `json:"strengths,omitempty"`
	AreasForImprovement string                `json:"areas_for_improvement,omitempty"`
	DetailedFeedback    string                `json:"detailed_feedback,omitempty"`
}

// CanSubmitFeedback reports whether role may still leave feedback on iv.
func CanSubmitFeedback(iv models.Interview, role models.Role) bool {
	return CheckFeedback(iv, role) == nil
}

// CheckFeedback is CanSubmitFeedback with the reason for a refusal.
func CheckFeedback(iv models.Interview, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrForbidden, role)
	}
	if iv.Status != models.StatusCompleted {
		return fmt.Errorf("%w: status is %s", ErrNotCompleted, iv.Status)
	}
	if _, ok := iv.FeedbackFrom(models.EvaluatorFor(role)); ok {
		return ErrAlreadySubmitted
	}
	return nil
}

// ValidateFeedback applies the minimum-completeness rule: overall (1-5) and a
// recommendation are mandatory, the other ratings are optional but must be
// 1-5 when given. Text fields are trimmed in place.
func ValidateFeedback(in *FeedbackInput) error {
	if err := checkRating("overall", &in.Ratings.Overall, true); err != nil {
		return err
	}
	if err := checkRating("technical_skills", in.Ratings.TechnicalSkills, false); err != nil {
		return err
	}
	if err := checkRating("communication", in.Ratings.Communication, false); err != nil {
		return err
	}
	if err := checkRating("cultural_fit", in.Ratings.CulturalFit, false); err != nil {
		return err
	}
	if in.Recommendation == "" {
		return fmt.Errorf("%w: recommendation is required", ErrValidation)
	}
	if !in.Recommendation.Valid() {
		return fmt.Errorf("%w: recommendation must be one of hire, maybe, no_hire; got %q", ErrValidation, in.Recommendation)
	}

	texts := []struct {
		name  string
		field *string
	}{
		{"strengths", &in.Strengths},
		{"areas_for_improvement", &in.AreasForImprovement},
		{"detailed_feedback", &in.DetailedFeedback},
	}
	for _, t := range texts {
		*t.field = strings.TrimSpace(*t.field)
		if utf8.RuneCountInString(*t.field) > maxFeedbackText {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrValidation, t.name, maxFeedbackText)
		}
	}
	return nil
}

func checkRating(name string, v *int, required bool) error {
	if v == nil {
		return nil
	}
	if *v == 0 && required {
		return fmt.Errorf("%w: %s rating is required", ErrValidation, name)
	}
	if *v < 1 || *v > 5 {
		return fmt.Errorf("%w: %s must be between 1 and 5, got %d", ErrValidation, name, *v)
	}
	return nil
}
