package interview

import (
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/intervue/pkg/models"
)

const (
	minDurationMinutes = 15
	maxDurationMinutes = 480
)

// ScheduleRequest carries the fields of scheduleInterview. The host is the
// authenticated associate, not part of the request.
type ScheduleRequest struct {
	RequestID         string               `json:"request_id"`
	FreelancerID      string               `json:"freelancer_id"`
	Type              models.InterviewType `json:"interview_type"`
	ScheduledDate     time.Time            `json:"scheduled_date"`
	DurationMinutes   int                  `json:"duration_minutes"`
	Location          string               `json:"location,omitempty"`
	Notes             string               `json:"notes,omitempty"`
	InvitationMessage string               `json:"invitation_message,omitempty"`
}

// ValidateSchedule checks a scheduling request against the current time.
func ValidateSchedule(req *ScheduleRequest, hostID string, now time.Time) error {
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.FreelancerID = strings.TrimSpace(req.FreelancerID)
	req.Location = strings.TrimSpace(req.Location)

	switch {
	case req.RequestID == "":
		return fmt.Errorf("%w: request_id is required", ErrValidation)
	case req.FreelancerID == "":
		return fmt.Errorf("%w: freelancer_id is required", ErrValidation)
	case req.FreelancerID == hostID:
		return fmt.Errorf("%w: host and participant must differ", ErrValidation)
	case !req.Type.Valid():
		return fmt.Errorf("%w: interview_type must be one of video, phone, in_person; got %q", ErrValidation, req.Type)
	case req.ScheduledDate.IsZero():
		return fmt.Errorf("%w: scheduled_date is required", ErrValidation)
	case !req.ScheduledDate.After(now):
		return fmt.Errorf("%w: scheduled_date must be in the future", ErrValidation)
	case req.DurationMinutes < minDurationMinutes || req.DurationMinutes > maxDurationMinutes:
		return fmt.Errorf("%w: duration_minutes must be between %d and %d", ErrValidation, minDurationMinutes, maxDurationMinutes)
	case req.Type == models.TypeInPerson && req.Location == "":
		return fmt.Errorf("%w: location is required for in_person interviews", ErrValidation)
	}
	return nil
}
