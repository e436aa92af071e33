// Package models contains the records shared by the server, the call agent
// and the API client.
package models

import (
	"time"

	"github.com/google/uuid"
)

// InterviewStatus is the lifecycle status of an interview.
type InterviewStatus string

const (
	StatusScheduled   InterviewStatus = "scheduled"
	StatusInProgress  InterviewStatus = "in_progress"
	StatusCompleted   InterviewStatus = "completed"
	StatusCancelled   InterviewStatus = "cancelled"
	StatusRescheduled InterviewStatus = "rescheduled"
)

// Valid reports whether s is one of the known statuses.
func (s InterviewStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled, StatusRescheduled:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s InterviewStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type InterviewType string

const (
	TypeVideo    InterviewType = "video"
	TypePhone    InterviewType = "phone"
	TypeInPerson InterviewType = "in_person"
)

func (t InterviewType) Valid() bool {
	switch t {
	case TypeVideo, TypePhone, TypeInPerson:
		return true
	}
	return false
}

// Role is the fixed position a user holds within one interview.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

func (r Role) Valid() bool {
	return r == RoleHost || r == RoleParticipant
}

// Counterpart returns the other role of the interview.
func (r Role) Counterpart() Role {
	if r == RoleHost {
		return RoleParticipant
	}
	return RoleHost
}

// Interview is the persisted interview record. Notes and InvitationMessage are
// written at scheduling time and never updated.
type Interview struct {
	ID                uuid.UUID       `json:"id"`
	RequestID         string          `json:"request_id"`
	HostID            string          `json:"host_id"`
	ParticipantID     string          `json:"participant_id"`
	Type              InterviewType   `json:"interview_type"`
	Status            InterviewStatus `json:"status"`
	ScheduledDate     time.Time       `json:"scheduled_date"`
	DurationMinutes   int             `json:"duration_minutes"`
	Location          string          `json:"location,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	InvitationMessage string          `json:"invitation_message,omitempty"`
	Feedback          []Feedback      `json:"feedback"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// RoleOf returns the role userID holds in the interview, or false when the
// user is neither host nor participant.
func (iv *Interview) RoleOf(userID string) (Role, bool) {
	switch {
	case userID == "":
		return "", false
	case userID == iv.HostID:
		return RoleHost, true
	case userID == iv.ParticipantID:
		return RoleParticipant, true
	}
	return "", false
}

// FeedbackFrom returns the feedback submitted by the given evaluator, if any.
func (iv *Interview) FeedbackFrom(ev EvaluatorType) (Feedback, bool) {
	for _, f := range iv.Feedback {
		if f.EvaluatorType == ev {
			return f, true
		}
	}
	return Feedback{}, false
}
