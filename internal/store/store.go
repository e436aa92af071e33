package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/intervue/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrConflict is returned when a conditional write finds the row in a state
// other than the one it expected.
var ErrConflict = errors.New("conflicting concurrent update")

// Store is the Interview Record Store. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateInterview(ctx context.Context, iv *models.Interview) error
	GetInterview(ctx context.Context, id uuid.UUID) (*models.Interview, error)
	ListInterviews(ctx context.Context, filter InterviewFilter) ([]*models.Interview, error)
	// UpdateInterviewStatus moves the interview from status from to status to
	// only if it is still in from; otherwise ErrConflict (or ErrNotFound).
	UpdateInterviewStatus(ctx context.Context, id uuid.UUID, from, to models.InterviewStatus) (*models.Interview, error)

	// CreateFeedback inserts fb only while the owning interview is completed.
	// Returns ErrConflict when it is not, ErrDuplicateKey when the evaluator
	// type already has feedback on the interview.
	CreateFeedback(ctx context.Context, fb *models.Feedback) error
}

// InterviewFilter selects the interviews a user takes part in.
type InterviewFilter struct {
	UserID string
	Status models.InterviewStatus
}
