// Package handler holds the HTTP handlers of the interview API. Each
// constructor takes the narrow interface it needs and returns an
// http.HandlerFunc for the router.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/intervue/internal/api/middleware"
	"github.com/kiranshivaraju/intervue/internal/api/response"
	"github.com/kiranshivaraju/intervue/internal/interview"
	"github.com/kiranshivaraju/intervue/pkg/models"
)

// InterviewService is the record store as the handlers see it.
type InterviewService interface {
	Schedule(ctx context.Context, hostID string, req interview.ScheduleRequest) (*models.Interview, error)
	List(ctx context.Context, userID string, status models.InterviewStatus) ([]*models.Interview, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (*models.Interview, error)
	SetStatus(ctx context.Context, userID string, id uuid.UUID, to models.InterviewStatus) (*models.Interview, error)
	SubmitFeedback(ctx context.Context, userID string, id uuid.UUID, in interview.FeedbackInput) (*models.Feedback, error)
	MyFeedback(ctx context.Context, userID string) (*models.MyFeedback, error)
}

// maxBodyBytes caps request bodies; the largest is a feedback form.
const maxBodyBytes = 64 << 10

func currentUser(w http.ResponseWriter, r *http.Request) (mw.User, bool) {
	u, ok := mw.GetUser(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
	}
	return u, ok
}

func interviewID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Interview id must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	return true
}
