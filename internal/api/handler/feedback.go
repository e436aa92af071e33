package handler

import (
	"net/http"

	"github.com/kiranshivaraju/intervue/internal/api/response"
	"github.com/kiranshivaraju/intervue/internal/interview"
)

// NewSubmitFeedbackHandler returns an http.HandlerFunc for
// POST /api/v1/interviews/{id}/feedback.
func NewSubmitFeedbackHandler(svc InterviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := interviewID(w, r)
		if !ok {
			return
		}

		var in interview.FeedbackInput
		if !decodeBody(w, r, &in) {
			return
		}

		fb, err := svc.SubmitFeedback(r.Context(), user.ID, id, in)
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		response.Created(w, fb)
	}
}

// NewMyFeedbackHandler returns an http.HandlerFunc for GET /api/v1/feedback/me.
func NewMyFeedbackHandler(svc InterviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}

		mine, err := svc.MyFeedback(r.Context(), user.ID)
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		response.JSON(w, mine)
	}
}
