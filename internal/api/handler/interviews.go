package handler

import (
	"net/http"

	"github.com/kiranshivaraju/intervue/internal/api/response"
	"github.com/kiranshivaraju/intervue/internal/interview"
	"github.com/kiranshivaraju/intervue/pkg/models"
)

// NewScheduleHandler returns an http.HandlerFunc for POST /api/v1/interviews.
// The router restricts it to associates; the caller becomes the host.
func NewScheduleHandler(svc InterviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}

		var req interview.ScheduleRequest
		if !decodeBody(w, r, &req) {
			return
		}

		iv, err := svc.Schedule(r.Context(), user.ID, req)
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		response.Created(w, iv)
	}
}

// NewListInterviewsHandler returns an http.HandlerFunc for
// GET /api/v1/interviews with an optional ?status= filter.
func NewListInterviewsHandler(svc InterviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}

		status := models.InterviewStatus(r.URL.Query().Get("status"))
		if status != "" && !status.Valid() {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"status must be one of scheduled, in_progress, completed, cancelled, rescheduled", nil)
			return
		}

		list, err := svc.List(r.Context(), user.ID, status)
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		if list == nil {
			list = []*models.Interview{}
		}
		response.Collection(w, list, response.ListMeta{Total: len(list), Status: string(status)})
	}
}

// NewGetInterviewHandler returns an http.HandlerFunc for
// GET /api/v1/interviews/{id}. Participants poll it while waiting to join.
func NewGetInterviewHandler(svc InterviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := interviewID(w, r)
		if !ok {
			return
		}

		iv, err := svc.Get(r.Context(), user.ID, id)
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		response.JSON(w, iv)
	}
}

// NewSetStatusHandler returns an http.HandlerFunc for
// PATCH /api/v1/interviews/{id}/status.
func NewSetStatusHandler(svc InterviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := interviewID(w, r)
		if !ok {
			return
		}

		var req struct {
			Status models.InterviewStatus `json:"status"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if !req.Status.Valid() {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "status is missing or unknown", nil)
			return
		}

		iv, err := svc.SetStatus(r.Context(), user.ID, id, req.Status)
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		response.JSON(w, iv)
	}
}
