package response

import (
	"encoding/json"
	"net/http"

	"github.com/kiranshivaraju/intervue/internal/failure"
	"github.com/kiranshivaraju/intervue/internal/logger"
	"go.uber.org/zap"
)

type envelope struct {
	Data any `json:"data"`
}

type collectionEnvelope struct {
	Data any      `json:"data"`
	Meta ListMeta `json:"meta"`
}

// ErrorEnvelope is the body of every error response.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ListMeta struct {
	Total  int    `json:"total"`
	Status string `json:"status,omitempty"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

func Collection(w http.ResponseWriter, data any, meta ListMeta) {
	writeJSON(w, http.StatusOK, collectionEnvelope{Data: data, Meta: meta})
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorEnvelope{Error: ErrorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// Fail writes the error response for err. Users see the reason for refusals;
// internal failures are logged and reported generically.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	f := failure.Classify(err)
	var details any
	if f.Class == failure.Transient {
		logger.With(r.Context()).Error("request failed",
			zap.String("code", f.Code), zap.Error(err))
	} else {
		details = map[string]string{"reason": err.Error(), "class": string(f.Class)}
	}
	Error(w, f.Status, f.Code, f.Message, details)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
