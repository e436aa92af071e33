// Package failure sorts errors into what the user may not do, what cannot be
// done right now and what is worth retrying, and gives each a stable code
// shared by the HTTP API and its clients.
package failure

import (
	"errors"
	"net/http"

	"github.com/kiranshivaraju/intervue/internal/call"
	"github.com/kiranshivaraju/intervue/internal/interview"
	"github.com/kiranshivaraju/intervue/internal/media"
	"github.com/kiranshivaraju/intervue/internal/signaling"
	"github.com/kiranshivaraju/intervue/internal/store"
)

type Class string

const (
	// NotAllowed: the caller's role may never do this.
	NotAllowed Class = "not_allowed"
	// Impossible: the action does not fit the current state; retrying won't help.
	Impossible Class = "impossible"
	// Transient: something failed along the way; try again.
	Transient Class = "transient"
)

const (
	CodeForbidden         = "FORBIDDEN"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeNotEligible       = "NOT_ELIGIBLE"
	CodeAlreadySubmitted  = "ALREADY_SUBMITTED"
	CodeValidation        = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeCallNotLive       = "CALL_NOT_LIVE"
	CodeMediaDenied       = "MEDIA_ACCESS_DENIED"
	CodeMediaUnavailable  = "MEDIA_UNAVAILABLE"
	CodeNoPeer            = "NO_PEER"
	CodeNegotiation       = "NEGOTIATION_FAILED"
	CodeCallBusy          = "CALL_BUSY"
	CodeCallNotReady      = "CALL_NOT_READY"
	CodeSessionClosed     = "SESSION_CLOSED"
	CodeInternal          = "INTERNAL_ERROR"
)

// Failure is the user-facing description of an error.
type Failure struct {
	Class   Class
	Status  int
	Code    string
	Message string
}

type rule struct {
	target error
	f      Failure
}

// Order matters: the first matching sentinel wins.
var rules = []rule{
	{interview.ErrForbidden, Failure{NotAllowed, http.StatusForbidden, CodeForbidden, "You are not allowed to do this."}},
	{interview.ErrInvalidTransition, Failure{Impossible, http.StatusConflict, CodeInvalidTransition, "The interview cannot move to that status from its current one."}},
	{interview.ErrNotCompleted, Failure{Impossible, http.StatusConflict, CodeNotEligible, "Feedback opens once the interview is completed."}},
	{interview.ErrAlreadySubmitted, Failure{Impossible, http.StatusConflict, CodeAlreadySubmitted, "You have already submitted feedback for this interview."}},
	{interview.ErrValidation, Failure{Impossible, http.StatusUnprocessableEntity, CodeValidation, "Some fields are missing or invalid."}},
	{store.ErrNotFound, Failure{Impossible, http.StatusNotFound, CodeNotFound, "The interview does not exist."}},
	{signaling.ErrNotLive, Failure{Impossible, http.StatusConflict, CodeCallNotLive, "The call for this interview is not running."}},
	{media.ErrAccessDenied, Failure{Impossible, http.StatusConflict, CodeMediaDenied, "Camera or microphone access was denied. Allow access and try again."}},
	{media.ErrUnavailable, Failure{Impossible, http.StatusConflict, CodeMediaUnavailable, "No usable camera or microphone was found."}},
	{call.ErrBusy, Failure{Impossible, http.StatusConflict, CodeCallBusy, "A call for this interview is already open."}},
	{call.ErrNotReady, Failure{Impossible, http.StatusConflict, CodeCallNotReady, "This interview has no call to join right now."}},
	{call.ErrSessionClosed, Failure{Impossible, http.StatusConflict, CodeSessionClosed, "The call has already ended."}},
	{signaling.ErrNoPeer, Failure{Transient, http.StatusServiceUnavailable, CodeNoPeer, "The other side has not joined yet. Try again in a moment."}},
	{call.ErrNegotiationFailed, Failure{Transient, http.StatusBadGateway, CodeNegotiation, "The call could not be connected. Try again."}},
}

var internal = Failure{Transient, http.StatusInternalServerError, CodeInternal, "Something went wrong. Try again."}

// Classify maps err onto its failure. Unknown errors are transient.
func Classify(err error) Failure {
	for _, r := range rules {
		if errors.Is(err, r.target) {
			return r.f
		}
	}
	return internal
}

// ErrorFor returns the sentinel behind code so a client can errors.Is
// against what the server reported. Unknown codes yield nil.
func ErrorFor(code string) error {
	for _, r := range rules {
		if r.f.Code == code {
			return r.target
		}
	}
	return nil
}

// ClassOf is shorthand for Classify(err).Class.
func ClassOf(err error) Class {
	return Classify(err).Class
}
