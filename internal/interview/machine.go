// Package interview holds the interview lifecycle rules and the record-store
// operations built on them. The rule functions are pure: they take an
// interview value and an actor role and never touch shared state.
package interview

import (
	"fmt"

	"github.com/kiranshivaraju/intervue/pkg/models"
)

var validTransitions = map[models.InterviewStatus][]models.InterviewStatus{
	models.StatusScheduled:   {models.StatusInProgress, models.StatusCancelled, models.StatusRescheduled},
	models.StatusInProgress:  {models.StatusCompleted, models.StatusCancelled},
	models.StatusRescheduled: {models.StatusScheduled, models.StatusCancelled},
}

type edge struct {
	from, to models.InterviewStatus
}

// Edges only the host may drive. Cancellation is open to both parties.
var hostOnly = map[edge]bool{
	{models.StatusScheduled, models.StatusInProgress}:  true,
	{models.StatusInProgress, models.StatusCompleted}:  true,
	{models.StatusScheduled, models.StatusRescheduled}: true,
	{models.StatusRescheduled, models.StatusScheduled}: true,
}

// CanTransition reports whether to is reachable from from in one step.
func CanTransition(from, to models.InterviewStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates moving iv to status to on behalf of role and returns
// the updated copy. iv is never modified.
func Transition(iv models.Interview, to models.InterviewStatus, role models.Role) (models.Interview, error) {
	if !to.Valid() || !CanTransition(iv.Status, to) {
		return iv, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, iv.Status, to)
	}
	if !role.Valid() {
		return iv, fmt.Errorf("%w: unknown role %q", ErrForbidden, role)
	}
	if hostOnly[edge{iv.Status, to}] && role != models.RoleHost {
		return iv, fmt.Errorf("%w: only the host may move %s -> %s", ErrForbidden, iv.Status, to)
	}
	iv.Status = to
	return iv, nil
}

// CanStartCall reports whether role may open the video call of iv.
func CanStartCall(iv models.Interview, role models.Role) bool {
	return iv.Type == models.TypeVideo && iv.Status == models.StatusScheduled && role == models.RoleHost
}

// CanJoinCall reports whether role may join the running video call of iv.
func CanJoinCall(iv models.Interview, role models.Role) bool {
	return iv.Type == models.TypeVideo && iv.Status == models.StatusInProgress && role == models.RoleParticipant
}

// CanResumeCall reports whether the host may reopen a call whose interview is
// already in progress, e.g. after a failed negotiation.
func CanResumeCall(iv models.Interview, role models.Role) bool {
	return iv.Type == models.TypeVideo && iv.Status == models.StatusInProgress && role == models.RoleHost
}
