package interview

import "errors"

var (
	// ErrInvalidTransition: the requested status is not reachable from the current one.
	ErrInvalidTransition = errors.New("invalid interview status transition")
	// ErrForbidden: the actor's role may not perform the action.
	ErrForbidden = errors.New("action not permitted for this role")
	// ErrAlreadySubmitted: the evaluator already left feedback on this interview.
	ErrAlreadySubmitted = errors.New("feedback already submitted")
	// ErrNotCompleted: feedback is only accepted on completed interviews.
	ErrNotCompleted = errors.New("interview is not completed")
	ErrValidation   = errors.New("validation failed")
)
