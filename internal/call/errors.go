package call

import "errors"

var (
	// ErrNegotiationFailed: the peer connection could not be established.
	ErrNegotiationFailed = errors.New("call negotiation failed")
	// ErrSessionClosed: the session was ended while the operation was in flight.
	ErrSessionClosed = errors.New("call session closed")
	// ErrBusy: a session for this interview is already active on this client.
	ErrBusy = errors.New("a call for this interview is already active")
	// ErrNotReady: the interview is not in a state that allows the call.
	ErrNotReady = errors.New("interview is not ready for a call")
)

// EndReason records why a session closed.
type EndReason string

const (
	ReasonUser           EndReason = "user"
	ReasonDismissed      EndReason = "dismissed"
	ReasonRemoteHangup   EndReason = "remote_hangup"
	ReasonConnectionLost EndReason = "connection_lost"
)
