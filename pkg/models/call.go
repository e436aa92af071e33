package models

// CallState is the local state of a video call session.
type CallState string

const (
	CallIdle           CallState = "idle"
	CallAcquiringMedia CallState = "acquiring_media"
	CallNegotiating    CallState = "negotiating"
	CallConnected      CallState = "connected"
	CallFailed         CallState = "failed"
	CallClosed         CallState = "closed"
)

// Active reports whether the session holds, or is acquiring, resources.
func (s CallState) Active() bool {
	return s == CallAcquiringMedia || s == CallNegotiating || s == CallConnected
}
