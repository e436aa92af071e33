// Package signaling carries session-negotiation messages between the host and
// the participant of one interview.
package signaling

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/intervue/pkg/models"
)

var (
	// ErrNoPeer is returned by Send when the counterpart did not advertise
	// within the peer wait.
	ErrNoPeer = errors.New("no signaling peer advertised")
	// ErrClosed is returned when using a subscription or connection after Close.
	ErrClosed = errors.New("signaling channel closed")
	// ErrInvalidMessage rejects malformed messages before they are relayed.
	ErrInvalidMessage = errors.New("invalid signaling message")
	// ErrNotLive: the interview is not in a state that admits a call.
	ErrNotLive = errors.New("interview call is not live")
	// ErrNotAdvertised: Send was called before Advertise on a client channel.
	ErrNotAdvertised = errors.New("not advertised on interview")
)

type MessageType string

const (
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeICECandidate MessageType = "ice_candidate"
	// TypeHangup tells the counterpart the sender left the call.
	TypeHangup MessageType = "hangup"
)

// ICECandidate mirrors the browser RTCIceCandidateInit shape.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// Message is one signaling wire message.
type Message struct {
	Type        MessageType   `json:"type"`
	InterviewID uuid.UUID     `json:"interview_id"`
	From        models.Role   `json:"from"`
	SDP         string        `json:"sdp,omitempty"`
	Candidate   *ICECandidate `json:"candidate,omitempty"`
	SentAt      time.Time     `json:"sent_at"`
}

// Validate checks that the payload matches the message type.
func (m *Message) Validate() error {
	if m.InterviewID == uuid.Nil {
		return fmt.Errorf("%w: interview_id is required", ErrInvalidMessage)
	}
	if !m.From.Valid() {
		return fmt.Errorf("%w: unknown sender role %q", ErrInvalidMessage, m.From)
	}
	switch m.Type {
	case TypeOffer, TypeAnswer:
		if m.SDP == "" {
			return fmt.Errorf("%w: %s requires sdp", ErrInvalidMessage, m.Type)
		}
	case TypeICECandidate:
		if m.Candidate == nil {
			return fmt.Errorf("%w: ice_candidate requires candidate", ErrInvalidMessage)
		}
	case TypeHangup:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	return nil
}
