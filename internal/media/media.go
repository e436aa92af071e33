// Package media abstracts local capture devices. A Stream exclusively owns the
// device grant behind each of its tracks until the track is stopped.
package media

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v3"
)

var (
	// ErrAccessDenied: the user or platform refused the capture permission.
	ErrAccessDenied = errors.New("media access denied")
	// ErrUnavailable: no usable device, or the device is held elsewhere.
	ErrUnavailable = errors.New("media device unavailable")
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Source names the device a track captures from.
type Source string

const (
	SourceMicrophone Source = "microphone"
	SourceCamera     Source = "camera"
	SourceDisplay    Source = "display"
)

// Track is one captured media track.
type Track interface {
	ID() string
	Kind() Kind
	Source() Source
	Enabled() bool
	// SetEnabled mutes or unmutes the track locally without releasing the device.
	SetEnabled(enabled bool)
	// Stop releases the device. Safe to call more than once.
	Stop()
	// Ended is closed when the track stops, including when the platform
	// revokes it.
	Ended() <-chan struct{}
	// Local is the track as handed to a peer connection.
	Local() webrtc.TrackLocal
}

// Stream groups the tracks of one capture request. Either track may be nil.
type Stream interface {
	Audio() Track
	Video() Track
	Stop()
}

type Constraints struct {
	Audio bool
	Video bool
}

// Devices grants capture streams.
type Devices interface {
	UserMedia(ctx context.Context, c Constraints) (Stream, error)
	DisplayMedia(ctx context.Context) (Stream, error)
}

type stream struct {
	audio Track
	video Track
}

func (s *stream) Audio() Track { return s.audio }
func (s *stream) Video() Track { return s.video }

func (s *stream) Stop() {
	if s.audio != nil {
		s.audio.Stop()
	}
	if s.video != nil {
		s.video.Stop()
	}
}
