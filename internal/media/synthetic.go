package media

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
)

// Opus comfort-noise frame; decoders treat it as silence.
var silentOpusFrame = []byte{0xf8, 0xff, 0xfe}

// Synthetic devices produce generated tracks backed by pion sample tracks.
// They stand in for cameras on headless agents and in tests, and keep count
// of outstanding grants so leaks are observable.
type Synthetic struct {
	mu          sync.Mutex
	denied      bool
	displayDeny bool
	unavailable bool
	promptDelay time.Duration
	pump        bool
	active      map[*syntheticTrack]struct{}
	grants      int
}

type SyntheticOption func(*Synthetic)

// WithSamplePump makes enabled tracks emit placeholder samples in real time.
func WithSamplePump() SyntheticOption {
	return func(s *Synthetic) { s.pump = true }
}

// WithPromptDelay simulates a permission prompt the user takes d to answer.
func WithPromptDelay(d time.Duration) SyntheticOption {
	return func(s *Synthetic) { s.promptDelay = d }
}

func NewSynthetic(opts ...SyntheticOption) *Synthetic {
	s := &Synthetic{active: make(map[*syntheticTrack]struct{})}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Deny makes subsequent camera and microphone requests fail with ErrAccessDenied.
func (s *Synthetic) Deny(denied bool) {
	s.mu.Lock()
	s.denied = denied
	s.mu.Unlock()
}

func (s *Synthetic) DenyDisplay(denied bool) {
	s.mu.Lock()
	s.displayDeny = denied
	s.mu.Unlock()
}

// SetUnavailable makes subsequent requests fail with ErrUnavailable.
func (s *Synthetic) SetUnavailable(unavailable bool) {
	s.mu.Lock()
	s.unavailable = unavailable
	s.mu.Unlock()
}

func (s *Synthetic) SetPromptDelay(d time.Duration) {
	s.mu.Lock()
	s.promptDelay = d
	s.mu.Unlock()
}

// InUse returns the number of tracks currently holding a device.
func (s *Synthetic) InUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// InUseBy counts live tracks capturing from src.
func (s *Synthetic) InUseBy(src Source) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for t := range s.active {
		if t.source == src {
			n++
		}
	}
	return n
}

// Grants is the total number of tracks ever handed out.
func (s *Synthetic) Grants() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grants
}

// RevokeDisplay ends every live screen capture, as when the user presses
// "stop sharing" in the operating system.
func (s *Synthetic) RevokeDisplay() {
	s.mu.Lock()
	var victims []*syntheticTrack
	for t := range s.active {
		if t.source == SourceDisplay {
			victims = append(victims, t)
		}
	}
	s.mu.Unlock()
	for _, t := range victims {
		t.Stop()
	}
}

func (s *Synthetic) UserMedia(ctx context.Context, c Constraints) (Stream, error) {
	if !c.Audio && !c.Video {
		return nil, fmt.Errorf("%w: no track requested", ErrUnavailable)
	}
	if err := s.prompt(ctx, false); err != nil {
		return nil, err
	}

	st := &stream{}
	if c.Audio {
		t, err := s.newTrack(KindAudio, SourceMicrophone)
		if err != nil {
			return nil, err
		}
		st.audio = t
	}
	if c.Video {
		t, err := s.newTrack(KindVideo, SourceCamera)
		if err != nil {
			st.Stop()
			return nil, err
		}
		st.video = t
	}
	return st, nil
}

func (s *Synthetic) DisplayMedia(ctx context.Context) (Stream, error) {
	if err := s.prompt(ctx, true); err != nil {
		return nil, err
	}
	t, err := s.newTrack(KindVideo, SourceDisplay)
	if err != nil {
		return nil, err
	}
	return &stream{video: t}, nil
}

// prompt waits out the simulated permission dialog, honouring cancellation.
func (s *Synthetic) prompt(ctx context.Context, display bool) error {
	s.mu.Lock()
	delay := s.promptDelay
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.unavailable:
		return ErrUnavailable
	case s.denied && !display, s.displayDeny && display:
		return ErrAccessDenied
	}
	return nil
}

func (s *Synthetic) newTrack(kind Kind, src Source) (*syntheticTrack, error) {
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	if kind == KindVideo {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}
	id := uuid.NewString()
	local, err := webrtc.NewTrackLocalStaticSample(codec, id, "intervue-"+string(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	t := &syntheticTrack{
		id:     id,
		kind:   kind,
		source: src,
		local:  local,
		ended:  make(chan struct{}),
		owner:  s,
	}
	t.enabled.Store(true)

	s.mu.Lock()
	s.active[t] = struct{}{}
	s.grants++
	pump := s.pump
	s.mu.Unlock()

	if pump {
		go t.pumpSamples()
	}
	return t, nil
}

func (s *Synthetic) release(t *syntheticTrack) {
	s.mu.Lock()
	delete(s.active, t)
	s.mu.Unlock()
}

type syntheticTrack struct {
	id      string
	kind    Kind
	source  Source
	local   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	ended   chan struct{}
	once    sync.Once
	owner   *Synthetic
}

func (t *syntheticTrack) ID() string               { return t.id }
func (t *syntheticTrack) Kind() Kind               { return t.kind }
func (t *syntheticTrack) Source() Source           { return t.source }
func (t *syntheticTrack) Enabled() bool            { return t.enabled.Load() }
func (t *syntheticTrack) SetEnabled(enabled bool)  { t.enabled.Store(enabled) }
func (t *syntheticTrack) Ended() <-chan struct{}   { return t.ended }
func (t *syntheticTrack) Local() webrtc.TrackLocal { return t.local }

func (t *syntheticTrack) Stop() {
	t.once.Do(func() {
		close(t.ended)
		t.owner.release(t)
	})
}

// pumpSamples writes placeholder frames while the track is enabled. A
// disabled track sends nothing, which the far end renders as muted or black.
func (t *syntheticTrack) pumpSamples() {
	interval := 20 * time.Millisecond
	frame := silentOpusFrame
	if t.kind == KindVideo {
		interval = 33 * time.Millisecond
		frame = make([]byte, 64)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ended:
			return
		case <-ticker.C:
			if !t.enabled.Load() {
				continue
			}
			_ = t.local.WriteSample(pionmedia.Sample{Data: frame, Duration: interval})
		}
	}
}
