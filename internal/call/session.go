// Package call runs one side of a video interview call: it acquires local
// media, negotiates a peer connection over a signaling channel and tears
// everything down again on every exit path.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/intervue/internal/interview"
	"github.com/kiranshivaraju/intervue/internal/logger"
	"github.com/kiranshivaraju/intervue/internal/media"
	"github.com/kiranshivaraju/intervue/internal/metrics"
	"github.com/kiranshivaraju/intervue/internal/rtc"
	"github.com/kiranshivaraju/intervue/internal/signaling"
	"github.com/kiranshivaraju/intervue/pkg/models"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const (
	defaultTickInterval  = time.Second
	defaultHangupTimeout = 2 * time.Second
	defaultConnectWait   = 30 * time.Second
	outboxSize           = 256
	observerBuffer       = 16
)

// Records is the part of the interview record store a session needs. Both
// methods act on behalf of the local user.
type Records interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Interview, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.InterviewStatus) (*models.Interview, error)
}

type Config struct {
	InterviewID uuid.UUID
	Role        models.Role

	Records   Records
	Devices   media.Devices
	Signaling signaling.Channel
	Peers     rtc.Factory
	ICE       webrtc.Configuration

	// TickInterval is how often observers get a fresh elapsed time while connected.
	TickInterval time.Duration
	// HangupTimeout bounds the best-effort hangup sent on the way out.
	HangupTimeout time.Duration
	// ConnectWait bounds the negotiating phase. A session that has heard
	// nothing from its counterpart by then fails with signaling.ErrNoPeer,
	// one that has but is still not connected with ErrNegotiationFailed.
	ConnectWait time.Duration
	Logger      *zap.Logger
	Clock       func() time.Time
}

// Snapshot is the view-facing state of a session.
type Snapshot struct {
	InterviewID   uuid.UUID
	Role          models.Role
	State         models.CallState
	Muted         bool
	VideoEnabled  bool
	ScreenSharing bool
	Elapsed       time.Duration
	Reason        EndReason
	Err           error
}

type resources struct {
	stream  media.Stream
	display media.Stream
	pc      rtc.PeerConn
	audio   rtc.Sender
	video   rtc.Sender
	sub     signaling.Subscription
}

// Session is one client's side of the call for one interview. Every handler
// carries the epoch it was started under and drops its work once the epoch
// moves on, so nothing late lands on a torn down session.
type Session struct {
	cfg Config
	log *zap.Logger

	// negMu serialises peer connection negotiation and track replacement.
	negMu     sync.Mutex
	remoteSDP string
	pending   []webrtc.ICECandidateInit

	// writes tracks status writes made by setup; End waits for them before
	// completing the interview.
	writes sync.WaitGroup

	mu          sync.Mutex
	state       models.CallState
	epoch       uint64
	err         error
	reason      EndReason
	ended       bool
	iv          *models.Interview
	res         resources
	cancel      context.CancelFunc
	done        chan error
	established chan struct{}
	outbox      chan signaling.Message
	localSent   bool
	localQueue  []webrtc.ICECandidateInit
	connectedAt time.Time
	endedAt     time.Time
	tickStop    chan struct{}
	muted       bool
	videoOff    bool
	sharing     bool
	observers   map[chan Snapshot]struct{}
}

func NewSession(cfg Config) *Session {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.HangupTimeout <= 0 {
		cfg.HangupTimeout = defaultHangupTimeout
	}
	if cfg.ConnectWait <= 0 {
		cfg.ConnectWait = defaultConnectWait
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Session{
		cfg: cfg,
		log: logger.OrNop(cfg.Logger).With(
			zap.String("interview_id", cfg.InterviewID.String()),
			zap.String("role", string(cfg.Role)),
		),
		state:     models.CallIdle,
		observers: make(map[chan Snapshot]struct{}),
	}
}

// Start acquires media and negotiates the call, returning once the peer
// connection is up or the attempt has failed. A failed session can be
// started again.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Active() {
		s.mu.Unlock()
		return ErrBusy
	}
	s.epoch++
	epoch := s.epoch
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	done := make(chan error, 1)
	established := make(chan struct{})
	s.done = done
	s.established = established
	s.outbox = make(chan signaling.Message, outboxSize)
	s.state = models.CallAcquiringMedia
	s.err, s.reason, s.ended = nil, "", false
	s.muted, s.videoOff, s.sharing = false, false, false
	s.localSent, s.localQueue = false, nil
	s.connectedAt, s.endedAt = time.Time{}, time.Time{}
	outbox := s.outbox
	s.mu.Unlock()

	s.negMu.Lock()
	s.remoteSDP, s.pending = "", nil
	s.negMu.Unlock()
	s.publish()

	go func() {
		select {
		case <-ctx.Done():
			s.fail(epoch, ctx.Err())
		case <-established:
		case <-runCtx.Done():
		}
	}()

	if err := s.setup(runCtx, epoch, outbox); err != nil {
		s.fail(epoch, err)
	}
	return <-done
}

func (s *Session) setup(ctx context.Context, epoch uint64, outbox chan signaling.Message) error {
	iv, err := s.cfg.Records.Get(ctx, s.cfg.InterviewID)
	if err != nil {
		return fmt.Errorf("load interview: %w", err)
	}
	if err := admit(*iv, s.cfg.Role); err != nil {
		return err
	}
	if !s.attach(epoch, func() { s.iv = iv }) {
		return ErrSessionClosed
	}

	stream, err := s.cfg.Devices.UserMedia(ctx, media.Constraints{Audio: true, Video: true})
	if err != nil {
		if !s.current(epoch) {
			return ErrSessionClosed
		}
		return err
	}
	if !s.attach(epoch, func() { s.res.stream = stream }) {
		stream.Stop()
		return ErrSessionClosed
	}

	// The in_progress transition must be visible before the offer goes out.
	if s.cfg.Role == models.RoleHost && iv.Status == models.StatusScheduled {
		if !s.attach(epoch, func() { s.writes.Add(1) }) {
			return ErrSessionClosed
		}
		updated, err := s.cfg.Records.SetStatus(ctx, s.cfg.InterviewID, models.StatusInProgress)
		s.writes.Done()
		if err != nil {
			return fmt.Errorf("start interview: %w", err)
		}
		if !s.attach(epoch, func() { s.iv = updated }) {
			return ErrSessionClosed
		}
	}

	pc, err := s.cfg.Peers.NewPeerConn(s.cfg.ICE)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNegotiationFailed, err)
	}
	pc.OnICECandidate(func(c *webrtc.ICECandidateInit) { s.localCandidate(epoch, c) })
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) { s.peerState(epoch, st) })
	if !s.attach(epoch, func() { s.res.pc = pc }) {
		pc.Close()
		return ErrSessionClosed
	}

	audio, err := pc.AddTrack(stream.Audio().Local())
	if err != nil {
		return fmt.Errorf("%w: add audio track: %v", ErrNegotiationFailed, err)
	}
	video, err := pc.AddTrack(stream.Video().Local())
	if err != nil {
		return fmt.Errorf("%w: add video track: %v", ErrNegotiationFailed, err)
	}
	s.attach(epoch, func() { s.res.audio, s.res.video = audio, video })

	sub, err := s.cfg.Signaling.Advertise(ctx, s.cfg.InterviewID, s.cfg.Role)
	if err != nil {
		return fmt.Errorf("advertise: %w", err)
	}
	var established chan struct{}
	if !s.attach(epoch, func() {
		s.res.sub = sub
		s.state = models.CallNegotiating
		established = s.established
	}) {
		sub.Close()
		return ErrSessionClosed
	}
	s.publish()

	go s.bound(ctx, epoch, established)
	go s.receive(epoch, sub)
	go s.drain(ctx, epoch, outbox)

	if s.cfg.Role != models.RoleHost {
		return nil
	}

	s.negMu.Lock()
	defer s.negMu.Unlock()
	offer, err := pc.CreateOffer()
	if err != nil {
		return fmt.Errorf("%w: create offer: %v", ErrNegotiationFailed, err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("%w: set local offer: %v", ErrNegotiationFailed, err)
	}
	s.sendDescription(epoch, signaling.TypeOffer, offer.SDP)
	return nil
}

func admit(iv models.Interview, role models.Role) error {
	switch role {
	case models.RoleHost:
		if interview.CanStartCall(iv, role) || interview.CanResumeCall(iv, role) {
			return nil
		}
	case models.RoleParticipant:
		if interview.CanJoinCall(iv, role) {
			return nil
		}
	default:
		return interview.ErrForbidden
	}
	if iv.Type != models.TypeVideo {
		return fmt.Errorf("%w: %s interviews have no video call", ErrNotReady, iv.Type)
	}
	return fmt.Errorf("%w: interview is %s", ErrNotReady, iv.Status)
}

// attach runs fn under the lock if epoch is still current and the session is
// still active.
func (s *Session) attach(epoch uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || !s.state.Active() {
		return false
	}
	fn()
	return true
}

func (s *Session) current(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return epoch == s.epoch && s.state.Active()
}

func (s *Session) stateAt(epoch uint64) (models.CallState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, epoch == s.epoch
}

func (s *Session) peer(epoch uint64) rtc.PeerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || !s.state.Active() {
		return nil
	}
	return s.res.pc
}

// sendDescription queues the local offer or answer, then any candidates
// gathered before it.
func (s *Session) sendDescription(epoch uint64, t signaling.MessageType, sdp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || !s.state.Active() {
		return
	}
	s.enqueueLocked(signaling.Message{Type: t, SDP: sdp})
	s.localSent = true
	for _, c := range s.localQueue {
		s.enqueueLocked(candidateMessage(c))
	}
	s.localQueue = nil
}

func (s *Session) localCandidate(epoch uint64, c *webrtc.ICECandidateInit) {
	if c == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || !s.state.Active() {
		return
	}
	if !s.localSent {
		s.localQueue = append(s.localQueue, *c)
		return
	}
	s.enqueueLocked(candidateMessage(*c))
}

func (s *Session) enqueueLocked(m signaling.Message) {
	select {
	case s.outbox <- m:
	default:
		s.log.Warn("signaling outbox full, dropping message", zap.String("type", string(m.Type)))
	}
}

func candidateMessage(c webrtc.ICECandidateInit) signaling.Message {
	return signaling.Message{
		Type: signaling.TypeICECandidate,
		Candidate: &signaling.ICECandidate{
			Candidate:     c.Candidate,
			SDPMid:        c.SDPMid,
			SDPMLineIndex: c.SDPMLineIndex,
		},
	}
}

// drain sends queued messages one at a time so the counterpart sees them in
// the order they were produced.
func (s *Session) drain(ctx context.Context, epoch uint64, outbox <-chan signaling.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-outbox:
			m.InterviewID = s.cfg.InterviewID
			m.From = s.cfg.Role
			err := s.cfg.Signaling.Send(ctx, m)
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if st, ok := s.stateAt(epoch); ok && st == models.CallNegotiating {
				s.fail(epoch, fmt.Errorf("send %s: %w", m.Type, err))
				return
			}
			s.log.Warn("signaling send failed", zap.String("type", string(m.Type)), zap.Error(err))
		}
	}
}

// bound fails a negotiation that has not connected within ConnectWait.
func (s *Session) bound(ctx context.Context, epoch uint64, established <-chan struct{}) {
	t := time.NewTimer(s.cfg.ConnectWait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return
	case <-established:
		return
	case <-t.C:
	}

	s.negMu.Lock()
	heard := s.remoteSDP != ""
	s.negMu.Unlock()
	if !heard {
		s.fail(epoch, fmt.Errorf("%w: nothing from the other side within %s", signaling.ErrNoPeer, s.cfg.ConnectWait))
		return
	}
	s.fail(epoch, fmt.Errorf("%w: not connected within %s", ErrNegotiationFailed, s.cfg.ConnectWait))
}

func (s *Session) receive(epoch uint64, sub signaling.Subscription) {
	for msg := range sub.Receive() {
		if !s.current(epoch) {
			continue
		}
		s.handle(epoch, msg)
	}
	if st, ok := s.stateAt(epoch); ok && st == models.CallNegotiating {
		s.fail(epoch, fmt.Errorf("%w: signaling channel closed", ErrNegotiationFailed))
	}
}

func (s *Session) handle(epoch uint64, msg signaling.Message) {
	switch msg.Type {
	case signaling.TypeHangup:
		if st, ok := s.stateAt(epoch); ok && st == models.CallNegotiating {
			s.fail(epoch, fmt.Errorf("%w: remote peer left", ErrNegotiationFailed))
			return
		}
		s.remoteClosed(epoch, ReasonRemoteHangup)
	case signaling.TypeOffer:
		if s.cfg.Role == models.RoleParticipant {
			s.applyOffer(epoch, msg.SDP)
		}
	case signaling.TypeAnswer:
		if s.cfg.Role == models.RoleHost {
			s.applyAnswer(epoch, msg.SDP)
		}
	case signaling.TypeICECandidate:
		if msg.Candidate != nil {
			s.applyCandidate(epoch, webrtc.ICECandidateInit{
				Candidate:     msg.Candidate.Candidate,
				SDPMid:        msg.Candidate.SDPMid,
				SDPMLineIndex: msg.Candidate.SDPMLineIndex,
			})
		}
	}
}

func (s *Session) applyOffer(epoch uint64, sdp string) {
	s.negMu.Lock()
	defer s.negMu.Unlock()
	pc := s.peer(epoch)
	if pc == nil || sdp == s.remoteSDP {
		return
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		s.fail(epoch, fmt.Errorf("%w: apply offer: %v", ErrNegotiationFailed, err))
		return
	}
	s.remoteSDP = sdp
	s.flushPending(pc)

	answer, err := pc.CreateAnswer()
	if err != nil {
		s.fail(epoch, fmt.Errorf("%w: create answer: %v", ErrNegotiationFailed, err))
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		s.fail(epoch, fmt.Errorf("%w: set local answer: %v", ErrNegotiationFailed, err))
		return
	}
	s.sendDescription(epoch, signaling.TypeAnswer, answer.SDP)
}

func (s *Session) applyAnswer(epoch uint64, sdp string) {
	s.negMu.Lock()
	defer s.negMu.Unlock()
	pc := s.peer(epoch)
	if pc == nil || s.remoteSDP != "" {
		return
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		s.fail(epoch, fmt.Errorf("%w: apply answer: %v", ErrNegotiationFailed, err))
		return
	}
	s.remoteSDP = sdp
	s.flushPending(pc)
}

// applyCandidate holds candidates that arrive before the remote description.
func (s *Session) applyCandidate(epoch uint64, c webrtc.ICECandidateInit) {
	s.negMu.Lock()
	defer s.negMu.Unlock()
	pc := s.peer(epoch)
	if pc == nil {
		return
	}
	if s.remoteSDP == "" {
		s.pending = append(s.pending, c)
		return
	}
	if err := pc.AddICECandidate(c); err != nil {
		s.log.Debug("ignoring remote candidate", zap.Error(err))
	}
}

func (s *Session) flushPending(pc rtc.PeerConn) {
	for _, c := range s.pending {
		if err := pc.AddICECandidate(c); err != nil {
			s.log.Debug("ignoring buffered remote candidate", zap.Error(err))
		}
	}
	s.pending = nil
}

func (s *Session) peerState(epoch uint64, st webrtc.PeerConnectionState) {
	state, ok := s.stateAt(epoch)
	if !ok {
		return
	}
	switch st {
	case webrtc.PeerConnectionStateConnected:
		if state == models.CallNegotiating {
			s.connected(epoch)
		}
	case webrtc.PeerConnectionStateFailed:
		if state == models.CallNegotiating {
			s.fail(epoch, fmt.Errorf("%w: ice connection failed", ErrNegotiationFailed))
		} else if state == models.CallConnected {
			s.remoteClosed(epoch, ReasonConnectionLost)
		}
	case webrtc.PeerConnectionStateClosed:
		if state == models.CallConnected {
			s.remoteClosed(epoch, ReasonConnectionLost)
		}
	}
}

func (s *Session) connected(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch || s.state != models.CallNegotiating {
		s.mu.Unlock()
		return
	}
	s.state = models.CallConnected
	s.connectedAt = s.cfg.Clock()
	stop := make(chan struct{})
	s.tickStop = stop
	close(s.established)
	done := s.takeDoneLocked()
	s.mu.Unlock()

	go s.tick(stop)
	s.log.Info("call connected")
	metrics.ObserveCall(string(s.cfg.Role), "connected")
	notify(done, nil)
	s.publish()
}

func (s *Session) tick(stop <-chan struct{}) {
	t := time.NewTicker(s.cfg.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.publish()
		}
	}
}

// fail moves a session that is still setting up to failed and releases
// everything it holds.
func (s *Session) fail(epoch uint64, err error) {
	s.mu.Lock()
	if epoch != s.epoch || (s.state != models.CallAcquiringMedia && s.state != models.CallNegotiating) {
		s.mu.Unlock()
		return
	}
	s.state = models.CallFailed
	s.err = err
	r := s.detachLocked()
	done := s.takeDoneLocked()
	s.mu.Unlock()

	releaseMedia(r)
	if !errors.Is(err, signaling.ErrNoPeer) {
		s.hangup(r)
	}
	closeSubscription(r)
	s.log.Warn("call failed", zap.Error(err))
	metrics.ObserveCall(string(s.cfg.Role), "failed")
	notify(done, err)
	s.publish()
}

// remoteClosed handles the counterpart leaving a connected call. The
// interview status is left alone; only the host's End completes it.
func (s *Session) remoteClosed(epoch uint64, reason EndReason) {
	s.mu.Lock()
	if epoch != s.epoch || s.state != models.CallConnected {
		s.mu.Unlock()
		return
	}
	s.closeLocked(reason)
	r := s.detachLocked()
	done := s.takeDoneLocked()
	s.mu.Unlock()

	releaseMedia(r)
	closeSubscription(r)
	s.log.Info("call closed by remote", zap.String("reason", string(reason)))
	metrics.ObserveCall(string(s.cfg.Role), string(reason))
	notify(done, ErrSessionClosed)
	s.publish()
}

// End tears the session down. Media is released before End returns. When the
// local user is the host the interview is then completed; a call that never
// reached in_progress is left as is. End may be called more than once.
func (s *Session) End(ctx context.Context, reason EndReason) error {
	if reason == "" {
		reason = ReasonUser
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil
	}
	s.ended = true
	wasActive := s.state.Active()
	if wasActive {
		s.closeLocked(reason)
	}
	r := s.detachLocked()
	done := s.takeDoneLocked()
	s.mu.Unlock()

	releaseMedia(r)
	s.hangup(r)
	closeSubscription(r)
	notify(done, ErrSessionClosed)
	if wasActive {
		s.log.Info("call ended", zap.String("reason", string(reason)))
		metrics.ObserveCall(string(s.cfg.Role), string(reason))
		s.publish()
	}

	if s.cfg.Role != models.RoleHost {
		return nil
	}
	// An in_progress write still in flight must land before completing,
	// or it would reopen the interview afterwards.
	settled := make(chan struct{})
	go func() {
		s.writes.Wait()
		close(settled)
	}()
	select {
	case <-settled:
	case <-ctx.Done():
		return fmt.Errorf("complete interview: %w", ctx.Err())
	}
	if _, err := s.cfg.Records.SetStatus(ctx, s.cfg.InterviewID, models.StatusCompleted); err != nil {
		if errors.Is(err, interview.ErrInvalidTransition) {
			return nil
		}
		return fmt.Errorf("complete interview: %w", err)
	}
	return nil
}

func (s *Session) closeLocked(reason EndReason) {
	s.state = models.CallClosed
	s.reason = reason
	if !s.connectedAt.IsZero() {
		s.endedAt = s.cfg.Clock()
	}
}

// detachLocked hands every held resource to the caller, stops the ticker and
// advances the epoch so in-flight handlers give up.
func (s *Session) detachLocked() resources {
	r := s.res
	s.res = resources{}
	s.sharing = false
	if s.tickStop != nil {
		close(s.tickStop)
		s.tickStop = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.epoch++
	return r
}

func (s *Session) takeDoneLocked() chan error {
	done := s.done
	s.done = nil
	return done
}

func notify(done chan error, err error) {
	if done != nil {
		done <- err
	}
}

// hangup tells the counterpart this side is leaving. Delivery is best effort.
func (s *Session) hangup(r resources) {
	if r.sub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HangupTimeout)
	defer cancel()
	err := s.cfg.Signaling.Send(ctx, signaling.Message{
		Type:        signaling.TypeHangup,
		InterviewID: s.cfg.InterviewID,
		From:        s.cfg.Role,
	})
	if err != nil {
		s.log.Debug("hangup not delivered", zap.Error(err))
	}
}

func releaseMedia(r resources) {
	if r.display != nil {
		r.display.Stop()
	}
	if r.stream != nil {
		r.stream.Stop()
	}
	if r.pc != nil {
		r.pc.Close()
	}
}

func closeSubscription(r resources) {
	if r.sub != nil {
		r.sub.Close()
	}
}

// ToggleMute flips the local microphone and returns whether it is now muted.
func (s *Session) ToggleMute() (bool, error) {
	s.mu.Lock()
	if s.res.stream == nil || s.res.stream.Audio() == nil {
		s.mu.Unlock()
		return false, ErrSessionClosed
	}
	s.muted = !s.muted
	s.res.stream.Audio().SetEnabled(!s.muted)
	muted := s.muted
	s.mu.Unlock()
	s.publish()
	return muted, nil
}

// ToggleVideo flips the local camera and returns whether it is now enabled.
func (s *Session) ToggleVideo() (bool, error) {
	s.mu.Lock()
	if s.res.stream == nil || s.res.stream.Video() == nil {
		s.mu.Unlock()
		return false, ErrSessionClosed
	}
	s.videoOff = !s.videoOff
	s.res.stream.Video().SetEnabled(!s.videoOff)
	enabled := !s.videoOff
	s.mu.Unlock()
	s.publish()
	return enabled, nil
}

// ToggleScreenShare swaps the outgoing video between camera and screen and
// returns whether the screen is now shared. Only the host may share.
func (s *Session) ToggleScreenShare(ctx context.Context) (bool, error) {
	if s.cfg.Role != models.RoleHost {
		return false, fmt.Errorf("%w: only the host can share the screen", interview.ErrForbidden)
	}
	s.mu.Lock()
	epoch := s.epoch
	ready := s.res.video != nil && (s.state == models.CallNegotiating || s.state == models.CallConnected)
	sharing := s.sharing
	display := s.res.display
	s.mu.Unlock()
	if !ready {
		return false, ErrSessionClosed
	}
	if sharing {
		return false, s.stopSharing(epoch, display)
	}

	stream, err := s.cfg.Devices.DisplayMedia(ctx)
	if err != nil {
		return false, err
	}
	track := stream.Video()

	s.negMu.Lock()
	s.mu.Lock()
	if epoch != s.epoch || !s.state.Active() || s.sharing {
		s.mu.Unlock()
		s.negMu.Unlock()
		stream.Stop()
		return false, ErrSessionClosed
	}
	sender := s.res.video
	s.mu.Unlock()
	if err := sender.ReplaceTrack(track.Local()); err != nil {
		s.negMu.Unlock()
		stream.Stop()
		return false, fmt.Errorf("replace video track: %w", err)
	}
	applied := s.attach(epoch, func() {
		s.res.display = stream
		s.sharing = true
	})
	s.negMu.Unlock()
	if !applied {
		stream.Stop()
		return false, ErrSessionClosed
	}

	go func() {
		<-track.Ended()
		if err := s.stopSharing(epoch, stream); err != nil && !errors.Is(err, ErrSessionClosed) {
			s.log.Warn("revert to camera failed", zap.Error(err))
		}
	}()
	s.publish()
	return true, nil
}

// stopSharing puts the camera back on the video sender if display is still
// the active screen share.
func (s *Session) stopSharing(epoch uint64, display media.Stream) error {
	s.negMu.Lock()
	s.mu.Lock()
	if epoch != s.epoch || display == nil || s.res.display != display {
		s.mu.Unlock()
		s.negMu.Unlock()
		return ErrSessionClosed
	}
	sender, camera := s.res.video, s.res.stream.Video()
	s.res.display = nil
	s.sharing = false
	s.mu.Unlock()

	err := sender.ReplaceTrack(camera.Local())
	s.negMu.Unlock()
	display.Stop()
	s.publish()
	if err != nil {
		return fmt.Errorf("restore camera track: %w", err)
	}
	return nil
}

// Elapsed is the time since the call connected, frozen once it closes.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *Session) elapsedLocked() time.Duration {
	switch {
	case s.connectedAt.IsZero():
		return 0
	case !s.endedAt.IsZero():
		return s.endedAt.Sub(s.connectedAt)
	case s.state == models.CallConnected:
		return s.cfg.Clock().Sub(s.connectedAt)
	default:
		return 0
	}
}

func (s *Session) State() models.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err is the error that moved the session to failed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// TimerActive reports whether the elapsed-time ticker is scheduled.
func (s *Session) TimerActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickStop != nil
}

// Interview is the record as last seen by the session.
func (s *Session) Interview() *models.Interview {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.iv == nil {
		return nil
	}
	cp := *s.iv
	return &cp
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		InterviewID:   s.cfg.InterviewID,
		Role:          s.cfg.Role,
		State:         s.state,
		Muted:         s.muted,
		VideoEnabled:  !s.videoOff,
		ScreenSharing: s.sharing,
		Elapsed:       s.elapsedLocked(),
		Reason:        s.reason,
		Err:           s.err,
	}
}

// Observe streams snapshots until ctx ends. A slow observer misses
// intermediate snapshots but always sees the latest one.
func (s *Session) Observe(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, observerBuffer)
	s.mu.Lock()
	s.observers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.observers, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

func (s *Session) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	for ch := range s.observers {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
