package call_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/intervue/internal/call"
	"github.com/kiranshivaraju/intervue/internal/interview"
	"github.com/kiranshivaraju/intervue/internal/rtc"
	"github.com/kiranshivaraju/intervue/pkg/models"
	"github.com/pion/webrtc/v3"
)

// fakeNet hands out fake peer connections. A peer reports connected once it
// has both descriptions and at least one remote candidate. Callbacks run
// synchronously on the calling goroutine.
type fakeNet struct {
	mu       sync.Mutex
	peers    []*fakePeer
	failICE  bool
	newErr   error
	sequence int
}

func (n *fakeNet) NewPeerConn(webrtc.Configuration) (rtc.PeerConn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.newErr != nil {
		return nil, n.newErr
	}
	n.sequence++
	p := &fakePeer{net: n, id: n.sequence, state: webrtc.PeerConnectionStateNew}
	n.peers = append(n.peers, p)
	return p, nil
}

func (n *fakeNet) last() *fakePeer {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.peers) == 0 {
		return nil
	}
	return n.peers[len(n.peers)-1]
}

func (n *fakeNet) failing() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.failICE
}

type fakePeer struct {
	net *fakeNet
	id  int

	mu          sync.Mutex
	local       *webrtc.SessionDescription
	remote      *webrtc.SessionDescription
	remoteCands []webrtc.ICECandidateInit
	senders     []*fakeSender
	onCand      func(*webrtc.ICECandidateInit)
	onState     func(webrtc.PeerConnectionState)
	state       webrtc.PeerConnectionState
	closed      bool
}

func (p *fakePeer) AddTrack(track webrtc.TrackLocal) (rtc.Sender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &fakeSender{track: track}
	p.senders = append(p.senders, s)
	return s, nil
}

func (p *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("v=0 offer %d", p.id)}, nil
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return webrtc.SessionDescription{}, errors.New("no remote offer")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("v=0 answer %d", p.id)}, nil
}

func (p *fakePeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	p.local = &desc
	onCand := p.onCand
	p.mu.Unlock()

	if onCand != nil {
		for i := 1; i <= 2; i++ {
			c := webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%d-%d 1 udp 1 127.0.0.1 %d typ host", p.id, i, 5000+i)}
			onCand(&c)
		}
		onCand(nil)
	}
	p.check()
	return nil
}

func (p *fakePeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	p.remote = &desc
	p.mu.Unlock()
	p.check()
	return nil
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	if p.remote == nil {
		p.mu.Unlock()
		return errors.New("remote description not set")
	}
	p.remoteCands = append(p.remoteCands, c)
	p.mu.Unlock()
	p.check()
	return nil
}

func (p *fakePeer) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	p.mu.Lock()
	p.onCand = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.setState(webrtc.PeerConnectionStateClosed)
	return nil
}

func (p *fakePeer) check() {
	p.mu.Lock()
	ready := p.local != nil && p.remote != nil && len(p.remoteCands) > 0 && p.state == webrtc.PeerConnectionStateNew
	p.mu.Unlock()
	if !ready {
		return
	}
	if p.net.failing() {
		p.setState(webrtc.PeerConnectionStateFailed)
		return
	}
	p.setState(webrtc.PeerConnectionStateConnected)
}

// setState records st and notifies the handler outside the lock.
func (p *fakePeer) setState(st webrtc.PeerConnectionState) {
	p.mu.Lock()
	if p.state == st || p.state == webrtc.PeerConnectionStateClosed {
		p.mu.Unlock()
		return
	}
	p.state = st
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// drop simulates the transport dying under a connected call.
func (p *fakePeer) drop() { p.setState(webrtc.PeerConnectionStateFailed) }

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) candidates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.remoteCands)
}

func (p *fakePeer) sender(i int) *fakeSender {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.senders[i]
}

type fakeSender struct {
	mu       sync.Mutex
	track    webrtc.TrackLocal
	replaced int
}

func (s *fakeSender) ReplaceTrack(track webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track = track
	s.replaced++
	return nil
}

func (s *fakeSender) trackID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track.ID()
}

func (s *fakeSender) replacements() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaced
}

// recordStore is a single interview record shared by both sides. Status
// changes go through the real transition rules.
type recordStore struct {
	mu      sync.Mutex
	iv      models.Interview
	applied []models.InterviewStatus

	// A write to held waits for release and then lands regardless of the
	// caller's context, the way a request the server already took does.
	held    models.InterviewStatus
	release chan struct{}
	parked  chan struct{}
}

// hold parks the next write to status until the returned func is called.
func (r *recordStore) hold(status models.InterviewStatus) (parked <-chan struct{}, release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.held = status
	r.release = make(chan struct{})
	r.parked = make(chan struct{})
	rel := r.release
	return r.parked, func() { close(rel) }
}

func (r *recordStore) as(role models.Role) call.Records {
	return recordView{store: r, role: role}
}

func (r *recordStore) status() models.InterviewStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.iv.Status
}

func (r *recordStore) transitions() []models.InterviewStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.InterviewStatus(nil), r.applied...)
}

type recordView struct {
	store *recordStore
	role  models.Role
}

func (v recordView) Get(_ context.Context, id uuid.UUID) (*models.Interview, error) {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	if id != v.store.iv.ID {
		return nil, errors.New("not found")
	}
	iv := v.store.iv
	return &iv, nil
}

func (v recordView) SetStatus(_ context.Context, id uuid.UUID, to models.InterviewStatus) (*models.Interview, error) {
	v.store.mu.Lock()
	if v.store.held == to && v.store.release != nil {
		release, parked := v.store.release, v.store.parked
		v.store.held, v.store.release = "", nil
		v.store.mu.Unlock()
		close(parked)
		<-release
		v.store.mu.Lock()
	}
	defer v.store.mu.Unlock()
	next, err := interview.Transition(v.store.iv, to, v.role)
	if err != nil {
		return nil, err
	}
	v.store.iv = next
	v.store.applied = append(v.store.applied, to)
	return &next, nil
}
