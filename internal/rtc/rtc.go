// Package rtc wraps peer connections behind a small interface so the call
// orchestrator can be driven by pion in production and by fakes in tests.
package rtc

import (
	"fmt"

	"github.com/kiranshivaraju/intervue/internal/config"
	"github.com/kiranshivaraju/intervue/internal/logger"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Sender is the outgoing side of one negotiated track.
type Sender interface {
	// ReplaceTrack swaps the outgoing track without renegotiation.
	ReplaceTrack(track webrtc.TrackLocal) error
}

// PeerConn is the subset of a WebRTC peer connection the call session uses.
type PeerConn interface {
	AddTrack(track webrtc.TrackLocal) (Sender, error)
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	// OnICECandidate fires for every local candidate, then once with nil when
	// gathering completes.
	OnICECandidate(fn func(*webrtc.ICECandidateInit))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))
	Close() error
}

type Factory interface {
	NewPeerConn(cfg webrtc.Configuration) (PeerConn, error)
}

// Config builds the ICE configuration from STUN and TURN settings.
func Config(cfg config.WebRTCConfig) webrtc.Configuration {
	var servers []webrtc.ICEServer
	for _, stun := range cfg.STUNServers {
		if stun == "" {
			continue
		}
		servers = append(servers, webrtc.ICEServer{URLs: []string{stun}})
	}
	if cfg.TURNURL != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{cfg.TURNURL},
			Username:   cfg.TURNUsername,
			Credential: cfg.TURNPassword,
		})
	}

	return webrtc.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
		BundlePolicy:       webrtc.BundlePolicyMaxBundle,
		RTCPMuxPolicy:      webrtc.RTCPMuxPolicyRequire,
	}
}

// PionFactory creates pion peer connections with the default codecs.
type PionFactory struct {
	api    *webrtc.API
	logger *zap.Logger
}

func NewPionFactory(l *zap.Logger) (*PionFactory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	return &PionFactory{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		logger: logger.OrNop(l),
	}, nil
}

func (f *PionFactory) NewPeerConn(cfg webrtc.Configuration) (PeerConn, error) {
	pc, err := f.api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		f.logger.Debug("remote track",
			zap.String("kind", track.Kind().String()),
			zap.String("codec", track.Codec().MimeType))
		go drainRemote(track)
	})
	return &pionPeer{pc: pc}, nil
}

type pionPeer struct {
	pc *webrtc.PeerConnection
}

func (p *pionPeer) AddTrack(track webrtc.TrackLocal) (Sender, error) {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	go drainRTCP(sender)
	return sender, nil
}

func (p *pionPeer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *pionPeer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *pionPeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

func (p *pionPeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *pionPeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(c)
}

func (p *pionPeer) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			fn(nil)
			return
		}
		init := c.ToJSON()
		fn(&init)
	})
}

func (p *pionPeer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(fn)
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}

// drainRTCP reads sender reports so interceptors keep working; it ends when
// the sender is stopped.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func drainRemote(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}
