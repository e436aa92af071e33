package signaling

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kiranshivaraju/intervue/internal/logger"
	"github.com/kiranshivaraju/intervue/internal/metrics"
	"github.com/kiranshivaraju/intervue/pkg/models"
	"go.uber.org/zap"
)

type FrameType string

const (
	FrameSignal FrameType = "signal"
	FrameAck    FrameType = "ack"
)

// Ack error codes.
const (
	CodeNoPeer         = "NO_PEER"
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeInternal       = "INTERNAL_ERROR"
)

// Frame is the websocket envelope between a client and the relay. Clients
// send signal frames with a seq; the relay acks every one of them.
type Frame struct {
	Type    FrameType   `json:"type"`
	Seq     uint64      `json:"seq,omitempty"`
	Message *Message    `json:"message,omitempty"`
	Error   *FrameError `json:"error,omitempty"`
}

type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InterviewLookup loads an interview on behalf of a member.
type InterviewLookup interface {
	Get(ctx context.Context, userID string, id uuid.UUID) (*models.Interview, error)
}

type RelayConfig struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	// AllowedOrigins lists the browser origins that may open a relay socket;
	// "*" admits any. When empty only same-origin pages are admitted.
	// Requests without an Origin header come from non-browser clients and
	// are admitted on their bearer token alone.
	AllowedOrigins []string
}

// Relay bridges websocket clients onto a broker Channel. The sender role of
// every relayed message is taken from the interview record, never from the
// client.
type Relay struct {
	interviews InterviewLookup
	broker     Channel
	upgrader   websocket.Upgrader
	cfg        RelayConfig
	logger     *zap.Logger
}

func NewRelay(interviews InterviewLookup, broker Channel, cfg RelayConfig, l *zap.Logger) *Relay {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	rl := &Relay{
		interviews: interviews,
		broker:     broker,
		cfg:        cfg,
		logger:     logger.OrNop(l),
	}
	rl.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     rl.originAllowed,
	}
	return rl
}

func (rl *Relay) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(rl.cfg.AllowedOrigins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range rl.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Authorize resolves the caller's role on a live video interview. It runs
// before the upgrade so refusals are plain HTTP errors.
func (rl *Relay) Authorize(ctx context.Context, userID string, interviewID uuid.UUID) (models.Role, error) {
	iv, err := rl.interviews.Get(ctx, userID, interviewID)
	if err != nil {
		return "", err
	}
	role, _ := iv.RoleOf(userID)
	if iv.Type != models.TypeVideo || iv.Status != models.StatusInProgress {
		return "", ErrNotLive
	}
	return role, nil
}

// Serve upgrades the request and relays until either side goes away.
func (rl *Relay) Serve(w http.ResponseWriter, r *http.Request, interviewID uuid.UUID, role models.Role) {
	log := rl.logger.With(
		zap.String("interview_id", interviewID.String()),
		zap.String("role", string(role)))

	if !rl.originAllowed(r) {
		log.Warn("signaling origin refused", zap.String("origin", r.Header.Get("Origin")))
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Advertise before completing the handshake: once the client's dial
	// returns, messages addressed to it are already being collected.
	sub, err := rl.broker.Advertise(ctx, interviewID, role)
	if err != nil {
		log.Error("advertise failed", zap.Error(err))
		http.Error(w, "signaling unavailable", http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	conn, err := rl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.PeerAttached()
	defer metrics.PeerDetached()
	log.Info("signaling peer attached")

	p := &relayPeer{conn: conn, writeTimeout: rl.cfg.WriteTimeout}
	outbound := make(chan Frame, 64)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		rl.forward(ctx, cancel, p, sub)
	}()
	go func() {
		defer wg.Done()
		rl.dispatch(ctx, p, outbound, interviewID, role, log)
	}()
	go func() {
		defer wg.Done()
		p.keepalive(ctx, cancel, rl.cfg.PingInterval)
	}()

	readDeadline := 3 * rl.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				log.Debug("signaling read ended", zap.Error(err))
			}
			break
		}
		if f.Type != FrameSignal || f.Message == nil {
			_ = p.write(Frame{Type: FrameAck, Seq: f.Seq, Error: &FrameError{Code: CodeInvalidMessage, Message: "expected a signal frame"}})
			continue
		}
		select {
		case outbound <- f:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	cancel()
	wg.Wait()
	log.Info("signaling peer detached")
}

// forward pushes broker messages to the websocket.
func (rl *Relay) forward(ctx context.Context, cancel context.CancelFunc, p *relayPeer, sub Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Receive():
			if !ok {
				cancel()
				return
			}
			m := msg
			if err := p.write(Frame{Type: FrameSignal, Message: &m}); err != nil {
				cancel()
				return
			}
		}
	}
}

// dispatch sends client frames to the broker one at a time, keeping the
// sender's order, and acks each.
func (rl *Relay) dispatch(ctx context.Context, p *relayPeer, in <-chan Frame, interviewID uuid.UUID, role models.Role, log *zap.Logger) {
	for {
		var f Frame
		select {
		case <-ctx.Done():
			return
		case f = <-in:
		}

		msg := *f.Message
		msg.InterviewID = interviewID
		msg.From = role
		msg.SentAt = time.Now().UTC()

		ack := Frame{Type: FrameAck, Seq: f.Seq}
		err := rl.broker.Send(ctx, msg)
		switch {
		case err == nil:
			metrics.ObserveSignal(string(msg.Type), "ok")
		case errors.Is(err, ErrNoPeer):
			ack.Error = &FrameError{Code: CodeNoPeer, Message: "the other party has not joined the call"}
		case errors.Is(err, ErrInvalidMessage):
			ack.Error = &FrameError{Code: CodeInvalidMessage, Message: err.Error()}
		case ctx.Err() != nil:
			return
		default:
			log.Error("relay send failed", zap.String("type", string(msg.Type)), zap.Error(err))
			ack.Error = &FrameError{Code: CodeInternal, Message: "signaling relay error"}
		}
		if ack.Error != nil {
			metrics.ObserveSignal(string(msg.Type), ack.Error.Code)
		}
		if err := p.write(ack); err != nil {
			return
		}
	}
}

// relayPeer serialises writes; gorilla connections allow one writer.
type relayPeer struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (p *relayPeer) write(f Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	return p.conn.WriteJSON(f)
}

func (p *relayPeer) keepalive(ctx context.Context, cancel context.CancelFunc, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(p.writeTimeout))
			p.mu.Unlock()
			// Unblock the reader if the client never answers the close.
			_ = p.conn.SetReadDeadline(time.Now().Add(time.Second))
			return
		case <-ticker.C:
			p.mu.Lock()
			err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(p.writeTimeout))
			p.mu.Unlock()
			if err != nil {
				cancel()
				return
			}
		}
	}
}
