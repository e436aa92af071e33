package signaling

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kiranshivaraju/intervue/internal/logger"
	"github.com/kiranshivaraju/intervue/pkg/models"
	"go.uber.org/zap"
)

// WSChannel is the client side of the relay. It implements Channel for one
// authenticated user; each Advertise opens a websocket for that interview.
type WSChannel struct {
	baseURL string
	token   string
	dialer  *websocket.Dialer
	logger  *zap.Logger

	mu    sync.Mutex
	conns map[uuid.UUID]*wsSub
	seq   atomic.Uint64
}

// NewWSChannel targets the relay of the API at baseURL (http or https).
func NewWSChannel(baseURL, token string, l *zap.Logger) *WSChannel {
	return &WSChannel{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:  logger.OrNop(l),
		conns:   make(map[uuid.UUID]*wsSub),
	}
}

func (c *WSChannel) endpoint(interviewID uuid.UUID) string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return fmt.Sprintf("%s/api/v1/interviews/%s/signal", u, interviewID)
}

// Advertise dials the relay. The relay advertises before it accepts the
// handshake, so the returned subscription is already live.
func (c *WSChannel) Advertise(ctx context.Context, interviewID uuid.UUID, role models.Role) (Subscription, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint(interviewID), header)
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusConflict {
				return nil, fmt.Errorf("dial relay: %w", ErrNotLive)
			}
			return nil, fmt.Errorf("dial relay: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	sub := &wsSub{
		owner:       c,
		interviewID: interviewID,
		role:        role,
		conn:        conn,
		q:           newQueue(),
		pending:     make(map[uint64]chan *FrameError),
		done:        make(chan struct{}),
	}

	c.mu.Lock()
	prev := c.conns[interviewID]
	c.conns[interviewID] = sub
	c.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	go sub.read()
	return sub, nil
}

// Send relays msg through the subscription advertised for msg.InterviewID and
// waits for the relay's ack.
func (c *WSChannel) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	sub := c.conns[msg.InterviewID]
	c.mu.Unlock()
	if sub == nil {
		return ErrNotAdvertised
	}
	msg.From = sub.role
	if err := msg.Validate(); err != nil {
		return err
	}
	return sub.send(ctx, c.seq.Add(1), msg)
}

type wsSub struct {
	owner       *WSChannel
	interviewID uuid.UUID
	role        models.Role
	conn        *websocket.Conn
	q           *queue

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]chan *FrameError
	closed  bool

	done chan struct{}
	once sync.Once
}

func (s *wsSub) Receive() <-chan Message { return s.q.out }

func (s *wsSub) Close() error {
	s.shutdown()
	s.owner.mu.Lock()
	if s.owner.conns[s.interviewID] == s {
		delete(s.owner.conns, s.interviewID)
	}
	s.owner.mu.Unlock()
	return nil
}

func (s *wsSub) shutdown() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		for seq, ch := range s.pending {
			close(ch)
			delete(s.pending, seq)
		}
		s.mu.Unlock()

		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()

		s.q.close()
		close(s.done)
	})
}

func (s *wsSub) send(ctx context.Context, seq uint64, msg Message) error {
	ack := make(chan *FrameError, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.pending[seq] = ack
	s.mu.Unlock()

	s.writeMu.Lock()
	err := s.conn.WriteJSON(Frame{Type: FrameSignal, Seq: seq, Message: &msg})
	s.writeMu.Unlock()
	if err != nil {
		s.forget(seq)
		return fmt.Errorf("write frame: %w", err)
	}

	select {
	case fe, ok := <-ack:
		if !ok {
			return ErrClosed
		}
		return ackError(fe)
	case <-ctx.Done():
		s.forget(seq)
		return ctx.Err()
	}
}

func (s *wsSub) forget(seq uint64) {
	s.mu.Lock()
	delete(s.pending, seq)
	s.mu.Unlock()
}

func (s *wsSub) read() {
	defer s.shutdown()
	for {
		var f Frame
		if err := s.conn.ReadJSON(&f); err != nil {
			select {
			case <-s.done:
			default:
				s.owner.logger.Debug("relay connection ended",
					zap.String("interview_id", s.interviewID.String()), zap.Error(err))
			}
			return
		}
		switch f.Type {
		case FrameSignal:
			if f.Message != nil {
				s.q.push(*f.Message)
			}
		case FrameAck:
			s.mu.Lock()
			ch := s.pending[f.Seq]
			delete(s.pending, f.Seq)
			s.mu.Unlock()
			if ch != nil {
				ch <- f.Error
			}
		}
	}
}

func ackError(fe *FrameError) error {
	if fe == nil {
		return nil
	}
	switch fe.Code {
	case CodeNoPeer:
		return ErrNoPeer
	case CodeInvalidMessage:
		return fmt.Errorf("%w: %s", ErrInvalidMessage, fe.Message)
	}
	return fmt.Errorf("relay error %s: %s", fe.Code, fe.Message)
}
