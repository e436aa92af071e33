package signaling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/intervue/pkg/models"
)

const defaultPollInterval = 50 * time.Millisecond

type peerKey struct {
	interviewID uuid.UUID
	role        models.Role
}

// MemoryBroker is an in-process Channel. It backs the relay when the server
// runs as a single node.
type MemoryBroker struct {
	peerWait time.Duration
	poll     time.Duration

	mu   sync.Mutex
	subs map[peerKey]*memorySub
}

func NewMemoryBroker(peerWait time.Duration) *MemoryBroker {
	return &MemoryBroker{
		peerWait: peerWait,
		poll:     defaultPollInterval,
		subs:     make(map[peerKey]*memorySub),
	}
}

// Advertise registers the caller. A second advertisement for the same role
// supersedes the first, whose subscription is closed.
func (b *MemoryBroker) Advertise(_ context.Context, interviewID uuid.UUID, role models.Role) (Subscription, error) {
	if !role.Valid() {
		return nil, ErrInvalidMessage
	}
	key := peerKey{interviewID, role}
	sub := &memorySub{broker: b, key: key, q: newQueue()}

	b.mu.Lock()
	prev := b.subs[key]
	b.subs[key] = sub
	b.mu.Unlock()

	if prev != nil {
		prev.q.close()
	}
	return sub, nil
}

func (b *MemoryBroker) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	key := peerKey{msg.InterviewID, msg.From.Counterpart()}

	return waitForPeer(ctx, b.peerWait, b.poll, func() (bool, error) {
		b.mu.Lock()
		sub := b.subs[key]
		b.mu.Unlock()
		return sub != nil && sub.q.push(msg), nil
	})
}

// Advertised reports whether role currently has a live subscription.
func (b *MemoryBroker) Advertised(interviewID uuid.UUID, role models.Role) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[peerKey{interviewID, role}]
	return ok
}

func (b *MemoryBroker) remove(sub *memorySub) {
	b.mu.Lock()
	if b.subs[sub.key] == sub {
		delete(b.subs, sub.key)
	}
	b.mu.Unlock()
}

type memorySub struct {
	broker *MemoryBroker
	key    peerKey
	q      *queue
}

func (s *memorySub) Receive() <-chan Message { return s.q.out }

func (s *memorySub) Close() error {
	s.broker.remove(s)
	s.q.close()
	return nil
}

// waitForPeer calls try until it reports delivery, the wait elapses
// (ErrNoPeer) or ctx ends.
func waitForPeer(ctx context.Context, wait, poll time.Duration, try func() (bool, error)) error {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrNoPeer
		case <-ticker.C:
		}
	}
}
