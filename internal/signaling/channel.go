package signaling

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/intervue/pkg/models"
)

// Channel exchanges messages between the two parties of an interview.
//
// Advertise marks the caller ready to negotiate and returns a Subscription
// that is already receiving: any message sent to the caller after Advertise
// returns is delivered. Send delivers at least once to the counterpart of
// msg.From on msg.InterviewID, waiting a bounded time for the counterpart to
// advertise before failing with ErrNoPeer. Messages from one sender arrive in
// send order.
type Channel interface {
	Advertise(ctx context.Context, interviewID uuid.UUID, role models.Role) (Subscription, error)
	Send(ctx context.Context, msg Message) error
}

// Subscription is the receiving end of an advertisement.
type Subscription interface {
	// Receive yields incoming messages. It is closed after Close, or when the
	// underlying transport is lost.
	Receive() <-chan Message
	// Close withdraws the advertisement. Safe to call more than once.
	Close() error
}

// queue is an unbounded FIFO in front of a channel, so producers never block
// on a slow consumer.
type queue struct {
	mu     sync.Mutex
	items  []Message
	closed bool
	notify chan struct{}
	done   chan struct{}
	out    chan Message
	once   sync.Once
}

func newQueue() *queue {
	q := &queue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan Message),
	}
	go q.run()
	return q
}

// push appends m. It reports false once the queue is closed.
func (q *queue) push(m Message) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *queue) run() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			select {
			case <-q.notify:
				continue
			case <-q.done:
				return
			}
		}
		m := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- m:
		case <-q.done:
			return
		}
	}
}

func (q *queue) close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.items = nil
		q.mu.Unlock()
		close(q.done)
	})
}
