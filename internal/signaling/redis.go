package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/intervue/internal/logger"
	"github.com/kiranshivaraju/intervue/pkg/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func inboxKey(interviewID uuid.UUID, role models.Role) string {
	return fmt.Sprintf("signal:%s:%s:inbox", interviewID, role)
}

func presenceKey(interviewID uuid.UUID, role models.Role) string {
	return fmt.Sprintf("signal:%s:%s:presence", interviewID, role)
}

// Presence is refreshed and withdrawn only by the advertisement that owns it.
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	withdrawScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1], KEYS[2])
end
return 0`)
)

type RedisBrokerConfig struct {
	PeerWait    time.Duration
	PresenceTTL time.Duration
	MaxLen      int64
	ReadBlock   time.Duration
}

// RedisBroker is a Channel over Redis Streams, so relay instances behind a
// load balancer can serve the two ends of one call. Each advertised peer owns
// an inbox stream and a presence key kept alive by a heartbeat. Entries are
// deleted as they are delivered, and Close removes the inbox, so whatever an
// advertisement finds in its inbox was sent to an owner that vanished without
// withdrawing and is delivered to the new one.
type RedisBroker struct {
	client *redis.Client
	cfg    RedisBrokerConfig
	logger *zap.Logger
	poll   time.Duration
}

func NewRedisBroker(client *redis.Client, cfg RedisBrokerConfig, l *zap.Logger) *RedisBroker {
	if cfg.PresenceTTL <= 0 {
		cfg.PresenceTTL = 15 * time.Second
	}
	if cfg.ReadBlock <= 0 {
		cfg.ReadBlock = 2 * time.Second
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 1000
	}
	return &RedisBroker{client: client, cfg: cfg, logger: logger.OrNop(l), poll: defaultPollInterval}
}

func (b *RedisBroker) Advertise(ctx context.Context, interviewID uuid.UUID, role models.Role) (Subscription, error) {
	if !role.Valid() {
		return nil, ErrInvalidMessage
	}
	inbox := inboxKey(interviewID, role)
	presence := presenceKey(interviewID, role)

	runCtx, cancel := context.WithCancel(context.Background())
	sub := &redisSub{
		broker:   b,
		token:    uuid.NewString(),
		inbox:    inbox,
		presence: presence,
		q:        newQueue(),
		cancel:   cancel,
		log: b.logger.With(
			zap.String("interview_id", interviewID.String()),
			zap.String("role", string(role))),
	}

	// The reader starts at the beginning of the stream, so mail left for a
	// vanished owner is picked up along with anything sent from now on.
	go sub.read(runCtx)

	if err := b.client.Set(ctx, presence, sub.token, b.cfg.PresenceTTL).Err(); err != nil {
		cancel()
		sub.q.close()
		return nil, fmt.Errorf("publish presence: %w", err)
	}
	go sub.heartbeat(runCtx)

	return sub, nil
}

func (b *RedisBroker) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	to := msg.From.Counterpart()
	presence := presenceKey(msg.InterviewID, to)
	inbox := inboxKey(msg.InterviewID, to)

	return waitForPeer(ctx, b.cfg.PeerWait, b.poll, func() (bool, error) {
		n, err := b.client.Exists(ctx, presence).Result()
		if err != nil {
			return false, fmt.Errorf("check presence: %w", err)
		}
		if n == 0 {
			return false, nil
		}
		err = b.client.XAdd(ctx, &redis.XAddArgs{
			Stream: inbox,
			MaxLen: b.cfg.MaxLen,
			Approx: true,
			Values: map[string]any{"payload": payload},
		}).Err()
		if err != nil {
			return false, fmt.Errorf("append to inbox: %w", err)
		}
		return true, nil
	})
}

type redisSub struct {
	broker   *RedisBroker
	token    string
	inbox    string
	presence string
	q        *queue
	cancel   context.CancelFunc
	log      *zap.Logger
	once     sync.Once
}

func (s *redisSub) Receive() <-chan Message { return s.q.out }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		s.q.close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err = withdrawScript.Run(ctx, s.broker.client,
			[]string{s.presence, s.inbox}, s.token).Err()
		if errors.Is(err, redis.Nil) {
			err = nil
		}
	})
	return err
}

func (s *redisSub) read(ctx context.Context) {
	lastID := "0"
	for {
		res, err := s.broker.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.inbox, lastID},
			Count:   64,
			Block:   s.broker.cfg.ReadBlock,
		}).Result()
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			s.log.Warn("signaling inbox read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		if !s.owned(ctx) {
			s.log.Info("inbox taken over by a newer advertisement")
			s.Close()
			return
		}

		for _, stream := range res {
			for _, xm := range stream.Messages {
				lastID = xm.ID
				if err := s.broker.client.XDel(ctx, s.inbox, xm.ID).Err(); err != nil && ctx.Err() == nil {
					s.log.Warn("signaling inbox ack failed", zap.String("id", xm.ID), zap.Error(err))
				}
				raw, _ := xm.Values["payload"].(string)
				var msg Message
				if err := json.Unmarshal([]byte(raw), &msg); err != nil {
					s.log.Warn("dropping undecodable signaling message", zap.String("id", xm.ID), zap.Error(err))
					continue
				}
				if !s.q.push(msg) {
					return
				}
			}
		}
	}
}

// owned reports whether another advertisement has taken the presence key.
// A lapsed key still counts as owned until someone else claims it.
func (s *redisSub) owned(ctx context.Context) bool {
	owner, err := s.broker.client.Get(ctx, s.presence).Result()
	if err != nil {
		return true
	}
	return owner == s.token
}

func (s *redisSub) heartbeat(ctx context.Context) {
	ttl := s.broker.cfg.PresenceTTL
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := refreshScript.Run(ctx, s.broker.client,
				[]string{s.presence}, s.token, ttl.Milliseconds()).Int()
			if err != nil {
				if ctx.Err() == nil {
					s.log.Warn("presence refresh failed", zap.Error(err))
				}
				continue
			}
			if n == 1 {
				continue
			}
			if !s.owned(ctx) {
				s.log.Info("presence superseded by a newer advertisement")
				s.Close()
				return
			}
			if err := s.broker.client.SetNX(ctx, s.presence, s.token, ttl).Err(); err != nil && ctx.Err() == nil {
				s.log.Warn("presence restore failed", zap.Error(err))
			}
		}
	}
}
