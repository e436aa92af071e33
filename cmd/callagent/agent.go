package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/intervue/internal/call"
	"github.com/kiranshivaraju/intervue/internal/failure"
	"github.com/kiranshivaraju/intervue/internal/interview"
	"github.com/kiranshivaraju/intervue/internal/logger"
	"github.com/kiranshivaraju/intervue/internal/media"
	"github.com/kiranshivaraju/intervue/internal/rtc"
	"github.com/kiranshivaraju/intervue/internal/signaling"
	"github.com/kiranshivaraju/intervue/pkg/models"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const endTimeout = 10 * time.Second

// Records is what the agent needs from the interview API.
type Records interface {
	call.Records
	ICEServers(ctx context.Context) ([]webrtc.ICEServer, error)
}

type agent struct {
	userID      string
	interviewID uuid.UUID
	records     Records
	signaling   signaling.Channel
	peers       rtc.Factory
	devices     media.Devices
	sessions    *call.Manager
	// ice is used when the API does not hand out ICE servers.
	ice         webrtc.Configuration
	tick        time.Duration
	connectWait time.Duration
	poll        time.Duration
	maxAttempts int
	retryDelay  time.Duration
	log         *zap.Logger
}

// run takes the agent's side of the call until ctx ends. When the other side
// leaves, a participant exits while the host keeps the interview in progress
// and waits for the participant to come back. Only the host hanging up
// completes the interview.
func (a *agent) run(ctx context.Context) error {
	iv, err := a.records.Get(ctx, a.interviewID)
	if err != nil {
		return fmt.Errorf("load interview: %w", err)
	}
	role, ok := iv.RoleOf(a.userID)
	if !ok {
		return fmt.Errorf("%w: %s is not a member of interview %s", interview.ErrForbidden, a.userID, iv.ID)
	}
	log := logger.OrNop(a.log).With(
		zap.String("interview_id", iv.ID.String()),
		zap.String("role", string(role)))

	if role == models.RoleParticipant {
		if err := a.waitLive(ctx, iv, log); err != nil {
			return err
		}
	}

	sess, err := a.sessions.Open(call.Config{
		InterviewID:  a.interviewID,
		Role:         role,
		Records:      a.records,
		Devices:      a.devices,
		Signaling:    a.signaling,
		Peers:        a.peers,
		ICE:          a.iceConfig(ctx, log),
		TickInterval: a.tick,
		ConnectWait:  a.connectWait,
		Logger:       log,
	})
	if err != nil {
		return err
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	left := a.watch(watchCtx, sess, log)

	attempts := a.maxAttempts
	for {
		if err := a.start(ctx, sess, attempts, log); err != nil {
			if ctx.Err() != nil {
				return a.shutdown(call.ReasonUser)
			}
			// A failed session holds nothing, and the interview stays
			// resumable from wherever it got to.
			return err
		}

		select {
		case <-ctx.Done():
			log.Info("hanging up")
			return a.shutdown(call.ReasonUser)
		case reason := <-left:
			if role != models.RoleHost {
				return a.shutdown(call.ReasonDismissed)
			}
			log.Info("waiting for the other side to rejoin", zap.String("reason", string(reason)))
			attempts = 0
		}
	}
}

// start retries transient failures, at most attempts times when attempts is
// positive and until ctx ends otherwise. Anything else is final.
func (a *agent) start(ctx context.Context, sess *call.Session, attempts int, log *zap.Logger) error {
	var err error
	for attempt := 1; attempts <= 0 || attempt <= attempts; attempt++ {
		if err = sess.Start(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if failure.ClassOf(err) != failure.Transient || attempt == attempts {
			break
		}
		if attempts > 0 {
			log.Warn("call attempt failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		} else {
			log.Debug("nobody to call yet", zap.Int("attempt", attempt), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.retryDelay):
		}
	}
	return fmt.Errorf("start call: %w", err)
}

// waitLive polls the record until the host has started the call.
func (a *agent) waitLive(ctx context.Context, iv *models.Interview, log *zap.Logger) error {
	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()

	announced := false
	for {
		switch {
		case interview.CanJoinCall(*iv, models.RoleParticipant):
			return nil
		case iv.Type != models.TypeVideo || iv.Status.Terminal():
			return fmt.Errorf("%w: %s interview is %s", call.ErrNotReady, iv.Type, iv.Status)
		}
		if !announced {
			log.Info("waiting for the host to start the call", zap.String("status", string(iv.Status)))
			announced = true
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		next, err := a.records.Get(ctx, a.interviewID)
		switch {
		case err == nil:
			iv = next
		case ctx.Err() != nil:
			return ctx.Err()
		case failure.ClassOf(err) == failure.Transient:
			log.Warn("polling interview failed", zap.Error(err))
		default:
			return fmt.Errorf("poll interview: %w", err)
		}
	}
}

func (a *agent) iceConfig(ctx context.Context, log *zap.Logger) webrtc.Configuration {
	cfg := a.ice
	servers, err := a.records.ICEServers(ctx)
	if err != nil {
		log.Warn("falling back to configured ICE servers", zap.Error(err))
		return cfg
	}
	if len(servers) > 0 {
		cfg.ICEServers = servers
	}
	return cfg
}

// watch logs state changes and reports why a call was closed from the other
// side.
func (a *agent) watch(ctx context.Context, sess *call.Session, log *zap.Logger) <-chan call.EndReason {
	left := make(chan call.EndReason, 1)
	snaps := sess.Observe(ctx)

	go func() {
		var last models.CallState
		for snap := range snaps {
			if snap.State == last {
				if snap.State == models.CallConnected {
					log.Debug("call running", zap.Duration("elapsed", snap.Elapsed))
				}
				continue
			}
			fields := []zap.Field{zap.String("state", string(snap.State))}
			if snap.Reason != "" {
				fields = append(fields, zap.String("reason", string(snap.Reason)))
			}
			if snap.Err != nil {
				fields = append(fields, zap.Error(snap.Err))
			}
			log.Info("call state", fields...)
			last = snap.State

			if snap.State == models.CallClosed &&
				(snap.Reason == call.ReasonRemoteHangup || snap.Reason == call.ReasonConnectionLost) {
				select {
				case left <- snap.Reason:
				default:
				}
			}
		}
	}()
	return left
}

// shutdown ends every session the agent opened.
func (a *agent) shutdown(reason call.EndReason) error {
	ctx, cancel := context.WithTimeout(context.Background(), endTimeout)
	defer cancel()
	return a.sessions.EndAll(ctx, reason)
}
