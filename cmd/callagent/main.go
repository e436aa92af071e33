// Package main is a headless call client. It hosts or joins the video call
// of one interview with synthetic media, and hangs up on SIGINT.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/intervue/internal/call"
	"github.com/kiranshivaraju/intervue/internal/config"
	"github.com/kiranshivaraju/intervue/internal/logger"
	"github.com/kiranshivaraju/intervue/internal/media"
	"github.com/kiranshivaraju/intervue/internal/records"
	"github.com/kiranshivaraju/intervue/internal/rtc"
	"github.com/kiranshivaraju/intervue/internal/signaling"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "callagent: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadAgent()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	id, err := uuid.Parse(cfg.InterviewID)
	if err != nil {
		return fmt.Errorf("AGENT_INTERVIEW_ID: %w", err)
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	peers, err := rtc.NewPionFactory(log)
	if err != nil {
		return fmt.Errorf("create peer factory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &agent{
		userID:      cfg.UserID,
		interviewID: id,
		records:     records.NewClient(cfg.APIBaseURL, cfg.Token, cfg.HTTPTimeout),
		signaling:   signaling.NewWSChannel(cfg.APIBaseURL, cfg.Token, log),
		peers:       peers,
		devices:     media.NewSynthetic(media.WithSamplePump()),
		sessions:    call.NewManager(),
		ice:         rtc.Config(cfg.WebRTC),
		tick:        cfg.TickInterval,
		connectWait: cfg.ConnectWait,
		poll:        cfg.PollInterval,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.PollInterval,
		log:         log,
	}
	log.Info("call agent starting",
		zap.String("interview_id", id.String()),
		zap.String("api", cfg.APIBaseURL))

	if err := a.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
