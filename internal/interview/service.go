package interview

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/intervue/internal/cache"
	"github.com/kiranshivaraju/intervue/internal/logger"
	"github.com/kiranshivaraju/intervue/internal/metrics"
	"github.com/kiranshivaraju/intervue/internal/store"
	"github.com/kiranshivaraju/intervue/pkg/models"
	"go.uber.org/zap"
)

// Service exposes the record-store operations. Every mutation is re-validated
// against the lifecycle rules here, whatever the client already checked.
type Service struct {
	store  store.Store
	cache  cache.Cache
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a Service. cache may be nil.
func NewService(s store.Store, c cache.Cache, l *zap.Logger) *Service {
	return &Service{store: s, cache: c, logger: logger.OrNop(l), now: time.Now}
}

// Schedule creates a video, phone or in-person interview hosted by hostID.
func (s *Service) Schedule(ctx context.Context, hostID string, req ScheduleRequest) (*models.Interview, error) {
	now := s.now().UTC()
	if err := ValidateSchedule(&req, hostID, now); err != nil {
		return nil, err
	}

	iv := &models.Interview{
		ID:                uuid.New(),
		RequestID:         req.RequestID,
		HostID:            hostID,
		ParticipantID:     req.FreelancerID,
		Type:              req.Type,
		Status:            models.StatusScheduled,
		ScheduledDate:     req.ScheduledDate.UTC(),
		DurationMinutes:   req.DurationMinutes,
		Location:          req.Location,
		Notes:             req.Notes,
		InvitationMessage: req.InvitationMessage,
		Feedback:          []models.Feedback{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateInterview(ctx, iv); err != nil {
		return nil, fmt.Errorf("schedule interview: %w", err)
	}

	s.logger.Info("interview scheduled",
		zap.String("interview_id", iv.ID.String()),
		zap.String("type", string(iv.Type)),
		zap.Time("scheduled_date", iv.ScheduledDate))
	return iv, nil
}

// List returns the interviews userID hosts or takes part in.
func (s *Service) List(ctx context.Context, userID string, status models.InterviewStatus) ([]*models.Interview, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	return s.store.ListInterviews(ctx, store.InterviewFilter{UserID: userID, Status: status})
}

// Get returns the interview if userID is its host or participant.
func (s *Service) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Interview, error) {
	iv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := iv.RoleOf(userID); !ok {
		return nil, fmt.Errorf("%w: not a member of interview %s", ErrForbidden, id)
	}
	return iv, nil
}

// SetStatus applies a transition for userID. The write is conditional on the
// status that was validated, so a concurrent or repeated request for the same
// edge is rejected with ErrInvalidTransition instead of being applied twice.
func (s *Service) SetStatus(ctx context.Context, userID string, id uuid.UUID, to models.InterviewStatus) (*models.Interview, error) {
	iv, err := s.fresh(ctx, id)
	if err != nil {
		return nil, err
	}
	role, ok := iv.RoleOf(userID)
	if !ok {
		return nil, fmt.Errorf("%w: not a member of interview %s", ErrForbidden, id)
	}

	if _, err := Transition(*iv, to, role); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateInterviewStatus(ctx, id, iv.Status, to)
	if errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("%w: interview %s changed concurrently", ErrInvalidTransition, id)
	}
	if err != nil {
		return nil, fmt.Errorf("set interview status: %w", err)
	}
	s.invalidate(ctx, id)

	metrics.ObserveTransition(string(iv.Status), string(to))
	logger.With(ctx).Info("interview status changed",
		zap.String("interview_id", id.String()),
		zap.String("from", string(iv.Status)),
		zap.String("to", string(to)),
		zap.String("role", string(role)))
	return updated, nil
}

// SubmitFeedback records the caller's evaluation of a completed interview.
func (s *Service) SubmitFeedback(ctx context.Context, userID string, id uuid.UUID, in FeedbackInput) (*models.Feedback, error) {
	iv, err := s.fresh(ctx, id)
	if err != nil {
		return nil, err
	}
	role, ok := iv.RoleOf(userID)
	if !ok {
		return nil, fmt.Errorf("%w: not a member of interview %s", ErrForbidden, id)
	}
	if err := CheckFeedback(*iv, role); err != nil {
		return nil, err
	}
	if err := ValidateFeedback(&in); err != nil {
		return nil, err
	}

	fb := &models.Feedback{
		ID:                  uuid.New(),
		InterviewID:         id,
		EvaluatorType:       models.EvaluatorFor(role),
		EvaluatorID:         userID,
		Ratings:             in.Ratings,
		Recommendation:      in.Recommendation,
		Strengths:           in.Strengths,
		AreasForImprovement: in.AreasForImprovement,
		DetailedFeedback:    in.DetailedFeedback,
		CreatedAt:           s.now().UTC(),
	}
	err = s.store.CreateFeedback(ctx, fb)
	switch {
	case errors.Is(err, store.ErrDuplicateKey):
		return nil, ErrAlreadySubmitted
	case errors.Is(err, store.ErrConflict):
		return nil, fmt.Errorf("%w: interview %s is no longer completed", ErrNotCompleted, id)
	case err != nil:
		return nil, fmt.Errorf("submit feedback: %w", err)
	}
	s.invalidate(ctx, id)

	metrics.ObserveFeedback(string(fb.EvaluatorType))
	return fb, nil
}

// MyFeedback lists the interviews in which userID received feedback from the
// other party, with a summary over everything the user took part in.
func (s *Service) MyFeedback(ctx context.Context, userID string) (*models.MyFeedback, error) {
	all, err := s.store.ListInterviews(ctx, store.InterviewFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("my feedback: %w", err)
	}

	out := &models.MyFeedback{
		Interviews: []*models.Interview{},
		Summary:    models.FeedbackSummary{TotalInterviews: len(all)},
	}
	var total int
	for _, iv := range all {
		role, _ := iv.RoleOf(userID)
		fb, ok := iv.FeedbackFrom(models.EvaluatorFor(role.Counterpart()))
		if !ok {
			continue
		}
		out.Interviews = append(out.Interviews, iv)
		out.Summary.FeedbackReceived++
		total += fb.Ratings.Overall
		if fb.Recommendation == models.RecommendHire {
			out.Summary.HireRecommendations++
		}
	}
	if n := out.Summary.FeedbackReceived; n > 0 {
		out.Summary.AverageRating = math.Round(float64(total)/float64(n)*100) / 100
	}
	return out, nil
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// load serves reads from the cache when possible.
func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.Interview, error) {
	if s.cache != nil {
		iv, found, err := cache.GetInterview(ctx, s.cache, id)
		if err != nil {
			s.logger.Warn("interview cache read failed", zap.String("interview_id", id.String()), zap.Error(err))
		}
		if found {
			return iv, nil
		}
	}

	iv, err := s.fresh(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := cache.PutInterview(ctx, s.cache, iv); err != nil {
			s.logger.Warn("interview cache write failed", zap.String("interview_id", id.String()), zap.Error(err))
		}
	}
	return iv, nil
}

// fresh always reads through to the store. Mutations validate against it.
func (s *Service) fresh(ctx context.Context, id uuid.UUID) (*models.Interview, error) {
	iv, err := s.store.GetInterview(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get interview: %w", err)
	}
	return iv, nil
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := cache.InvalidateInterview(ctx, s.cache, id); err != nil {
		s.logger.Warn("interview cache invalidation failed", zap.String("interview_id", id.String()), zap.Error(err))
	}
}
