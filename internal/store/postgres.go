package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/intervue/pkg/models"
)

const interviewColumns = `id, request_id, host_id, participant_id, interview_type, status, scheduled_date,
	duration_minutes, location, notes, invitation_message, created_at, updated_at`

const feedbackColumns = `id, interview_id, evaluator_type, evaluator_id, technical_skills, communication,
	cultural_fit, overall, recommendation, strengths, areas_for_improvement, detailed_feedback, created_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Interviews ---

func (s *PostgresStore) CreateInterview(ctx context.Context, iv *models.Interview) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO interviews (`+interviewColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		iv.ID, iv.RequestID, iv.HostID, iv.ParticipantID, string(iv.Type), string(iv.Status),
		iv.ScheduledDate, iv.DurationMinutes, iv.Location, iv.Notes, iv.InvitationMessage,
		iv.CreatedAt, iv.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create interview: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetInterview(ctx context.Context, id uuid.UUID) (*models.Interview, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+interviewColumns+` FROM interviews WHERE id = $1`, id)
	iv, err := scanInterview(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get interview: %w", err)
	}

	if err := s.attachFeedback(ctx, []*models.Interview{iv}); err != nil {
		return nil, err
	}
	return iv, nil
}

func (s *PostgresStore) ListInterviews(ctx context.Context, filter InterviewFilter) ([]*models.Interview, error) {
	conditions := []string{"(host_id = $1 OR participant_id = $1)"}
	args := []any{filter.UserID}

	if filter.Status != "" {
		conditions = append(conditions, "status = $2")
		args = append(args, string(filter.Status))
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+interviewColumns+` FROM interviews WHERE `+strings.Join(conditions, " AND ")+
			` ORDER BY scheduled_date DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list interviews: %w", err)
	}
	defer rows.Close()

	interviews := []*models.Interview{}
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interview: %w", err)
		}
		interviews = append(interviews, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list interviews: %w", err)
	}

	if err := s.attachFeedback(ctx, interviews); err != nil {
		return nil, err
	}
	return interviews, nil
}

func (s *PostgresStore) UpdateInterviewStatus(ctx context.Context, id uuid.UUID, from, to models.InterviewStatus) (*models.Interview, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE interviews SET status = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $2
		 RETURNING `+interviewColumns, id, string(from), string(to))
	iv, err := scanInterview(row)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM interviews WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check interview: %w", err)
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("update interview status: %w", err)
	}

	if err := s.attachFeedback(ctx, []*models.Interview{iv}); err != nil {
		return nil, err
	}
	return iv, nil
}

// --- Feedback ---

func (s *PostgresStore) CreateFeedback(ctx context.Context, fb *models.Feedback) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin feedback tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the owning interview so its status cannot move while we insert.
	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM interviews WHERE id = $1 FOR SHARE`, fb.InterviewID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock interview: %w", err)
	}
	if models.InterviewStatus(status) != models.StatusCompleted {
		return ErrConflict
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO interview_feedback (`+feedbackColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		fb.ID, fb.InterviewID, string(fb.EvaluatorType), fb.EvaluatorID,
		fb.Ratings.TechnicalSkills, fb.Ratings.Communication, fb.Ratings.CulturalFit, fb.Ratings.Overall,
		string(fb.Recommendation), fb.Strengths, fb.AreasForImprovement, fb.DetailedFeedback, fb.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create feedback: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit feedback: %w", err)
	}
	return nil
}

// attachFeedback loads the feedback of every interview in one query.
func (s *PostgresStore) attachFeedback(ctx context.Context, interviews []*models.Interview) error {
	if len(interviews) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.Interview, len(interviews))
	ids := make([]uuid.UUID, 0, len(interviews))
	for _, iv := range interviews {
		iv.Feedback = []models.Feedback{}
		byID[iv.ID] = iv
		ids = append(ids, iv.ID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+feedbackColumns+` FROM interview_feedback
		 WHERE interview_id = ANY($1) ORDER BY created_at`, ids)
	if err != nil {
		return fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			fb             models.Feedback
			evaluatorType  string
			recommendation string
		)
		if err := rows.Scan(&fb.ID, &fb.InterviewID, &evaluatorType, &fb.EvaluatorID,
			&fb.Ratings.TechnicalSkills, &fb.Ratings.Communication, &fb.Ratings.CulturalFit,
			&fb.Ratings.Overall, &recommendation, &fb.Strengths, &fb.AreasForImprovement,
			&fb.DetailedFeedback, &fb.CreatedAt); err != nil {
			return fmt.Errorf("scan feedback: %w", err)
		}
		fb.EvaluatorType = models.EvaluatorType(evaluatorType)
		fb.Recommendation = models.Recommendation(recommendation)
		if iv, ok := byID[fb.InterviewID]; ok {
			iv.Feedback = append(iv.Feedback, fb)
		}
	}
	return rows.Err()
}

func scanInterview(row pgx.Row) (*models.Interview, error) {
	var (
		iv     models.Interview
		ivType string
		status string
	)
	if err := row.Scan(&iv.ID, &iv.RequestID, &iv.HostID, &iv.ParticipantID, &ivType, &status,
		&iv.ScheduledDate, &iv.DurationMinutes, &iv.Location, &iv.Notes, &iv.InvitationMessage,
		&iv.CreatedAt, &iv.UpdatedAt); err != nil {
		return nil, err
	}
	iv.Type = models.InterviewType(ivType)
	iv.Status = models.InterviewStatus(status)
	return &iv, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
