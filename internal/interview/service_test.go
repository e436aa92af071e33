package interview_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/intervue/internal/cache"
	"github.com/kiranshivaraju/intervue/internal/interview"
	"github.com/kiranshivaraju/intervue/internal/store"
	"github.com/kiranshivaraju/intervue/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- stubs ---

// memStore keeps records in memory with the same conditional-write rules as
// the Postgres store.
type memStore struct {
	mu         sync.Mutex
	interviews map[uuid.UUID]*models.Interview
	updates    int
	getErr     error
}

func newMemStore() *memStore {
	return &memStore{interviews: make(map[uuid.UUID]*models.Interview)}
}

func (s *memStore) Ping(_ context.Context) error { return nil }

func (s *memStore) CreateInterview(_ context.Context, iv *models.Interview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.interviews[iv.ID]; ok {
		return store.ErrDuplicateKey
	}
	cp := *iv
	s.interviews[iv.ID] = &cp
	return nil
}

func (s *memStore) GetInterview(_ context.Context, id uuid.UUID) (*models.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	iv, ok := s.interviews[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *iv
	cp.Feedback = append([]models.Feedback{}, iv.Feedback...)
	return &cp, nil
}

func (s *memStore) ListInterviews(_ context.Context, f store.InterviewFilter) ([]*models.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Interview{}
	for _, iv := range s.interviews {
		if iv.HostID != f.UserID && iv.ParticipantID != f.UserID {
			continue
		}
		if f.Status != "" && iv.Status != f.Status {
			continue
		}
		cp := *iv
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) UpdateInterviewStatus(_ context.Context, id uuid.UUID, from, to models.InterviewStatus) (*models.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv, ok := s.interviews[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if iv.Status != from {
		return nil, store.ErrConflict
	}
	iv.Status = to
	s.updates++
	cp := *iv
	return &cp, nil
}

func (s *memStore) CreateFeedback(_ context.Context, fb *models.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv, ok := s.interviews[fb.InterviewID]
	if !ok {
		return store.ErrNotFound
	}
	if iv.Status != models.StatusCompleted {
		return store.ErrConflict
	}
	if _, dup := iv.FeedbackFrom(fb.EvaluatorType); dup {
		return store.ErrDuplicateKey
	}
	iv.Feedback = append(iv.Feedback, *fb)
	return nil
}

func (s *memStore) put(iv models.Interview) *models.Interview {
	s.mu.Lock()
	defer s.mu.Unlock()
	if iv.ID == uuid.Nil {
		iv.ID = uuid.New()
	}
	s.interviews[iv.ID] = &iv
	cp := iv
	return &cp
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deletes int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]byte)}
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.deletes++
	return nil
}

func (c *mapCache) Ping(_ context.Context) error { return nil }
func (c *mapCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

const (
	hostID        = "assoc-1"
	participantID = "free-1"
)

func newService(t *testing.T) (*interview.Service, *memStore, *mapCache) {
	t.Helper()
	st := newMemStore()
	ca := newMapCache()
	return interview.NewService(st, ca, nil), st, ca
}

func scheduleRequest() interview.ScheduleRequest {
	return interview.ScheduleRequest{
		RequestID:       "req-7",
		FreelancerID:    participantID,
		Type:            models.TypeVideo,
		ScheduledDate:   time.Now().Add(time.Hour),
		DurationMinutes: 60,
		Notes:           "system design round",
	}
}

// --- Schedule / List / Get ---

func TestSchedule(t *testing.T) {
	svc, st, _ := newService(t)

	iv, err := svc.Schedule(context.Background(), hostID, scheduleRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, iv.Status)
	assert.Equal(t, hostID, iv.HostID)
	assert.Equal(t, participantID, iv.ParticipantID)
	assert.NotEqual(t, uuid.Nil, iv.ID)

	stored, err := st.GetInterview(context.Background(), iv.ID)
	require.NoError(t, err)
	assert.Equal(t, "system design round", stored.Notes)
}

func TestSchedule_Invalid(t *testing.T) {
	svc, st, _ := newService(t)
	req := scheduleRequest()
	req.DurationMinutes = 5

	_, err := svc.Schedule(context.Background(), hostID, req)
	assert.ErrorIs(t, err, interview.ErrValidation)
	assert.Empty(t, st.interviews)
}

func TestList_FiltersByStatus(t *testing.T) {
	svc, st, _ := newService(t)
	st.put(models.Interview{HostID: hostID, ParticipantID: participantID, Status: models.StatusScheduled, Type: models.TypeVideo})
	st.put(models.Interview{HostID: hostID, ParticipantID: participantID, Status: models.StatusCompleted, Type: models.TypeVideo})
	st.put(models.Interview{HostID: "someone", ParticipantID: "else", Status: models.StatusScheduled, Type: models.TypeVideo})

	all, err := svc.List(context.Background(), participantID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	done, err := svc.List(context.Background(), participantID, models.StatusCompleted)
	require.NoError(t, err)
	assert.Len(t, done, 1)

	_, err = svc.List(context.Background(), participantID, "archived")
	assert.ErrorIs(t, err, interview.ErrValidation)
}

func TestGet_MembershipAndCache(t *testing.T) {
	svc, st, ca := newService(t)
	iv := st.put(models.Interview{HostID: hostID, ParticipantID: participantID, Status: models.StatusScheduled, Type: models.TypeVideo})

	got, err := svc.Get(context.Background(), participantID, iv.ID)
	require.NoError(t, err)
	assert.Equal(t, iv.ID, got.ID)

	_, found, _ := cache.GetInterview(context.Background(), ca, iv.ID)
	assert.True(t, found, "read-through should populate the cache")

	st.getErr = errors.New("db down")
	got, err = svc.Get(context.Background(), hostID, iv.ID)
	require.NoError(t, err, "second read is served from cache")
	assert.Equal(t, iv.ID, got.ID)

	_, err = svc.Get(context.Background(), "stranger", iv.ID)
	assert.ErrorIs(t, err, interview.ErrForbidden)
}

func TestGet_NotFound(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Get(context.Background(), hostID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- SetStatus ---

func TestSetStatus_HostLifecycle(t *testing.T) {
	svc, st, ca := newService(t)
	ctx := context.Background()
	iv := st.put(models.Interview{HostID: hostID, ParticipantID: participantID, Status: models.StatusScheduled, Type: models.TypeVideo})

	_, err := svc.Get(ctx, hostID, iv.ID)
	require.NoError(t, err)

	got, err := svc.SetStatus(ctx, hostID, iv.ID, models.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	_, found, _ := cache.GetInterview(ctx, ca, iv.ID)
	assert.False(t, found, "status change must invalidate the cache")

	fetched, err := svc.Get(ctx, participantID, iv.ID)
	require.NoError(t, err)
	assert.True(t, interview.CanJoinCall(*fetched, models.RoleParticipant))

	got, err = svc.SetStatus(ctx, hostID, iv.ID, models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestSetStatus_DoubleCompleteRejected(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	iv := st.put(models.Interview{HostID: hostID, ParticipantID: participantID, Status: models.StatusInProgress, Type: models.TypeVideo})

	_, err := svc.SetStatus(ctx, hostID, iv.ID, models.StatusCompleted)
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, hostID, iv.ID, models.StatusCompleted)
	assert.ErrorIs(t, err, interview.ErrInvalidTransition)
	assert.Equal(t, 1, st.updates)

	final, err := st.GetInterview(ctx, iv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, final.Status)
}

func TestSetStatus_ConcurrentCompleteAppliedOnce(t *testing.T) {
	svc, st, _ := newService(t)
	iv := st.put(models.Interview{HostID: hostID, ParticipantID: participantID, Status: models.StatusInProgress, Type: models.TypeVideo})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SetStatus(context.Background(), hostID, iv.ID, models.StatusCompleted)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, interview.ErrInvalidTransition)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, st.updates)
}

func TestSetStatus_ParticipantForbidden(t *testing.T) {
	svc, st, _ := newService(t)
	iv := st.put(models.Interview{HostID: hostID, ParticipantID: participantID, Status: models.StatusScheduled, Type: models.TypeVideo})

	_, err := svc.SetStatus(context.Background(), participantID, iv.ID, models.StatusInProgress)
	assert.ErrorIs(t, err, interview.ErrForbidden)
	assert.Zero(t, st.updates)

	got, err := svc.SetStatus(context.Background(), participantID, iv.ID, models.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestSetStatus_Stranger(t *testing.T) {
	svc, st, _ := newService(t)
	iv := st.put(models.Interview{HostID: hostID, ParticipantID: participantID, Status: models.StatusScheduled, Type: models.TypeVideo})

	_, err := svc.SetStatus(context.Background(), "stranger", iv.ID, models.StatusCancelled)
	assert.ErrorIs(t, err, interview.ErrForbidden)
}

// --- Feedback ---

func TestSubmitFeedback_ScheduledRejected(t *testing.T) {
	svc, st, _ := newService(t)
	iv := st.put(models.Interview{HostID: hostID, ParticipantID: participantID, Status: models.StatusScheduled, Type: models.TypeVideo})

	_, err := svc.SubmitFeedback(context.Background(), participantID, iv.ID, interview.FeedbackInput{
		Ratings:        models.Ratings{Overall: 4},
		Recommendation: models.RecommendHire,
	})
	assert.ErrorIs(t, err, interview.ErrNotCompleted)

	stored, _ := st.GetInterview(context.Background(), iv.ID)
	assert.Empty(t, stored.Feedback, "no record is created")
}

func TestSubmitFeedback_OncePerRole(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	iv := st.put(models.Interview{HostID: hostID, ParticipantID: participantID, Status: models.StatusCompleted, Type: models.TypeVideo})
	in := interview.FeedbackInput{Ratings: models.Ratings{Overall: 4}, Recommendation: models.RecommendHire}

	fb, err := svc.SubmitFeedback(ctx, hostID, iv.ID, in)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluatorAssociate, fb.EvaluatorType)
	assert.Equal(t, hostID, fb.EvaluatorID)

	_, err = svc.SubmitFeedback(ctx, hostID, iv.ID, in)
	assert.ErrorIs(t, err, interview.ErrAlreadySubmitted)

	fb, err = svc.SubmitFeedback(ctx, participantID, iv.ID, in)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluatorFreelancer, fb.EvaluatorType)
}

func TestSubmitFeedback_DuplicateRaceMapsToAlreadySubmitted(t *testing.T) {
	st := newMemStore()
	iv := st.put(models.Interview{HostID: hostID, ParticipantID: participantID, Status: models.StatusCompleted, Type: models.TypeVideo})
	svc := interview.NewService(&raceStore{memStore: st}, nil, nil)

	_, err := svc.SubmitFeedback(context.Background(), participantID, iv.ID, interview.FeedbackInput{
		Ratings: models.Ratings{Overall: 2}, Recommendation: models.RecommendNoHire,
	})
	assert.ErrorIs(t, err, interview.ErrAlreadySubmitted)
}

// raceStore reports a unique violation on insert even though the read it
// served showed no prior feedback.
type raceStore struct {
	*memStore
}

func (r *raceStore) CreateFeedback(_ context.Context, _ *models.Feedback) error {
	return store.ErrDuplicateKey
}

func TestSubmitFeedback_Invalid(t *testing.T) {
	svc, st, _ := newService(t)
	iv := st.put(models.Interview{HostID: hostID, ParticipantID: participantID, Status: models.StatusCompleted, Type: models.TypeVideo})

	_, err := svc.SubmitFeedback(context.Background(), hostID, iv.ID, interview.FeedbackInput{Recommendation: models.RecommendHire})
	assert.ErrorIs(t, err, interview.ErrValidation)
}

func TestMyFeedback_Summary(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()

	a := st.put(models.Interview{HostID: "assoc-a", ParticipantID: participantID, Status: models.StatusCompleted, Type: models.TypeVideo})
	b := st.put(models.Interview{HostID: "assoc-b", ParticipantID: participantID, Status: models.StatusCompleted, Type: models.TypeVideo})
	st.put(models.Interview{HostID: "assoc-c", ParticipantID: participantID, Status: models.StatusScheduled, Type: models.TypeVideo})

	_, err := svc.SubmitFeedback(ctx, "assoc-a", a.ID, interview.FeedbackInput{Ratings: models.Ratings{Overall: 5}, Recommendation: models.RecommendHire})
	require.NoError(t, err)
	_, err = svc.SubmitFeedback(ctx, "assoc-b", b.ID, interview.FeedbackInput{Ratings: models.Ratings{Overall: 2}, Recommendation: models.RecommendMaybe})
	require.NoError(t, err)
	// The freelancer's own evaluation is not feedback they received.
	_, err = svc.SubmitFeedback(ctx, participantID, b.ID, interview.FeedbackInput{Ratings: models.Ratings{Overall: 1}, Recommendation: models.RecommendNoHire})
	require.NoError(t, err)

	mine, err := svc.MyFeedback(ctx, participantID)
	require.NoError(t, err)
	assert.Len(t, mine.Interviews, 2)
	assert.Equal(t, models.FeedbackSummary{
		TotalInterviews:     3,
		AverageRating:       3.5,
		HireRecommendations: 1,
		FeedbackReceived:    2,
	}, mine.Summary)
}

func TestMyFeedback_Empty(t *testing.T) {
	svc, _, _ := newService(t)
	mine, err := svc.MyFeedback(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, mine.Interviews)
	assert.Zero(t, mine.Summary.AverageRating)
}
