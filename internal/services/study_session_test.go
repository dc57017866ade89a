package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studytrack/internal/events"
	"studytrack/internal/logger"
	"studytrack/internal/models"
	"studytrack/internal/repository"
)

// memSessionStore holds mu across Update and Finish the way the pgx repo holds
// the row lock for the length of its transaction.
type memSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.StudySession
	finished []*models.ActivityRecord
	saves    int
	createFn func(*models.StudySession) error
	// onLocked runs once inside the next Update, after the session was loaded.
	onLocked func()
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[uuid.UUID]*models.StudySession)}
}

func (m *memSessionStore) GetActive(ctx context.Context, userID uuid.UUID) (*models.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s.Clone(), nil
}

func (m *memSessionStore) Create(ctx context.Context, s *models.StudySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createFn != nil {
		return m.createFn(s)
	}
	s.ID = uuid.New()
	m.sessions[s.UserID] = s.Clone()
	return nil
}

func (m *memSessionStore) Update(ctx context.Context, userID uuid.UUID, fn func(*models.StudySession) (bool, error)) (*models.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	s := stored.Clone()

	if hook := m.onLocked; hook != nil {
		m.onLocked = nil
		hook()
	}

	changed, err := fn(s)
	if err != nil {
		return nil, err
	}
	if changed {
		m.saves++
		m.sessions[userID] = s.Clone()
	}
	return s, nil
}

func (m *memSessionStore) Finish(ctx context.Context, userID uuid.UUID, fn func(*models.StudySession) (*models.ActivityRecord, error)) (*models.ActivityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	rec, err := fn(stored.Clone())
	if err != nil {
		return nil, err
	}
	rec.ID = uuid.New()
	m.finished = append(m.finished, rec)
	delete(m.sessions, userID)
	return rec, nil
}

type memMilestones struct {
	milestones map[uuid.UUID]*models.Milestone
}

func (m *memMilestones) SetProgress(ctx context.Context, id, userID uuid.UUID, progress float64) (*models.Milestone, error) {
	ms, ok := m.milestones[id]
	if !ok || ms.UserID != userID {
		return nil, pgx.ErrNoRows
	}
	ms.Progress = progress
	return ms, nil
}

type recordingPublisher struct {
	messages []events.Message
	err      error
}

func (p *recordingPublisher) PublishToUser(ctx context.Context, userID uuid.UUID, msg events.Message) error {
	p.messages = append(p.messages, msg)
	return p.err
}

type clock struct{ now time.Time }

func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService() (*StudySessionService, *memSessionStore, *recordingPublisher, *clock) {
	store := newMemSessionStore()
	pub := &recordingPublisher{}
	clk := &clock{now: time.Date(2026, 2, 16, 10, 0, 0, 0, time.UTC)}
	svc := NewStudySessionService(store, &memMilestones{milestones: map[uuid.UUID]*models.Milestone{}}, pub, 15*time.Minute, logger.Discard())
	svc.now = func() time.Time { return clk.now }
	return svc, store, pub, clk
}

func TestStudySessionService_StartPublishesAndRejectsSecond(t *testing.T) {
	svc, _, pub, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	s, err := svc.Start(ctx, userID, models.StartSessionRequest{Subject: "  Calculus "})
	require.NoError(t, err)
	assert.Equal(t, "Calculus", s.Subject)
	assert.Equal(t, s.StartTime, s.LastActiveTime)

	require.Len(t, pub.messages, 1)
	assert.Equal(t, events.SessionStarted, pub.messages[0].Type)
	assert.Equal(t, s.ID, pub.messages[0].SessionID)

	_, err = svc.Start(ctx, userID, models.StartSessionRequest{Subject: "Algebra"})
	var conflict *models.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestStudySessionService_StartRaceMapsUniqueViolation(t *testing.T) {
	svc, store, _, _ := newTestService()
	store.createFn = func(*models.StudySession) error { return repository.ErrActiveSessionExists }

	_, err := svc.Start(context.Background(), uuid.New(), models.StartSessionRequest{Subject: "Algebra"})

	var conflict *models.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestStudySessionService_StartRequiresSubject(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.Start(context.Background(), uuid.New(), models.StartSessionRequest{Subject: " "})

	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestStudySessionService_BreakTimeIsExcluded(t *testing.T) {
	svc, _, _, clk := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Start(ctx, userID, models.StartSessionRequest{Subject: "Physics"})
	require.NoError(t, err)

	clk.advance(25 * time.Minute)
	require.NoError(t, svc.Pause(ctx, userID))
	clk.advance(10 * time.Minute)
	require.NoError(t, svc.Pause(ctx, userID))
	clk.advance(5 * time.Minute)

	s, err := svc.Active(ctx, userID)
	require.NoError(t, err)
	assert.True(t, s.IsOnBreak())
	assert.True(t, s.IsIdle, "break longer than idle threshold")
	assert.Len(t, s.Breaks, 1)
	assert.Equal(t, int64(25*60), s.TotalStudySeconds)

	require.NoError(t, svc.Resume(ctx, userID))
	clk.advance(20 * time.Minute)

	rec, err := svc.Stop(ctx, userID, models.StopSessionRequest{Notes: "done", FocusScore: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(45*60), rec.TotalStudySeconds)
	assert.Equal(t, int64(15*60), rec.TotalBreakSeconds)
	assert.Equal(t, 7, rec.FocusScore)

	_, err = svc.Active(ctx, userID)
	var nf *models.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestStudySessionService_ActiveFoldsElapsedTime(t *testing.T) {
	svc, store, _, clk := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Start(ctx, userID, models.StartSessionRequest{Subject: "Biology"})
	require.NoError(t, err)

	clk.advance(90*time.Second + 400*time.Millisecond)
	s, err := svc.Active(ctx, userID)
	require.NoError(t, err)

	assert.Equal(t, int64(90), s.TotalStudySeconds)
	assert.Equal(t, clk.now.Add(-400*time.Millisecond), s.LastActiveTime)
	assert.False(t, s.IsIdle)
	assert.Equal(t, 1, store.saves)

	s, err = svc.Active(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), s.TotalStudySeconds)
	assert.Equal(t, 1, store.saves, "sub-second gap must not trigger a write")
}

func TestStudySessionService_ActiveKeepsConcurrentBreak(t *testing.T) {
	svc, store, _, clk := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Start(ctx, userID, models.StartSessionRequest{Subject: "History"})
	require.NoError(t, err)
	clk.advance(5 * time.Minute)

	// a pause from another surface arrives while the poll holds the session
	paused := make(chan error, 1)
	store.onLocked = func() {
		go func() { paused <- svc.Pause(ctx, userID) }()
		time.Sleep(20 * time.Millisecond)
	}

	_, err = svc.Active(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, <-paused)

	s, err := svc.Active(ctx, userID)
	require.NoError(t, err)
	assert.True(t, s.IsOnBreak(), "acknowledged pause must survive the overlapping read")
	assert.Len(t, s.Breaks, 1)
	assert.Equal(t, int64(300), s.TotalStudySeconds)
}

func TestStudySessionService_StopWhileOnBreak(t *testing.T) {
	svc, _, _, clk := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Start(ctx, userID, models.StartSessionRequest{Subject: "Art"})
	require.NoError(t, err)
	clk.advance(10 * time.Minute)
	require.NoError(t, svc.Pause(ctx, userID))
	clk.advance(time.Hour)

	rec, err := svc.Stop(ctx, userID, models.StopSessionRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(600), rec.TotalStudySeconds)
	assert.Equal(t, int64(3600), rec.TotalBreakSeconds)
}

func TestStudySessionService_CommandsWithoutSession(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	var nf *models.NotFoundError
	assert.ErrorAs(t, svc.Pause(ctx, userID), &nf)
	assert.ErrorAs(t, svc.Resume(ctx, userID), &nf)
	_, err := svc.Stop(ctx, userID, models.StopSessionRequest{})
	assert.ErrorAs(t, err, &nf)
}

func TestStudySessionService_SetMilestoneProgress(t *testing.T) {
	svc, _, pub, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()
	milestoneID := uuid.New()
	svc.milestones = &memMilestones{milestones: map[uuid.UUID]*models.Milestone{
		milestoneID: {ID: milestoneID, UserID: userID, Title: "Finish unit 2", Progress: 10},
	}}

	m, err := svc.SetMilestoneProgress(ctx, userID, milestoneID, 130)
	require.NoError(t, err)
	assert.Equal(t, 100.0, m.Progress)
	require.Len(t, pub.messages, 1)
	assert.Equal(t, events.MilestoneUpdated, pub.messages[0].Type)

	_, err = svc.SetMilestoneProgress(ctx, uuid.New(), milestoneID, 50)
	var nf *models.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestStudySessionService_PublishFailureIsNotFatal(t *testing.T) {
	svc, _, pub, _ := newTestService()
	pub.err = errors.New("redis down")

	_, err := svc.Start(context.Background(), uuid.New(), models.StartSessionRequest{Subject: "Chemistry"})
	assert.NoError(t, err)
}
