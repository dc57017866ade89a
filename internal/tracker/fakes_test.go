package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"studytrack/internal/events"
	"studytrack/internal/logger"
	"studytrack/internal/models"
)

var errUnreachable = errors.New("connection refused")

// fakeStore mimics the session store closely enough for state-machine tests.
type fakeStore struct {
	mu     sync.Mutex
	active *models.StudySession
	calls  map[string]int

	getErr    error
	startErr  error
	pauseErr  error
	resumeErr error
	stopErr   error

	// stopNilRecord makes StopSession succeed without a record.
	stopNilRecord bool
	// stopSeconds overrides the studied time in the stop record when set.
	stopSeconds int64
	// beforeGet runs once, outside the lock, after the result was captured.
	beforeGet func()
	// pauseGate blocks PauseSession until closed.
	pauseGate chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{calls: make(map[string]int)}
}

func (f *fakeStore) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeStore) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeStore) setActive(s *models.StudySession) {
	f.mu.Lock()
	f.active = s
	f.mu.Unlock()
}

func (f *fakeStore) GetActiveSession(ctx context.Context) (*models.StudySession, error) {
	f.mu.Lock()
	f.calls["get"]++
	var (
		s   *models.StudySession
		err error
	)
	switch {
	case f.getErr != nil:
		err = f.getErr
	case f.active == nil:
		err = &models.NotFoundError{Message: "No active study session"}
	default:
		s = f.active.Clone()
	}
	hook := f.beforeGet
	f.beforeGet = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return s, err
}

func (f *fakeStore) StartSession(ctx context.Context, studyPlanID *uuid.UUID, subject string) (*models.StudySession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["start"]++
	if f.startErr != nil {
		return nil, f.startErr
	}
	if f.active != nil {
		return nil, &models.ConflictError{Message: "An active study session already exists"}
	}
	now := time.Now()
	f.active = &models.StudySession{
		ID:             uuid.New(),
		StudyPlanID:    studyPlanID,
		Subject:        subject,
		StartTime:      now,
		LastActiveTime: now,
	}
	return f.active.Clone(), nil
}

func (f *fakeStore) PauseSession(ctx context.Context) error {
	f.mu.Lock()
	gate := f.pauseGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["pause"]++
	if f.pauseErr != nil {
		return f.pauseErr
	}
	if f.active == nil {
		return &models.NotFoundError{Message: "No active study session"}
	}
	if !f.active.IsOnBreak() {
		f.active.Breaks = append(f.active.Breaks, models.Break{StartTime: time.Now()})
	}
	return nil
}

func (f *fakeStore) ResumeSession(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["resume"]++
	if f.resumeErr != nil {
		return f.resumeErr
	}
	if f.active == nil {
		return &models.NotFoundError{Message: "No active study session"}
	}
	if f.active.IsOnBreak() {
		now := time.Now()
		last := &f.active.Breaks[len(f.active.Breaks)-1]
		last.EndTime = &now
		last.DurationSeconds = int64(now.Sub(last.StartTime) / time.Second)
		f.active.LastActiveTime = now
	}
	return nil
}

func (f *fakeStore) StopSession(ctx context.Context, notes string, focusScore int) (*models.ActivityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["stop"]++
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	if f.stopNilRecord {
		return nil, nil
	}
	if f.active == nil {
		return nil, &models.NotFoundError{Message: "No active study session"}
	}
	seconds := f.active.TotalStudySeconds
	if f.stopSeconds != 0 {
		seconds = f.stopSeconds
	}
	record := &models.ActivityRecord{
		ID:                uuid.New(),
		SessionID:         f.active.ID,
		Subject:           f.active.Subject,
		StartTime:         f.active.StartTime,
		EndTime:           time.Now(),
		TotalStudySeconds: seconds,
		Notes:             notes,
		FocusScore:        focusScore,
	}
	f.active = nil
	return record, nil
}

type progressCall struct {
	id       uuid.UUID
	progress float64
}

type fakeMilestones struct {
	mu    sync.Mutex
	err   error
	calls []progressCall
}

func (f *fakeMilestones) SetMilestoneProgress(ctx context.Context, milestoneID uuid.UUID, progress float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, progressCall{id: milestoneID, progress: progress})
	return f.err
}

func newTestTracker(store *fakeStore, milestones *fakeMilestones, bus *events.Bus, cfg Config) *Tracker {
	var ms MilestoneStore
	if milestones != nil {
		ms = milestones
	}
	return New(store, ms, bus, logger.Discard(), cfg)
}
