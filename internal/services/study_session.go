package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"studytrack/internal/events"
	"studytrack/internal/models"
	"studytrack/internal/repository"
)

type StudySessionStore interface {
	GetActive(ctx context.Context, userID uuid.UUID) (*models.StudySession, error)
	Create(ctx context.Context, s *models.StudySession) error
	// Update and Finish run fn against the open session while holding it
	// exclusively, so reads that fold time never overwrite a concurrent break.
	Update(ctx context.Context, userID uuid.UUID, fn func(*models.StudySession) (bool, error)) (*models.StudySession, error)
	Finish(ctx context.Context, userID uuid.UUID, fn func(*models.StudySession) (*models.ActivityRecord, error)) (*models.ActivityRecord, error)
}

type MilestoneStore interface {
	SetProgress(ctx context.Context, id, userID uuid.UUID, progress float64) (*models.Milestone, error)
}

type EventPublisher interface {
	PublishToUser(ctx context.Context, userID uuid.UUID, msg events.Message) error
}

// StudySessionService is the authoritative owner of session time. It folds
// active time into TotalStudySeconds whenever a session is read or mutated.
type StudySessionService struct {
	sessions   StudySessionStore
	milestones MilestoneStore
	publisher  EventPublisher
	idleAfter  time.Duration
	now        func() time.Time
	log        *logrus.Logger
}

func NewStudySessionService(sessions StudySessionStore, milestones MilestoneStore, publisher EventPublisher, idleAfter time.Duration, log *logrus.Logger) *StudySessionService {
	return &StudySessionService{
		sessions:   sessions,
		milestones: milestones,
		publisher:  publisher,
		idleAfter:  idleAfter,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

func (s *StudySessionService) Active(ctx context.Context, userID uuid.UUID) (*models.StudySession, error) {
	now := s.now()
	session, err := s.sessions.Update(ctx, userID, func(session *models.StudySession) (bool, error) {
		return accumulate(session, now), nil
	})
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	markIdle(session, now, s.idleAfter)
	return session, nil
}

func (s *StudySessionService) Start(ctx context.Context, userID uuid.UUID, req models.StartSessionRequest) (*models.StudySession, error) {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return nil, &models.ValidationError{Fields: map[string]string{"subject": "Subject is required"}}
	}

	if _, err := s.sessions.GetActive(ctx, userID); err == nil {
		return nil, conflictActive()
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	now := s.now()
	session := &models.StudySession{
		UserID:         userID,
		StudyPlanID:    req.StudyPlanID,
		Subject:        subject,
		StartTime:      now,
		LastActiveTime: now,
		Breaks:         []models.Break{},
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			return nil, conflictActive()
		}
		return nil, err
	}

	s.publish(ctx, userID, events.Message{
		Type:    events.SessionStarted,
		Payload: events.Payload{SessionID: session.ID, Source: "store"},
	})
	return session, nil
}

// Pause opens a break. Pausing an already paused session changes nothing.
func (s *StudySessionService) Pause(ctx context.Context, userID uuid.UUID) error {
	_, err := s.sessions.Update(ctx, userID, func(session *models.StudySession) (bool, error) {
		if session.IsOnBreak() {
			return false, nil
		}
		now := s.now()
		accumulate(session, now)
		openBreak(session, now)
		return true, nil
	})
	return s.mapStoreErr(err)
}

// Resume closes the open break. Resuming an active session changes nothing.
func (s *StudySessionService) Resume(ctx context.Context, userID uuid.UUID) error {
	_, err := s.sessions.Update(ctx, userID, func(session *models.StudySession) (bool, error) {
		if !session.IsOnBreak() {
			return false, nil
		}
		closeBreak(session, s.now())
		return true, nil
	})
	return s.mapStoreErr(err)
}

func (s *StudySessionService) Stop(ctx context.Context, userID uuid.UUID, req models.StopSessionRequest) (*models.ActivityRecord, error) {
	rec, err := s.sessions.Finish(ctx, userID, func(session *models.StudySession) (*models.ActivityRecord, error) {
		now := s.now()
		if session.IsOnBreak() {
			closeBreak(session, now)
		} else {
			accumulate(session, now)
		}

		return &models.ActivityRecord{
			SessionID:         session.ID,
			StudyPlanID:       session.StudyPlanID,
			Subject:           session.Subject,
			StartTime:         session.StartTime,
			EndTime:           now,
			TotalStudySeconds: session.TotalStudySeconds,
			TotalBreakSeconds: totalBreakSeconds(session),
			Notes:             strings.TrimSpace(req.Notes),
			FocusScore:        req.FocusScore,
		}, nil
	})
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id":       userID,
		"session_id":    rec.SessionID,
		"study_seconds": rec.TotalStudySeconds,
		"break_seconds": rec.TotalBreakSeconds,
	}).Info("study session finished")
	return rec, nil
}

func (s *StudySessionService) SetMilestoneProgress(ctx context.Context, userID, milestoneID uuid.UUID, progress float64) (*models.Milestone, error) {
	progress = math.Max(0, math.Min(100, progress))

	m, err := s.milestones.SetProgress(ctx, milestoneID, userID, progress)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &models.NotFoundError{Message: "Milestone not found"}
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, userID, events.Message{
		Type:    events.MilestoneUpdated,
		Payload: events.Payload{MilestoneID: m.ID, Progress: m.Progress, Source: "store"},
	})
	return m, nil
}

func (s *StudySessionService) mapStoreErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.NotFoundError{Message: "No active study session"}
	}
	return err
}

func (s *StudySessionService) publish(ctx context.Context, userID uuid.UUID, msg events.Message) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishToUser(ctx, userID, msg); err != nil {
		s.log.WithError(err).WithField("type", msg.Type).Warn("failed to publish user update")
	}
}

func conflictActive() error {
	return &models.ConflictError{Message: "You already have an active study session. Stop it before starting a new one."}
}

// accumulate folds whole seconds since LastActiveTime into the total while the
// session is not on break. The anchor moves by the same whole seconds so the
// sub-second remainder carries over. Reports whether anything changed.
func accumulate(s *models.StudySession, now time.Time) bool {
	if s.IsOnBreak() {
		return false
	}
	secs := int64(now.Sub(s.LastActiveTime) / time.Second)
	if secs <= 0 {
		return false
	}
	s.TotalStudySeconds += secs
	s.LastActiveTime = s.LastActiveTime.Add(time.Duration(secs) * time.Second)
	return true
}

func openBreak(s *models.StudySession, now time.Time) {
	s.Breaks = append(s.Breaks, models.Break{StartTime: now})
}

func closeBreak(s *models.StudySession, now time.Time) {
	last := &s.Breaks[len(s.Breaks)-1]
	end := now
	last.EndTime = &end
	if d := int64(now.Sub(last.StartTime) / time.Second); d > 0 {
		last.DurationSeconds = d
	}
	s.LastActiveTime = now
}

func markIdle(s *models.StudySession, now time.Time, idleAfter time.Duration) {
	s.IsIdle = false
	if idleAfter <= 0 || !s.IsOnBreak() {
		return
	}
	s.IsIdle = now.Sub(s.Breaks[len(s.Breaks)-1].StartTime) >= idleAfter
}

func totalBreakSeconds(s *models.StudySession) int64 {
	var total int64
	for _, b := range s.Breaks {
		total += b.DurationSeconds
	}
	return total
}
