package tracker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"studytrack/internal/events"
	"studytrack/internal/models"
)

// State is the lifecycle position of the cached session.
type State string

const (
	StateNoSession State = "no_session"
	StateActive    State = "active"
	StateOnBreak   State = "on_break"
)

var (
	// ErrBusy is returned when a command is issued while another one is still
	// waiting for the store.
	ErrBusy = errors.New("a study session command is already in progress")
	// ErrClosed is returned once Run has returned.
	ErrClosed = errors.New("tracker is shut down")
)

// SessionStore is the authoritative record of the user's active session.
// GetActiveSession returns *models.NotFoundError when there is none.
type SessionStore interface {
	GetActiveSession(ctx context.Context) (*models.StudySession, error)
	StartSession(ctx context.Context, studyPlanID *uuid.UUID, subject string) (*models.StudySession, error)
	PauseSession(ctx context.Context) error
	ResumeSession(ctx context.Context) error
	StopSession(ctx context.Context, notes string, focusScore int) (*models.ActivityRecord, error)
}

type MilestoneStore interface {
	SetMilestoneProgress(ctx context.Context, milestoneID uuid.UUID, progress float64) error
}

type Config struct {
	TickInterval time.Duration
	PollInterval time.Duration
	Policy       ProgressPolicy
	// Now defaults to time.Now.
	Now func() time.Time
	// OnTick receives the formatted elapsed time on every display tick while
	// a session is cached.
	OnTick func(elapsed string)
}

type StartRequest struct {
	StudyPlanID *uuid.UUID
	// PlanName is the selected plan's display name, used when Subject is blank.
	PlanName string
	Subject  string
}

func (r StartRequest) subject() string {
	if s := strings.TrimSpace(r.Subject); s != "" {
		return s
	}
	return strings.TrimSpace(r.PlanName)
}

// Tracker caches the user's session, drives the display clock and polling,
// and issues session commands against the store.
type Tracker struct {
	store      SessionStore
	milestones MilestoneStore
	bus        *events.Bus
	log        *logrus.Logger
	cfg        Config
	id         string
	refresh    chan struct{}

	mu       sync.Mutex
	session  *models.StudySession
	version  uint64
	inFlight bool
	running  bool
	closed   bool
}

func New(store SessionStore, milestones MilestoneStore, bus *events.Bus, log *logrus.Logger, cfg Config) *Tracker {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.Policy == (ProgressPolicy{}) {
		cfg.Policy = DefaultProgressPolicy()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Tracker{
		store:      store,
		milestones: milestones,
		bus:        bus,
		log:        log,
		cfg:        cfg,
		id:         "tracker:" + uuid.NewString(),
		refresh:    make(chan struct{}, 1),
	}
}

// Run owns the display ticker, the poll ticker and the bus subscription until
// ctx is cancelled. Everything it acquires is released on return, after which
// ticks and reconciles are no-ops.
func (t *Tracker) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.running {
		t.mu.Unlock()
		return errors.New("tracker is already running")
	}
	t.running = true
	t.mu.Unlock()

	unsubscribe := t.bus.Subscribe(events.SessionStarted, t.onSessionStarted)
	defer unsubscribe()

	display := time.NewTicker(t.cfg.TickInterval)
	defer display.Stop()
	poll := time.NewTicker(t.cfg.PollInterval)
	defer poll.Stop()

	defer t.shutdown()

	t.Reconcile(ctx)
	t.tick()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-display.C:
			t.tick()
		case <-poll.C:
			if t.PollingEnabled() {
				t.Reconcile(ctx)
			}
		case <-t.refresh:
			t.Reconcile(ctx)
		}
	}
}

func (t *Tracker) shutdown() {
	t.mu.Lock()
	t.closed = true
	t.running = false
	t.mu.Unlock()
	t.log.Debug("tracker stopped")
}

func (t *Tracker) tick() {
	t.mu.Lock()
	if t.closed || t.session == nil {
		t.mu.Unlock()
		return
	}
	elapsed := Project(t.session, t.cfg.Now())
	t.mu.Unlock()

	if t.cfg.OnTick != nil {
		t.cfg.OnTick(elapsed)
	}
}

func (t *Tracker) onSessionStarted(p events.Payload) {
	if p.Source == t.id {
		return
	}

	t.mu.Lock()
	known := t.session != nil && t.session.ID == p.SessionID
	t.mu.Unlock()
	if known {
		return
	}

	select {
	case t.refresh <- struct{}{}:
	default:
	}
}

// Reconcile replaces the cached session with the store's current one. A
// result is dropped if a command changed the cache while the fetch was out.
func (t *Tracker) Reconcile(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	version := t.version
	t.mu.Unlock()

	s, err := t.store.GetActiveSession(ctx)
	if err != nil && !isNotFound(err) {
		t.log.WithError(err).Warn("study session reconcile failed")
		return err
	}
	if err != nil {
		s = nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	if t.inFlight || t.version != version {
		t.log.Debug("discarding stale reconcile result")
		return nil
	}
	t.applyLocked(s, "reconcile")
	return nil
}

func (t *Tracker) Start(ctx context.Context, req StartRequest) (*models.StudySession, error) {
	subject := req.subject()
	if subject == "" {
		return nil, &models.ValidationError{Fields: map[string]string{
			"subject": "Enter a subject or select a study plan",
		}}
	}

	if err := t.begin(); err != nil {
		return nil, err
	}
	defer t.finish()

	if t.Session() != nil {
		return nil, &models.ConflictError{Message: "A study session is already in progress. Stop it before starting a new one."}
	}

	s, err := t.store.StartSession(ctx, req.StudyPlanID, subject)
	if err != nil {
		t.log.WithError(err).WithField("subject", subject).Warn("failed to start study session")
		return nil, err
	}

	t.mu.Lock()
	t.applyLocked(s, "start")
	t.mu.Unlock()

	t.bus.Publish(events.SessionStarted, events.Payload{SessionID: s.ID, Source: t.id})
	return s.Clone(), nil
}

// Pause opens a break. The command is sent even if a break already looks
// open; the snapshot is reloaded afterwards whatever the outcome.
func (t *Tracker) Pause(ctx context.Context) error {
	return t.mutateAndReload(ctx, "pause", t.store.PauseSession)
}

func (t *Tracker) Resume(ctx context.Context) error {
	return t.mutateAndReload(ctx, "resume", t.store.ResumeSession)
}

func (t *Tracker) mutateAndReload(ctx context.Context, op string, command func(context.Context) error) error {
	if err := t.begin(); err != nil {
		return err
	}
	defer t.finish()

	if t.Session() == nil {
		return errNoSession()
	}

	cmdErr := command(ctx)
	if cmdErr != nil {
		t.log.WithError(cmdErr).WithField("op", op).Warn("study session command failed")
	}

	s, err := t.store.GetActiveSession(ctx)
	switch {
	case err == nil || isNotFound(err):
		if err != nil {
			s = nil
		}
		t.mu.Lock()
		t.applyLocked(s, op)
		t.mu.Unlock()
		err = nil
	default:
		t.log.WithError(err).WithField("op", op).Warn("failed to reload study session")
	}

	if cmdErr != nil {
		return cmdErr
	}
	return err
}

func (t *Tracker) Session() *models.StudySession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.Clone()
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return stateOf(t.session)
}

func (t *Tracker) IsOnBreak() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.IsOnBreak()
}

// Elapsed is the current display value, computed fresh from the cache.
func (t *Tracker) Elapsed() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Project(t.session, t.cfg.Now())
}

// PollingEnabled reports whether the poll timer should reconcile: only while
// nothing is cached.
func (t *Tracker) PollingEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && t.session == nil
}

// Busy reports whether a command is waiting on the store; surfaces use it to
// disable their controls.
func (t *Tracker) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}

func (t *Tracker) begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.inFlight {
		return ErrBusy
	}
	t.inFlight = true
	return nil
}

func (t *Tracker) finish() {
	t.mu.Lock()
	t.inFlight = false
	t.mu.Unlock()
}

func (t *Tracker) applyLocked(s *models.StudySession, cause string) {
	from := stateOf(t.session)
	t.session = s.Clone()
	t.version++

	if to := stateOf(t.session); to != from {
		entry := t.log.WithFields(logrus.Fields{"from": from, "to": to, "cause": cause})
		if t.session != nil {
			entry = entry.WithField("session_id", t.session.ID)
		}
		entry.Info("study session state changed")
	}
}

func stateOf(s *models.StudySession) State {
	switch {
	case s == nil:
		return StateNoSession
	case s.IsOnBreak():
		return StateOnBreak
	default:
		return StateActive
	}
}

func isNotFound(err error) bool {
	var nf *models.NotFoundError
	return errors.As(err, &nf)
}

func errNoSession() error {
	return &models.NotFoundError{Message: "No active study session"}
}
