package tracker

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"studytrack/internal/events"
	"studytrack/internal/models"
)

// ProgressPolicy converts studied time into milestone percentage points.
type ProgressPolicy struct {
	PointsPerHour float64
	MaxPoints     float64
}

func DefaultProgressPolicy() ProgressPolicy {
	return ProgressPolicy{PointsPerHour: 10, MaxPoints: 20}
}

// Delta is min(hours * PointsPerHour, MaxPoints); zero for no studied time.
func (p ProgressPolicy) Delta(studySeconds int64) float64 {
	if studySeconds <= 0 {
		return 0
	}
	hours := float64(studySeconds) / 3600
	return math.Min(hours*p.PointsPerHour, p.MaxPoints)
}

// Apply adds the delta to current and clamps into [0, 100].
func (p ProgressPolicy) Apply(current float64, studySeconds int64) float64 {
	return math.Max(0, math.Min(100, current+p.Delta(studySeconds)))
}

// MilestoneLink is the milestone a stop should credit, with its progress as
// the caller last saw it.
type MilestoneLink struct {
	ID       uuid.UUID
	Progress float64
}

type StopRequest struct {
	Notes      string
	FocusScore int
	Milestone  *MilestoneLink
}

type StopResult struct {
	Activity          *models.ActivityRecord
	MilestoneUpdated  bool
	MilestoneProgress float64
	// MilestoneErr is a *models.SideEffectError when the milestone update
	// failed. The stop itself still succeeded.
	MilestoneErr error
}

// Stop finalizes the session. Once the store has stopped it, a milestone
// failure is only logged and reported in the result; the stop is neither
// failed nor retried. If the store rejects the stop, the cache is untouched.
func (t *Tracker) Stop(ctx context.Context, req StopRequest) (*StopResult, error) {
	if err := t.begin(); err != nil {
		return nil, err
	}
	defer t.finish()

	if t.Session() == nil {
		return nil, errNoSession()
	}

	record, err := t.store.StopSession(ctx, req.Notes, req.FocusScore)
	if err == nil && record == nil {
		err = &models.TransportError{Op: "stop study session", Message: "store returned no activity record"}
	}
	if err != nil {
		t.log.WithError(err).Warn("failed to stop study session")
		return nil, err
	}

	result := &StopResult{Activity: record}
	if req.Milestone != nil && record.TotalStudySeconds > 0 {
		t.creditMilestone(ctx, req.Milestone, record, result)
	}

	t.mu.Lock()
	t.applyLocked(nil, "stop")
	t.mu.Unlock()

	if result.MilestoneUpdated {
		t.bus.Publish(events.MilestoneUpdated, events.Payload{
			SessionID:   record.SessionID,
			MilestoneID: req.Milestone.ID,
			Progress:    result.MilestoneProgress,
			Source:      t.id,
		})
	}
	return result, nil
}

func (t *Tracker) creditMilestone(ctx context.Context, link *MilestoneLink, record *models.ActivityRecord, result *StopResult) {
	entry := t.log.WithFields(logrus.Fields{
		"milestone_id":  link.ID,
		"study_seconds": record.TotalStudySeconds,
	})

	if t.milestones == nil {
		entry.Warn("no milestone store configured; skipping progress update")
		return
	}

	progress := t.cfg.Policy.Apply(link.Progress, record.TotalStudySeconds)
	if err := t.milestones.SetMilestoneProgress(ctx, link.ID, progress); err != nil {
		result.MilestoneErr = &models.SideEffectError{Op: "update milestone progress", Err: err}
		entry.WithError(err).Error("study session stopped but milestone progress was not saved")
		return
	}

	result.MilestoneUpdated = true
	result.MilestoneProgress = progress
	entry.WithField("progress", progress).Info("milestone progress updated")
}
