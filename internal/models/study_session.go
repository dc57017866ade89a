package models

import (
	"time"

	"github.com/google/uuid"
)

type StudySession struct {
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"-"`
	StudyPlanID       *uuid.UUID `json:"studyPlanId,omitempty"`
	Subject           string     `json:"subject"`
	StartTime         time.Time  `json:"startTime"`
	LastActiveTime    time.Time  `json:"lastActiveTime"`
	IsIdle            bool       `json:"isIdle"`
	TotalStudySeconds int64      `json:"totalStudySeconds"`
	Breaks            []Break    `json:"breaks"`
}

// Break is a sub-interval excluded from the study total. EndTime is nil while
// the break is still open.
type Break struct {
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationSeconds int64      `json:"durationSeconds"`
}

// IsOnBreak reports whether the last break is still open. It is derived from
// Breaks on every call and must not be cached separately.
func (s *StudySession) IsOnBreak() bool {
	if s == nil || len(s.Breaks) == 0 {
		return false
	}
	return s.Breaks[len(s.Breaks)-1].EndTime == nil
}

// Clone returns a deep copy so callers can hand out snapshots without sharing
// the break slice.
func (s *StudySession) Clone() *StudySession {
	if s == nil {
		return nil
	}
	c := *s
	if s.StudyPlanID != nil {
		id := *s.StudyPlanID
		c.StudyPlanID = &id
	}
	c.Breaks = make([]Break, len(s.Breaks))
	for i, b := range s.Breaks {
		c.Breaks[i] = b
		if b.EndTime != nil {
			end := *b.EndTime
			c.Breaks[i].EndTime = &end
		}
	}
	return &c
}

// ActivityRecord is the historical record a session is finalized into on stop.
type ActivityRecord struct {
	ID                uuid.UUID  `json:"id"`
	SessionID         uuid.UUID  `json:"sessionId"`
	StudyPlanID       *uuid.UUID `json:"studyPlanId,omitempty"`
	Subject           string     `json:"subject"`
	StartTime         time.Time  `json:"startTime"`
	EndTime           time.Time  `json:"endTime"`
	TotalStudySeconds int64      `json:"totalStudySeconds"`
	TotalBreakSeconds int64      `json:"totalBreakSeconds"`
	Notes             string     `json:"notes"`
	FocusScore        int        `json:"focusScore"`
}

type Milestone struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"-"`
	Title     string    `json:"title"`
	Progress  float64   `json:"progress"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type StartSessionRequest struct {
	StudyPlanID *uuid.UUID `json:"studyPlanId,omitempty"`
	Subject     string     `json:"subject" validate:"required,max=200"`
}

type StopSessionRequest struct {
	Notes      string `json:"notes" validate:"max=2000"`
	FocusScore int    `json:"focusScore" validate:"min=0,max=10"`
}

type MilestoneProgressRequest struct {
	Progress float64 `json:"progress" validate:"min=0,max=100"`
}
