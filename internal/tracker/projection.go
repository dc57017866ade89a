package tracker

import (
	"fmt"
	"time"

	"studytrack/internal/models"
)

// ElapsedSeconds projects the studied time of s at now without touching s.
// While on break the stored total is returned unchanged; otherwise the gap
// since LastActiveTime is added, floored to whole seconds. A negative gap
// (local clock behind the store) contributes nothing.
func ElapsedSeconds(s *models.StudySession, onBreak bool, now time.Time) int64 {
	if s == nil {
		return 0
	}
	if onBreak {
		return s.TotalStudySeconds
	}

	gap := now.Sub(s.LastActiveTime)
	if gap < 0 {
		gap = 0
	}
	return s.TotalStudySeconds + int64(gap/time.Second)
}

// FormatElapsed renders seconds as HH:MM:SS. Hours are not wrapped at 24.
func FormatElapsed(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	sec := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}

// Project is the display value for s at now.
func Project(s *models.StudySession, now time.Time) string {
	return FormatElapsed(ElapsedSeconds(s, s.IsOnBreak(), now))
}

// BreakSeconds totals closed breaks plus the running one. It is a display
// figure for the stop dialog and plays no part in the study total.
func BreakSeconds(s *models.StudySession, now time.Time) int64 {
	if s == nil {
		return 0
	}

	var total int64
	for _, b := range s.Breaks {
		if b.EndTime != nil {
			total += b.DurationSeconds
			continue
		}
		if gap := now.Sub(b.StartTime); gap > 0 {
			total += int64(gap / time.Second)
		}
	}
	return total
}
