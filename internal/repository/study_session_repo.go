package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"studytrack/internal/models"
)

// ErrActiveSessionExists is returned by Create when the user already has an
// open session (unique index study_sessions_one_active_per_user).
var ErrActiveSessionExists = errors.New("active study session already exists")

type StudySessionRepo struct {
	pool *pgxpool.Pool
}

func NewStudySessionRepo(pool *pgxpool.Pool) *StudySessionRepo {
	return &StudySessionRepo{pool: pool}
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// GetActive returns the user's open session with its breaks, or pgx.ErrNoRows.
// It takes no lock; use Update or Finish to change the session.
func (r *StudySessionRepo) GetActive(ctx context.Context, userID uuid.UUID) (*models.StudySession, error) {
	return getActive(ctx, r.pool, userID, false)
}

func getActive(ctx context.Context, q querier, userID uuid.UUID, forUpdate bool) (*models.StudySession, error) {
	query := `
		SELECT id, study_plan_id, subject, start_time, last_active_time, total_study_seconds
		FROM study_sessions
		WHERE user_id = $1
		  AND ended_at IS NULL
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	s := &models.StudySession{UserID: userID}
	err := q.QueryRow(ctx, query, userID).Scan(&s.ID, &s.StudyPlanID, &s.Subject, &s.StartTime, &s.LastActiveTime, &s.TotalStudySeconds)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT start_time, end_time, duration_seconds
		FROM study_session_breaks
		WHERE session_id = $1
		ORDER BY position
	`, s.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	s.Breaks = []models.Break{}
	for rows.Next() {
		var b models.Break
		if err := rows.Scan(&b.StartTime, &b.EndTime, &b.DurationSeconds); err != nil {
			return nil, err
		}
		s.Breaks = append(s.Breaks, b)
	}
	return s, rows.Err()
}

func (r *StudySessionRepo) Create(ctx context.Context, s *models.StudySession) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO study_sessions (user_id, study_plan_id, subject, start_time, last_active_time, total_study_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, s.UserID, s.StudyPlanID, s.Subject, s.StartTime, s.LastActiveTime, s.TotalStudySeconds).Scan(&s.ID)
	if isUniqueViolation(err) {
		return ErrActiveSessionExists
	}
	return err
}

// Update locks the user's open session, hands it to fn and writes it back
// when fn reports a change, all in one transaction. Concurrent updates for
// the same user are serialized by the row lock.
func (r *StudySessionRepo) Update(ctx context.Context, userID uuid.UUID, fn func(*models.StudySession) (bool, error)) (*models.StudySession, error) {
	var out *models.StudySession
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		s, err := getActive(ctx, tx, userID, true)
		if err != nil {
			return err
		}
		changed, err := fn(s)
		if err != nil {
			return err
		}
		if changed {
			if err := saveTx(ctx, tx, s); err != nil {
				return err
			}
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Finish locks the user's open session, lets fn build the activity record,
// then saves the session, marks it ended and inserts the record in the same
// transaction. The returned record has its ID filled in.
func (r *StudySessionRepo) Finish(ctx context.Context, userID uuid.UUID, fn func(*models.StudySession) (*models.ActivityRecord, error)) (*models.ActivityRecord, error) {
	var rec *models.ActivityRecord
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		s, err := getActive(ctx, tx, userID, true)
		if err != nil {
			return err
		}
		if rec, err = fn(s); err != nil {
			return err
		}
		if err := saveTx(ctx, tx, s); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE study_sessions
			SET ended_at = $3
			WHERE id = $1
			  AND user_id = $2
			  AND ended_at IS NULL
		`, s.ID, s.UserID, rec.EndTime)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}

		return tx.QueryRow(ctx, `
			INSERT INTO activity_records (
				session_id, user_id, study_plan_id, subject, start_time, end_time,
				total_study_seconds, total_break_seconds, notes, focus_score
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id
		`, rec.SessionID, s.UserID, rec.StudyPlanID, rec.Subject, rec.StartTime, rec.EndTime,
			rec.TotalStudySeconds, rec.TotalBreakSeconds, rec.Notes, rec.FocusScore,
		).Scan(&rec.ID)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func saveTx(ctx context.Context, tx pgx.Tx, s *models.StudySession) error {
	tag, err := tx.Exec(ctx, `
		UPDATE study_sessions
		SET total_study_seconds = $3,
			last_active_time = $4
		WHERE id = $1
		  AND user_id = $2
		  AND ended_at IS NULL
	`, s.ID, s.UserID, s.TotalStudySeconds, s.LastActiveTime)
	if err != nil {
		return fmt.Errorf("failed to update study session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	if _, err := tx.Exec(ctx, `DELETE FROM study_session_breaks WHERE session_id = $1`, s.ID); err != nil {
		return fmt.Errorf("failed to clear breaks: %w", err)
	}
	for i, b := range s.Breaks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO study_session_breaks (session_id, position, start_time, end_time, duration_seconds)
			VALUES ($1, $2, $3, $4, $5)
		`, s.ID, i, b.StartTime, b.EndTime, b.DurationSeconds); err != nil {
			return fmt.Errorf("failed to write break %d: %w", i, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
