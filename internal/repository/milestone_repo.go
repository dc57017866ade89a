package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studytrack/internal/models"
)

type MilestoneRepo struct {
	pool *pgxpool.Pool
}

func NewMilestoneRepo(pool *pgxpool.Pool) *MilestoneRepo {
	return &MilestoneRepo{pool: pool}
}

// SetProgress updates a milestone owned by userID, returning pgx.ErrNoRows if
// there is no such milestone.
func (r *MilestoneRepo) SetProgress(ctx context.Context, id, userID uuid.UUID, progress float64) (*models.Milestone, error) {
	m := &models.Milestone{}
	err := r.pool.QueryRow(ctx, `
		UPDATE milestones
		SET progress = $3,
			updated_at = NOW()
		WHERE id = $1
		  AND user_id = $2
		RETURNING id, user_id, title, progress, updated_at
	`, id, userID, progress).Scan(&m.ID, &m.UserID, &m.Title, &m.Progress, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}
