package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lucasfragadev/gym-dev/internal/models"
)

type CheckInRepository struct {
	pool *pgxpool.Pool
}

func NewCheckInRepository(pool *pgxpool.Pool) *CheckInRepository {
	return &CheckInRepository{pool: pool}
}

func (r *CheckInRepository) Create(ctx context.Context, checkIn models.CheckIn) error {
	const query = `
		INSERT INTO check_ins (id, gym_id, user_id, created_by, checked_in_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		checkIn.ID,
		checkIn.GymID,
		checkIn.UserID,
		checkIn.CreatedBy,
		checkIn.CheckedInAt,
	)
	return err
}

func (r *CheckInRepository) ListByGym(ctx context.Context, gymID string) ([]models.CheckIn, error) {
	const query = `
		SELECT id, gym_id, user_id, created_by, checked_in_at
		FROM check_ins
		WHERE gym_id = $1
		ORDER BY checked_in_at DESC
	`
	rows, err := r.pool.Query(ctx, query, gymID)
	if err != nil {
		return nil, err
	}
	return collectCheckIns(rows)
}

func (r *CheckInRepository) ListByUser(ctx context.Context, gymID string, userID string) ([]models.CheckIn, error) {
	const query = `
		SELECT id, gym_id, user_id, created_by, checked_in_at
		FROM check_ins
		WHERE gym_id = $1 AND user_id = $2
		ORDER BY checked_in_at DESC
	`
	rows, err := r.pool.Query(ctx, query, gymID, userID)
	if err != nil {
		return nil, err
	}
	return collectCheckIns(rows)
}

func collectCheckIns(rows pgx.Rows) ([]models.CheckIn, error) {
	defer rows.Close()

	var checkIns []models.CheckIn
	for rows.Next() {
		var c models.CheckIn
		if err := rows.Scan(&c.ID, &c.GymID, &c.UserID, &c.CreatedBy, &c.CheckedInAt); err != nil {
			return nil, err
		}
		checkIns = append(checkIns, c)
	}
	return checkIns, rows.Err()
}
