package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lucasfragadev/gym-dev/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrDuplicate    = errors.New("duplicate record")
	ErrUnknownGym   = errors.New("unknown gym")
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Constraint names from migrations/001_init.sql.
const (
	ConstraintGymEmail   = "users_gym_email_key"
	ConstraintNationalID = "users_national_id_key"
)

// DuplicateError names the unique constraint that rejected a write. It
// matches ErrDuplicate under errors.Is.
type DuplicateError struct {
	Constraint string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicate, e.Constraint)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

const userColumns = `id, gym_id, name, email, password_hash, role, national_id, phone, birth_date, photo_key, active, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, gym_id, name, email, password_hash, role, national_id, phone, birth_date, active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11
		)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.GymID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.NationalID,
		user.Phone,
		user.BirthDate,
		user.Active,
		user.CreatedAt,
	)
	return translate(err)
}

func (r *UserRepository) FindByEmail(ctx context.Context, gymID string, email string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE gym_id = $1 AND email = $2`
	return scanUser(r.pool.QueryRow(ctx, query, gymID, email))
}

func (r *UserRepository) FindByNationalID(ctx context.Context, nationalID string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE national_id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, nationalID))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) ListByGym(ctx context.Context, gymID string) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE gym_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, gymID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Update writes the mutable profile fields. Password, photo and active flag
// have their own statements.
func (r *UserRepository) Update(ctx context.Context, user models.User) error {
	const query = `
		UPDATE users
		SET name = $2, email = $3, role = $4, national_id = $5, phone = $6, birth_date = $7, updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.Role,
		user.NationalID,
		user.Phone,
		user.BirthDate,
	)
	return affected(cmd, err)
}

func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE users SET active = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, active)
	return affected(cmd, err)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id string, hash []byte) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, hash)
	return affected(cmd, err)
}

func (r *UserRepository) UpdatePhoto(ctx context.Context, id string, key string) error {
	const query = `UPDATE users SET photo_key = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, key)
	return affected(cmd, err)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	return affected(cmd, err)
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.GymID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.NationalID,
		&user.Phone,
		&user.BirthDate,
		&user.PhotoKey,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func affected(cmd pgconn.CommandTag, err error) error {
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// translate maps constraint violations onto repository errors so callers can
// report them without knowing about Postgres.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case uniqueViolation:
		return &DuplicateError{Constraint: pgErr.ConstraintName}
	case foreignKeyViolation:
		return fmt.Errorf("%w: %s", ErrUnknownGym, pgErr.ConstraintName)
	}
	return err
}
