package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestaozabele/receitas/internal/auth"
	"github.com/gestaozabele/receitas/internal/db"
)

const dbTimeout = 5 * time.Second

// PostgresRepository implementa Repository sobre pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateUser(ctx context.Context, user *User) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	const query = `
        INSERT INTO users (id, email, name, password_hash)
        VALUES ($1, $2, $3, $4)
        RETURNING id, email, name, password_hash, created_at`

	out, err := scanUser(r.pool.QueryRow(ctx, query, user.ID, user.Email, user.Name, user.PasswordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanUser(r.pool.QueryRow(ctx, `
        SELECT id, email, name, password_hash, created_at
        FROM users
        WHERE email = $1`, email))
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanUser(r.pool.QueryRow(ctx, `
        SELECT id, email, name, password_hash, created_at
        FROM users
        WHERE id = $1`, id))
}

func (r *PostgresRepository) InsertRefreshToken(ctx context.Context, userID uuid.UUID, hash string, expires time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
        INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at)
        VALUES ($1, $2, $3, $4)`, uuid.New(), userID, hash, expires)
	return err
}

// RotateRefreshToken bloqueia o token atual para impedir reuso concorrente.
func (r *PostgresRepository) RotateRefreshToken(ctx context.Context, oldHash, newHash string, newExpiry, now time.Time) (uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var userID uuid.UUID
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		var (
			expiresAt time.Time
			revokedAt *time.Time
		)
		err := tx.QueryRow(ctx, `
            SELECT user_id, expires_at, revoked_at
            FROM refresh_tokens
            WHERE token_hash = $1
            FOR UPDATE`, oldHash).Scan(&userID, &expiresAt, &revokedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return auth.ErrInvalidRefresh
			}
			return err
		}
		if revokedAt != nil || !now.Before(expiresAt) {
			return auth.ErrInvalidRefresh
		}

		if _, err := tx.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = $2 WHERE token_hash = $1`, oldHash, now); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
            INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at)
            VALUES ($1, $2, $3, $4)`, uuid.New(), userID, newHash, newExpiry)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}

func (r *PostgresRepository) RevokeRefreshToken(ctx context.Context, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
        UPDATE refresh_tokens SET revoked_at = now()
        WHERE token_hash = $1 AND revoked_at IS NULL`, hash)
	return err
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
