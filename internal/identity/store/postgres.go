package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"reyu/internal/identity/models"
	id "reyu/pkg/domain"
	"reyu/pkg/platform/sentinel"
	txcontext "reyu/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists users in the users table.
type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgres(db *sql.DB, txTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, timeout: txTimeout}
}

const userColumns = `id, email, display_name, role, kyc_status, user_status, reputation_score,
	completed_deals, average_rating, total_ratings, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, user *models.User) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		user.ID.String(), user.Email, user.DisplayName, user.Role, user.KYCStatus, user.UserStatus,
		user.ReputationScore, user.CompletedDeals, user.AverageRating, user.TotalRatings,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID.String())
	return scanUser(row)
}

// List returns the users matching f, oldest first.
func (s *PostgresStore) List(ctx context.Context, f models.UserFilter) ([]*models.User, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE ($1 = '' OR kyc_status = $1) AND ($2 = '' OR user_status = $2)
		ORDER BY created_at`,
		string(f.KYCStatus), string(f.UserStatus),
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context) (models.UserStats, error) {
	stats := models.NewUserStats()
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT kyc_status, user_status, COUNT(*) FROM users
		GROUP BY kyc_status, user_status`)
	if err != nil {
		return stats, fmt.Errorf("user stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kyc    models.KYCStatus
			status models.UserStatus
			n      int
		)
		if err := rows.Scan(&kyc, &status, &n); err != nil {
			return stats, fmt.Errorf("scan user stats: %w", err)
		}
		stats.Add(kyc, status, n)
	}
	return stats, rows.Err()
}

// Update locks the row, applies fn and writes the result back in one transaction.
func (s *PostgresStore) Update(ctx context.Context, userID id.UserID, fn func(*models.User) error) (*models.User, error) {
	var updated *models.User
	err := txcontext.Run(ctx, s.db, s.timeout, func(ctx context.Context) error {
		exec := txcontext.Exec(ctx, s.db)
		user, err := scanUser(exec.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID.String()))
		if err != nil {
			return err
		}
		if err := fn(user); err != nil {
			return err
		}
		_, err = exec.ExecContext(ctx, `
			UPDATE users SET display_name = $2, kyc_status = $3, user_status = $4,
				reputation_score = $5, completed_deals = $6, average_rating = $7,
				total_ratings = $8, updated_at = $9
			WHERE id = $1`,
			user.ID.String(), user.DisplayName, user.KYCStatus, user.UserStatus,
			user.ReputationScore, user.CompletedDeals, user.AverageRating,
			user.TotalRatings, user.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u     models.User
		rawID string
	)
	err := row.Scan(&rawID, &u.Email, &u.DisplayName, &u.Role, &u.KYCStatus, &u.UserStatus,
		&u.ReputationScore, &u.CompletedDeals, &u.AverageRating, &u.TotalRatings,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	parsed, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	u.ID = id.UserID(parsed)
	return &u, nil
}
