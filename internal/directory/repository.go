package directory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository exposes the collaborator records owned by the surrounding platform.
type Repository interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	PostAuthor(ctx context.Context, postID string) (string, error)
	PayeeAccount(ctx context.Context, userID string) (PayeeAccount, error)
	UpdatePayeeAccount(ctx context.Context, accountID string, onboardingComplete, payoutsEnabled bool) (PayeeAccount, error)
	MarkApplicationInProgress(ctx context.Context, applicationID string) error
}

// PostgresRepository reads collaborator tables in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed directory.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	return exists, err
}

func (r *PostgresRepository) PostAuthor(ctx context.Context, postID string) (string, error) {
	var author string
	err := r.db.QueryRow(ctx, `SELECT author_id FROM posts WHERE id = $1`, postID).Scan(&author)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return author, err
}

func (r *PostgresRepository) PayeeAccount(ctx context.Context, userID string) (PayeeAccount, error) {
	row := r.db.QueryRow(ctx, `SELECT user_id, account_id, onboarding_complete, payouts_enabled, updated_at
        FROM payee_accounts WHERE user_id = $1`, userID)
	return scanAccount(row)
}

// UpdatePayeeAccount applies an account.updated notification keyed by the gateway account id.
func (r *PostgresRepository) UpdatePayeeAccount(ctx context.Context, accountID string, onboardingComplete, payoutsEnabled bool) (PayeeAccount, error) {
	row := r.db.QueryRow(ctx, `UPDATE payee_accounts
        SET onboarding_complete = $2, payouts_enabled = $3, updated_at = $4
        WHERE account_id = $1
        RETURNING user_id, account_id, onboarding_complete, payouts_enabled, updated_at`,
		accountID, onboardingComplete, payoutsEnabled, time.Now().UTC())
	return scanAccount(row)
}

func (r *PostgresRepository) MarkApplicationInProgress(ctx context.Context, applicationID string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE gig_applications SET status = $2, updated_at = $3 WHERE id = $1`,
		applicationID, ApplicationInProgress, time.Now().UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (PayeeAccount, error) {
	var a PayeeAccount
	if err := row.Scan(&a.UserID, &a.AccountID, &a.OnboardingComplete, &a.PayoutsEnabled, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PayeeAccount{}, ErrNotFound
		}
		return PayeeAccount{}, err
	}
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}
