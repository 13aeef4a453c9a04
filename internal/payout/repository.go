package payout

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists payouts. Create fails with ErrActivePayout when the user already
// has a non-terminal payout; Update is a compare-and-set on status.
type Repository interface {
	Create(ctx context.Context, p Payout) error
	Get(ctx context.Context, id string) (Payout, error)
	GetByGatewayID(ctx context.Context, gatewayPayoutID string) (Payout, error)
	ListByUser(ctx context.Context, userID string) ([]Payout, error)
	Active(ctx context.Context, userID string) ([]Payout, error)
	Update(ctx context.Context, p Payout, from Status) error
}

// PostgresRepository stores payouts in PostgreSQL. A partial unique index on user_id over
// the active statuses backs the single in-flight payout rule.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const payoutColumns = `id, user_id, amount, currency, status, note, COALESCE(approved_by, ''), approved_at,
        COALESCE(rejected_by, ''), rejected_at, rejection_reason, COALESCE(gateway_payout_id, ''), processed_at,
        completed_at, failure_reason, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, p Payout) error {
	_, err := r.db.Exec(ctx, `INSERT INTO payouts (id, user_id, amount, currency, status, note, rejection_reason, failure_reason, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, '', '', $7, $7)`,
		p.ID, p.UserID, p.Amount, p.Currency, p.Status, p.Note, p.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrActivePayout
	}
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Payout, error) {
	return scanPayout(r.db.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id))
}

func (r *PostgresRepository) GetByGatewayID(ctx context.Context, gatewayPayoutID string) (Payout, error) {
	return scanPayout(r.db.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE gateway_payout_id = $1`, gatewayPayoutID))
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Payout, error) {
	return r.list(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *PostgresRepository) Active(ctx context.Context, userID string) ([]Payout, error) {
	return r.list(ctx, `SELECT `+payoutColumns+` FROM payouts
        WHERE user_id = $1 AND status IN ('PENDING', 'APPROVED', 'PROCESSING')`, userID)
}

func (r *PostgresRepository) Update(ctx context.Context, p Payout, from Status) error {
	cmd, err := r.db.Exec(ctx, `UPDATE payouts
        SET status = $3, approved_by = NULLIF($4, ''), approved_at = $5, rejected_by = NULLIF($6, ''), rejected_at = $7,
            rejection_reason = $8, gateway_payout_id = NULLIF($9, ''), processed_at = $10, completed_at = $11,
            failure_reason = $12, updated_at = $13
        WHERE id = $1 AND status = $2`,
		p.ID, from, p.Status, p.ApprovedBy, p.ApprovedAt, p.RejectedBy, p.RejectedAt,
		p.RejectionReason, p.GatewayPayoutID, p.ProcessedAt, p.CompletedAt, p.FailureReason, p.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]Payout, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPayout(row pgx.Row) (Payout, error) {
	var p Payout
	err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Status, &p.Note, &p.ApprovedBy, &p.ApprovedAt,
		&p.RejectedBy, &p.RejectedAt, &p.RejectionReason, &p.GatewayPayoutID, &p.ProcessedAt,
		&p.CompletedAt, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payout{}, ErrNotFound
	}
	return p, err
}
