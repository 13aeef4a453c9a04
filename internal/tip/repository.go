package tip

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists tips. Update is a compare-and-set on the status column.
type Repository interface {
	Create(ctx context.Context, t Tip) error
	Get(ctx context.Context, id string) (Tip, error)
	GetByChargeID(ctx context.Context, chargeID string) (Tip, error)
	Update(ctx context.Context, t Tip, from Status) error
}

// PostgresRepository stores tips in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const tipColumns = `id, sender_id, recipient_id, COALESCE(post_id, ''), amount, currency, message, status,
        COALESCE(gateway_charge_id, ''), failure_reason, refund_reason, completed_at, refunded_at, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, t Tip) error {
	_, err := r.db.Exec(ctx, `INSERT INTO tips (id, sender_id, recipient_id, post_id, amount, currency, message, status,
            failure_reason, refund_reason, created_at, updated_at)
        VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, '', '', $9, $9)`,
		t.ID, t.SenderID, t.RecipientID, t.PostID, t.Amount, t.Currency, t.Message, t.Status, t.CreatedAt)
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Tip, error) {
	return scanTip(r.db.QueryRow(ctx, `SELECT `+tipColumns+` FROM tips WHERE id = $1`, id))
}

func (r *PostgresRepository) GetByChargeID(ctx context.Context, chargeID string) (Tip, error) {
	return scanTip(r.db.QueryRow(ctx, `SELECT `+tipColumns+` FROM tips WHERE gateway_charge_id = $1`, chargeID))
}

func (r *PostgresRepository) Update(ctx context.Context, t Tip, from Status) error {
	cmd, err := r.db.Exec(ctx, `UPDATE tips
        SET status = $3, gateway_charge_id = NULLIF($4, ''), failure_reason = $5, refund_reason = $6,
            completed_at = $7, refunded_at = $8, updated_at = $9
        WHERE id = $1 AND status = $2`,
		t.ID, from, t.Status, t.GatewayChargeID, t.FailureReason, t.RefundReason, t.CompletedAt, t.RefundedAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func scanTip(row pgx.Row) (Tip, error) {
	var t Tip
	err := row.Scan(&t.ID, &t.SenderID, &t.RecipientID, &t.PostID, &t.Amount, &t.Currency, &t.Message, &t.Status,
		&t.GatewayChargeID, &t.FailureReason, &t.RefundReason, &t.CompletedAt, &t.RefundedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tip{}, ErrNotFound
	}
	return t, err
}
