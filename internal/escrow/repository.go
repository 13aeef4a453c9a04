package escrow

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists escrows and their milestones. Status writes are compare-and-set:
// the row is updated only while it still has the expected status.
type Repository interface {
	Create(ctx context.Context, e Escrow, milestones []Milestone) error
	Get(ctx context.Context, id string) (Escrow, error)
	GetByChargeID(ctx context.Context, chargeID string) (Escrow, error)
	Milestone(ctx context.Context, id string) (Milestone, error)
	Milestones(ctx context.Context, applicationID string) ([]Milestone, error)
	UpdateStatus(ctx context.Context, e Escrow, from Status) error
	UpdateMilestone(ctx context.Context, m Milestone, from MilestoneStatus) error
}

const uniqueViolation = "23505"

// PostgresRepository stores escrows in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const escrowColumns = `id, gig_id, application_id, payer_id, payee_id, amount, currency, status,
        COALESCE(gateway_charge_id, ''), funded_at, released_at, refunded_at, disputed_at, created_at, updated_at`

const milestoneColumns = `id, application_id, title, description, amount, due_date, sort_order, status,
        submitted_at, approved_at, rejected_at, feedback, created_at, updated_at`

// Create inserts the escrow and its milestones in one transaction.
func (r *PostgresRepository) Create(ctx context.Context, e Escrow, milestones []Milestone) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	_, err = tx.Exec(ctx, `INSERT INTO escrows (id, gig_id, application_id, payer_id, payee_id, amount, currency, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		e.ID, e.GigID, e.ApplicationID, e.PayerID, e.PayeeID, e.Amount, e.Currency, e.Status, e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateApplication
		}
		return err
	}

	for _, m := range milestones {
		_, err = tx.Exec(ctx, `INSERT INTO milestones (id, application_id, title, description, amount, due_date, sort_order, status, feedback, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', $9, $9)`,
			m.ID, m.ApplicationID, m.Title, m.Description, m.Amount, m.DueDate, m.Order, m.Status, m.CreatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Escrow, error) {
	return scanEscrow(r.db.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id))
}

func (r *PostgresRepository) GetByChargeID(ctx context.Context, chargeID string) (Escrow, error) {
	return scanEscrow(r.db.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE gateway_charge_id = $1`, chargeID))
}

func (r *PostgresRepository) Milestone(ctx context.Context, id string) (Milestone, error) {
	return scanMilestone(r.db.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = $1`, id))
}

func (r *PostgresRepository) Milestones(ctx context.Context, applicationID string) ([]Milestone, error) {
	rows, err := r.db.Query(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE application_id = $1 ORDER BY sort_order`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, e Escrow, from Status) error {
	cmd, err := r.db.Exec(ctx, `UPDATE escrows
        SET status = $3, gateway_charge_id = NULLIF($4, ''), funded_at = $5, released_at = $6,
            refunded_at = $7, disputed_at = $8, updated_at = $9
        WHERE id = $1 AND status = $2`,
		e.ID, from, e.Status, e.GatewayChargeID, e.FundedAt, e.ReleasedAt, e.RefundedAt, e.DisputedAt, e.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *PostgresRepository) UpdateMilestone(ctx context.Context, m Milestone, from MilestoneStatus) error {
	cmd, err := r.db.Exec(ctx, `UPDATE milestones
        SET status = $3, submitted_at = $4, approved_at = $5, rejected_at = $6, feedback = $7, updated_at = $8
        WHERE id = $1 AND status = $2`,
		m.ID, from, m.Status, m.SubmittedAt, m.ApprovedAt, m.RejectedAt, m.Feedback, m.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func scanEscrow(row pgx.Row) (Escrow, error) {
	var e Escrow
	err := row.Scan(&e.ID, &e.GigID, &e.ApplicationID, &e.PayerID, &e.PayeeID, &e.Amount, &e.Currency, &e.Status,
		&e.GatewayChargeID, &e.FundedAt, &e.ReleasedAt, &e.RefundedAt, &e.DisputedAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Escrow{}, ErrNotFound
	}
	return e, err
}

func scanMilestone(row pgx.Row) (Milestone, error) {
	var m Milestone
	err := row.Scan(&m.ID, &m.ApplicationID, &m.Title, &m.Description, &m.Amount, &m.DueDate, &m.Order, &m.Status,
		&m.SubmittedAt, &m.ApprovedAt, &m.RejectedAt, &m.Feedback, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Milestone{}, ErrNotFound
	}
	return m, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
