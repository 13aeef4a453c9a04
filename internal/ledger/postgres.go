package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists the transaction log and wallet balances in PostgreSQL.
type PostgresStore struct {
	db       *pgxpool.Pool
	currency string
	now      func() time.Time
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool, currency string) *PostgresStore {
	return &PostgresStore{db: db, currency: currency, now: func() time.Time { return time.Now().UTC() }}
}

// PostTransaction appends a single transaction and adjusts the owner's wallet.
func (s *PostgresStore) PostTransaction(ctx context.Context, entry Entry) (Transaction, error) {
	txs, err := s.Post(ctx, entry)
	if err != nil {
		return Transaction{}, err
	}
	return txs[0], nil
}

// Post appends all entries inside one database transaction. Every affected wallet row is
// locked with SELECT ... FOR UPDATE in user id order so concurrent postings serialize
// without deadlocking.
func (s *PostgresStore) Post(ctx context.Context, entries ...Entry) ([]Transaction, error) {
	if len(entries) == 0 {
		return nil, ErrInvalidEntry
	}
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return nil, err
		}
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	now := s.now()
	for _, userID := range lockOrder(entries) {
		if err := s.lockWallet(ctx, tx, userID, now); err != nil {
			return nil, err
		}
	}

	out := make([]Transaction, 0, len(entries))
	for _, e := range entries {
		t := Transaction{
			ID:            uuid.NewString(),
			UserID:        e.UserID,
			Type:          e.Type,
			Amount:        e.Amount,
			Description:   e.Description,
			ReferenceID:   e.ReferenceID,
			ReferenceType: e.ReferenceType,
			CreatedAt:     now,
		}
		tag, err := tx.Exec(ctx, `INSERT INTO transactions
            (id, user_id, type, amount, description, reference_id, reference_type, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
            ON CONFLICT (user_id, reference_type, reference_id, type) DO NOTHING`,
			t.ID, t.UserID, string(t.Type), t.Amount, t.Description,
			nullable(t.ReferenceID), nullable(string(t.ReferenceType)), t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert transaction: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, ErrDuplicateTransaction
		}
		if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = balance + $2, updated_at = $3 WHERE user_id = $1`,
			e.UserID, e.Amount, now); err != nil {
			return nil, fmt.Errorf("update wallet: %w", err)
		}
		out = append(out, t)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) lockWallet(ctx context.Context, tx pgx.Tx, userID string, now time.Time) error {
	if _, err := tx.Exec(ctx, `INSERT INTO wallets (user_id, balance, pending_balance, currency, created_at, updated_at)
        VALUES ($1, 0, 0, $2, $3, $3)
        ON CONFLICT (user_id) DO NOTHING`, userID, s.currency, now); err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}
	var id string
	if err := tx.QueryRow(ctx, `SELECT user_id FROM wallets WHERE user_id = $1 FOR UPDATE`, userID).Scan(&id); err != nil {
		return fmt.Errorf("lock wallet %s: %w", userID, err)
	}
	return nil
}

// Wallet returns the materialized wallet for a user.
func (s *PostgresStore) Wallet(ctx context.Context, userID string) (Wallet, error) {
	var w Wallet
	err := s.db.QueryRow(ctx, `SELECT user_id, balance, pending_balance, currency, created_at, updated_at
        FROM wallets WHERE user_id = $1`, userID).
		Scan(&w.UserID, &w.Balance, &w.PendingBalance, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	return w, nil
}

// Balance returns the wallet balance, zero for users without postings.
func (s *PostgresStore) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	w, err := s.Wallet(ctx, userID)
	if errors.Is(err, ErrWalletNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

// Transactions lists a user's postings, newest first.
func (s *PostgresStore) Transactions(ctx context.Context, userID string, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `SELECT id, user_id, type, amount, description,
            COALESCE(reference_id, ''), COALESCE(reference_type, ''), created_at
        FROM transactions WHERE user_id = $1
        ORDER BY created_at DESC, id
        LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var (
			t       Transaction
			typ     string
			refType string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &typ, &t.Amount, &t.Description, &t.ReferenceID, &refType, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = TransactionType(typ)
		t.ReferenceType = ReferenceType(refType)
		out = append(out, t)
	}
	return out, rows.Err()
}

// VerifyIntegrity recomputes the balance from the transaction log and compares it to the wallet.
func (s *PostgresStore) VerifyIntegrity(ctx context.Context, userID string) (IntegrityReport, error) {
	var computed decimal.Decimal
	if err := s.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = $1`, userID).
		Scan(&computed); err != nil {
		return IntegrityReport{}, err
	}
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return IntegrityReport{}, err
	}
	return newReport(userID, balance, computed), nil
}

func lockOrder(entries []Entry) []string {
	seen := make(map[string]struct{}, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.UserID]; ok {
			continue
		}
		seen[e.UserID] = struct{}{}
		ids = append(ids, e.UserID)
	}
	sort.Strings(ids)
	return ids
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
