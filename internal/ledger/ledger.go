package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/creatorhub/escrow-ledger/internal/money"
)

var (
	// ErrDuplicateTransaction indicates a posting with the same reference, type and user
	// already exists and therefore the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrInvalidEntry is returned for entries missing a user, type or non-zero amount.
	ErrInvalidEntry = errors.New("invalid ledger entry")

	// ErrWalletNotFound occurs when a user has never had a posting.
	ErrWalletNotFound = errors.New("wallet not found")
)

// TransactionType labels a posting in the append-only log.
type TransactionType string

const (
	TypeTipSent          TransactionType = "tip-sent"
	TypeTipReceived      TransactionType = "tip-received"
	TypePlatformFee      TransactionType = "platform-fee"
	TypePayout           TransactionType = "payout"
	TypeRefund           TransactionType = "refund"
	TypeCreditAdjustment TransactionType = "credit-adjustment"
	TypeDebitAdjustment  TransactionType = "debit-adjustment"
)

// ReferenceType names the aggregate a transaction links back to.
type ReferenceType string

const (
	RefTip    ReferenceType = "tip"
	RefPayout ReferenceType = "payout"
	RefEscrow ReferenceType = "escrow"
	RefManual ReferenceType = "manual"
)

// Entry is a posting request. Amount is signed: positive credits, negative debits.
type Entry struct {
	UserID        string
	Type          TransactionType
	Amount        decimal.Decimal
	Description   string
	ReferenceID   string
	ReferenceType ReferenceType
}

// Transaction is an immutable row of the ledger.
type Transaction struct {
	ID            string
	UserID        string
	Type          TransactionType
	Amount        decimal.Decimal
	Description   string
	ReferenceID   string
	ReferenceType ReferenceType
	CreatedAt     time.Time
}

// Wallet is the materialized balance for a user.
type Wallet struct {
	UserID         string
	Balance        decimal.Decimal
	PendingBalance decimal.Decimal
	Currency       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IntegrityReport compares the stored wallet balance with the sum of its transactions.
type IntegrityReport struct {
	UserID          string
	Valid           bool
	WalletBalance   decimal.Decimal
	ComputedBalance decimal.Decimal
	Difference      decimal.Decimal
}

// Store defines the contract implemented by ledger backends (e.g. Postgres).
//
// Post applies every entry and the matching wallet adjustments as one unit of work:
// either all rows are written or none are. Wallets are created on first use.
type Store interface {
	PostTransaction(ctx context.Context, entry Entry) (Transaction, error)
	Post(ctx context.Context, entries ...Entry) ([]Transaction, error)
	Wallet(ctx context.Context, userID string) (Wallet, error)
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	Transactions(ctx context.Context, userID string, limit, offset int) ([]Transaction, error)
	VerifyIntegrity(ctx context.Context, userID string) (IntegrityReport, error)
}

func (e Entry) validate() error {
	if e.UserID == "" || e.Type == "" || e.Amount.IsZero() {
		return ErrInvalidEntry
	}
	if e.ReferenceID != "" && e.ReferenceType == "" {
		return ErrInvalidEntry
	}
	return nil
}

// dedupeKey identifies a posting for idempotency; entries without a reference are never deduplicated.
func (e Entry) dedupeKey() string {
	if e.ReferenceID == "" {
		return ""
	}
	return e.UserID + "|" + string(e.ReferenceType) + "|" + e.ReferenceID + "|" + string(e.Type)
}

func newReport(userID string, walletBalance, computed decimal.Decimal) IntegrityReport {
	diff := walletBalance.Sub(computed)
	return IntegrityReport{
		UserID:          userID,
		Valid:           money.Equal(walletBalance, computed),
		WalletBalance:   walletBalance,
		ComputedBalance: computed,
		Difference:      diff,
	}
}
