package wallet

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/creatorhub/escrow-ledger/internal/actor"
	"github.com/creatorhub/escrow-ledger/internal/apperr"
	"github.com/creatorhub/escrow-ledger/internal/ledger"
	"github.com/creatorhub/escrow-ledger/internal/money"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Service is the read side of the ledger plus admin adjustments.
type Service struct {
	store    ledger.Store
	currency string
	logger   *slog.Logger
}

// NewService builds a wallet service over the ledger store.
func NewService(store ledger.Store, currency string, logger *slog.Logger) *Service {
	return &Service{store: store, currency: currency, logger: logger}
}

// Wallet returns the user's wallet. A user with no postings sees a zero balance.
func (s *Service) Wallet(ctx context.Context, act actor.Actor, userID string) (ledger.Wallet, error) {
	if err := authorize(act, userID); err != nil {
		return ledger.Wallet{}, err
	}
	w, err := s.store.Wallet(ctx, userID)
	if errors.Is(err, ledger.ErrWalletNotFound) {
		now := time.Now().UTC()
		return ledger.Wallet{UserID: userID, Currency: s.currency, CreatedAt: now, UpdatedAt: now}, nil
	}
	return w, err
}

// Transactions pages through the user's history, newest first.
func (s *Service) Transactions(ctx context.Context, act actor.Actor, userID string, limit, offset int) ([]ledger.Transaction, error) {
	if err := authorize(act, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Transactions(ctx, userID, limit, offset)
}

// Integrity reconciles the stored balance against the transaction log.
func (s *Service) Integrity(ctx context.Context, act actor.Actor, userID string) (ledger.IntegrityReport, error) {
	if err := authorize(act, userID); err != nil {
		return ledger.IntegrityReport{}, err
	}
	report, err := s.store.VerifyIntegrity(ctx, userID)
	if err != nil {
		return ledger.IntegrityReport{}, err
	}
	if !report.Valid {
		s.logger.Error("wallet integrity check failed",
			slog.String("user_id", userID),
			slog.String("wallet_balance", report.WalletBalance.String()),
			slog.String("computed_balance", report.ComputedBalance.String()),
		)
	}
	return report, nil
}

// AdjustInput describes a manual correction posted by an operator.
type AdjustInput struct {
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
}

// Adjust posts a credit or debit adjustment. A repeated reference is rejected as a conflict.
func (s *Service) Adjust(ctx context.Context, act actor.Actor, in AdjustInput) (ledger.Transaction, error) {
	if !act.IsAdmin() {
		return ledger.Transaction{}, apperr.Forbidden("only admins can adjust wallets")
	}
	amount := money.Round(in.Amount)
	switch {
	case in.UserID == "":
		return ledger.Transaction{}, apperr.Validation("user_id is required")
	case amount.IsZero():
		return ledger.Transaction{}, apperr.Validation("amount must be non-zero")
	case in.Description == "":
		return ledger.Transaction{}, apperr.Validation("description is required")
	}
	typ := ledger.TypeCreditAdjustment
	if amount.IsNegative() {
		typ = ledger.TypeDebitAdjustment
	}
	ref := in.Reference
	if ref == "" {
		ref = uuid.NewString()
	}

	txn, err := s.store.PostTransaction(ctx, ledger.Entry{
		UserID:        in.UserID,
		Type:          typ,
		Amount:        amount,
		Description:   in.Description,
		ReferenceID:   ref,
		ReferenceType: ledger.RefManual,
	})
	if errors.Is(err, ledger.ErrDuplicateTransaction) {
		return ledger.Transaction{}, apperr.Wrap(apperr.KindConflict, err, "adjustment "+ref+" already posted")
	}
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.logger.Info("wallet adjusted",
		slog.String("user_id", in.UserID),
		slog.String("type", string(typ)),
		slog.String("amount", amount.String()),
		slog.String("admin_id", act.UserID),
	)
	return txn, nil
}

func authorize(act actor.Actor, userID string) error {
	if userID == "" {
		return apperr.Validation("user_id is required")
	}
	if !act.Is(userID) && !act.IsAdmin() {
		return apperr.Forbidden("cannot view another user's wallet")
	}
	return nil
}
