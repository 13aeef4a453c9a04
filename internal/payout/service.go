package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/creatorhub/escrow-ledger/internal/actor"
	"github.com/creatorhub/escrow-ledger/internal/apperr"
	"github.com/creatorhub/escrow-ledger/internal/directory"
	"github.com/creatorhub/escrow-ledger/internal/gateway"
	"github.com/creatorhub/escrow-ledger/internal/ledger"
	"github.com/creatorhub/escrow-ledger/internal/money"
	"github.com/creatorhub/escrow-ledger/internal/notification"
)

// ErrInsufficientBalance indicates the available balance does not cover the payout.
var ErrInsufficientBalance = errors.New("insufficient available balance")

// Accounts resolves the connected payee account a payout is sent to.
type Accounts interface {
	PayeeAccount(ctx context.Context, userID string) (directory.PayeeAccount, error)
}

// Service runs the payout approval workflow and its ledger postings.
type Service struct {
	repo     Repository
	ledger   ledger.Store
	gateway  gateway.Gateway
	accounts Accounts
	notifier notification.Notifier
	logger   *slog.Logger
	currency string
	now      func() time.Time
}

// NewService wires a payout service.
func NewService(repo Repository, store ledger.Store, gw gateway.Gateway, accounts Accounts, notifier notification.Notifier, logger *slog.Logger, currency string) *Service {
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		repo:     repo,
		ledger:   store,
		gateway:  gw,
		accounts: accounts,
		notifier: notifier,
		logger:   logger,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreatePayoutRequest queues a withdrawal for admin review.
func (s *Service) CreatePayoutRequest(ctx context.Context, act actor.Actor, amount decimal.Decimal, note string) (Payout, error) {
	userID := act.UserID
	if userID == "" {
		return Payout{}, apperr.Forbidden("an authenticated user is required")
	}
	if amount.LessThan(MinAmount) {
		return Payout{}, apperr.Validation("payout amount must be at least %s", MinAmount.StringFixed(2))
	}
	if _, err := s.payableAccount(ctx, userID); err != nil {
		return Payout{}, err
	}
	active, err := s.repo.Active(ctx, userID)
	if err != nil {
		return Payout{}, err
	}
	if len(active) > 0 {
		return Payout{}, apperr.Wrap(apperr.KindConflict, ErrActivePayout, "payout "+active[0].ID)
	}
	amount = money.Round(amount)
	if err := s.checkAvailable(ctx, userID, amount, active); err != nil {
		return Payout{}, err
	}

	now := s.now()
	p := Payout{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Currency:  s.currency,
		Status:    StatusPending,
		Note:      strings.TrimSpace(note),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, ErrActivePayout) {
			return Payout{}, apperr.Wrap(apperr.KindConflict, err, "create payout")
		}
		return Payout{}, err
	}
	s.logger.Info("payout requested", slog.String("payout_id", p.ID), slog.String("user_id", userID), slog.String("amount", amount.StringFixed(2)))
	s.notify(ctx, notification.AdminRecipient, notification.TypePayoutRequested, "Payout awaiting approval",
		fmt.Sprintf("%s requested a payout of %s", userID, amount.StringFixed(2)), p)
	return p, nil
}

// ApprovePayout records the admin decision. An approved payout is sent to the gateway
// immediately; only a gateway-accepted payout debits the ledger.
func (s *Service) ApprovePayout(ctx context.Context, act actor.Actor, payoutID string, approve bool, rejectionReason string) (Payout, error) {
	if !act.IsAdmin() {
		return Payout{}, apperr.Forbidden("only admins can decide payouts")
	}
	p, err := s.get(ctx, payoutID)
	if err != nil {
		return Payout{}, err
	}
	if p.Status != StatusPending {
		return Payout{}, apperr.InvalidState("payout is %s, expected %s", p.Status, StatusPending)
	}
	now := s.now()

	if !approve {
		rejected := p
		rejected.Status = StatusRejected
		rejected.RejectedBy = act.UserID
		rejected.RejectedAt = &now
		rejected.RejectionReason = strings.TrimSpace(rejectionReason)
		rejected.UpdatedAt = now
		if err := s.update(ctx, rejected, StatusPending); err != nil {
			return Payout{}, err
		}
		s.logger.Info("payout rejected", slog.String("payout_id", p.ID), slog.String("admin_id", act.UserID))
		s.notify(ctx, p.UserID, notification.TypePayoutRejected, "Payout rejected", rejected.RejectionReason, rejected)
		return rejected, nil
	}

	active, err := s.repo.Active(ctx, p.UserID)
	if err != nil {
		return Payout{}, err
	}
	others := make([]Payout, 0, len(active))
	for _, a := range active {
		if a.ID != p.ID {
			others = append(others, a)
		}
	}
	if err := s.checkAvailable(ctx, p.UserID, p.Amount, others); err != nil {
		return Payout{}, err
	}
	account, err := s.payableAccount(ctx, p.UserID)
	if err != nil {
		return Payout{}, err
	}

	approved := p
	approved.Status = StatusApproved
	approved.ApprovedBy = act.UserID
	approved.ApprovedAt = &now
	approved.UpdatedAt = now
	if err := s.update(ctx, approved, StatusPending); err != nil {
		return Payout{}, err
	}
	s.logger.Info("payout approved", slog.String("payout_id", p.ID), slog.String("admin_id", act.UserID))

	transfer, err := s.gateway.CreatePayout(ctx, gateway.PayoutRequest{
		AmountMinor:        money.ToMinor(p.Amount),
		Currency:           p.Currency,
		DestinationAccount: account.AccountID,
		IdempotencyKey:     "payout-" + p.ID,
		Metadata:           map[string]string{"payout_id": p.ID},
	})
	if err != nil {
		classified := gateway.Classify(err)
		var declined *gateway.Error
		if !errors.As(err, &declined) {
			// The transfer may exist; the payout webhook settles it via the payout_id metadata.
			s.logger.Error("payout outcome unknown", slog.String("payout_id", p.ID), slog.Any("error", err))
			return approved, classified
		}
		failed, failErr := s.markFailed(ctx, approved, err.Error())
		if failErr != nil {
			s.logger.Error("mark payout failed", slog.String("payout_id", p.ID), slog.Any("error", failErr))
			return approved, classified
		}
		return failed, classified
	}
	return s.process(ctx, approved, transfer.ID)
}

// CompletePayout settles a payout confirmed by the gateway. Replays are no-ops.
func (s *Service) CompletePayout(ctx context.Context, gatewayPayoutID, payoutID string) (Payout, error) {
	p, err := s.resolve(ctx, gatewayPayoutID, payoutID)
	if err != nil {
		return Payout{}, err
	}
	if p.Status == StatusCompleted {
		return p, nil
	}
	if p.Status == StatusApproved {
		// The approval call timed out before the transfer id was recorded.
		if p, err = s.process(ctx, p, gatewayPayoutID); err != nil {
			return Payout{}, err
		}
	}
	if p.Status != StatusProcessing {
		return Payout{}, apperr.InvalidState("payout is %s, expected %s", p.Status, StatusProcessing)
	}

	now := s.now()
	completed := p
	completed.Status = StatusCompleted
	completed.CompletedAt = &now
	completed.UpdatedAt = now
	if err := s.repo.Update(ctx, completed, StatusProcessing); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return s.settled(ctx, p.ID, StatusCompleted)
		}
		return Payout{}, err
	}
	s.logger.Info("payout completed", slog.String("payout_id", p.ID), slog.String("gateway_payout_id", gatewayPayoutID))
	s.notify(ctx, p.UserID, notification.TypePayoutCompleted, "Payout completed",
		fmt.Sprintf("%s has arrived in your account", p.Amount.StringFixed(2)), completed)
	return completed, nil
}

// FailPayout records a transfer the gateway could not deliver and reverses its debit once.
func (s *Service) FailPayout(ctx context.Context, gatewayPayoutID, payoutID, reason string) (Payout, error) {
	p, err := s.resolve(ctx, gatewayPayoutID, payoutID)
	if err != nil {
		return Payout{}, err
	}
	if p.Status == StatusFailed {
		return p, nil
	}
	if !p.Status.CanTransitionTo(StatusFailed) {
		return Payout{}, apperr.InvalidState("payout is %s and cannot fail", p.Status)
	}
	if p.Status == StatusProcessing {
		_, err := s.ledger.PostTransaction(ctx, ledger.Entry{
			UserID:        p.UserID,
			Type:          ledger.TypeCreditAdjustment,
			Amount:        p.Amount,
			Description:   "reversal of failed payout",
			ReferenceID:   p.ID,
			ReferenceType: ledger.RefPayout,
		})
		if err != nil && !errors.Is(err, ledger.ErrDuplicateTransaction) {
			return Payout{}, err
		}
	}
	return s.markFailed(ctx, p, reason)
}

// Get returns a payout visible to its owner or an admin.
func (s *Service) Get(ctx context.Context, act actor.Actor, payoutID string) (Payout, error) {
	p, err := s.get(ctx, payoutID)
	if err != nil {
		return Payout{}, err
	}
	if !act.Is(p.UserID) && !act.IsAdmin() {
		return Payout{}, apperr.Forbidden("not your payout")
	}
	return p, nil
}

// ListByUser lists a user's payouts, newest first.
func (s *Service) ListByUser(ctx context.Context, act actor.Actor, userID string) ([]Payout, error) {
	if userID == "" {
		userID = act.UserID
	}
	if !act.Is(userID) && !act.IsAdmin() {
		return nil, apperr.Forbidden("not your payouts")
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) process(ctx context.Context, p Payout, gatewayPayoutID string) (Payout, error) {
	_, err := s.ledger.PostTransaction(ctx, ledger.Entry{
		UserID:        p.UserID,
		Type:          ledger.TypePayout,
		Amount:        p.Amount.Neg(),
		Description:   "payout to connected account",
		ReferenceID:   p.ID,
		ReferenceType: ledger.RefPayout,
	})
	if err != nil && !errors.Is(err, ledger.ErrDuplicateTransaction) {
		return Payout{}, err
	}

	now := s.now()
	processing := p
	processing.Status = StatusProcessing
	processing.GatewayPayoutID = gatewayPayoutID
	processing.ProcessedAt = &now
	processing.UpdatedAt = now
	if err := s.repo.Update(ctx, processing, StatusApproved); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			current, getErr := s.get(ctx, p.ID)
			if getErr != nil {
				return Payout{}, getErr
			}
			return current, nil
		}
		return Payout{}, err
	}
	s.logger.Info("payout processing", slog.String("payout_id", p.ID), slog.String("gateway_payout_id", gatewayPayoutID))
	s.notify(ctx, p.UserID, notification.TypePayoutApproved, "Payout on its way",
		fmt.Sprintf("Your payout of %s was approved and sent", p.Amount.StringFixed(2)), processing)
	return processing, nil
}

func (s *Service) markFailed(ctx context.Context, p Payout, reason string) (Payout, error) {
	failed := p
	failed.Status = StatusFailed
	failed.FailureReason = reason
	failed.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, failed, p.Status); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return s.settled(ctx, p.ID, StatusFailed)
		}
		return Payout{}, err
	}
	s.logger.Warn("payout failed", slog.String("payout_id", p.ID), slog.String("reason", reason))
	s.notify(ctx, p.UserID, notification.TypePayoutFailed, "Payout failed", reason, failed)
	return failed, nil
}

// payableAccount returns the payee's connected account. A missing or restricted account
// is InvalidState; lookup failures are returned unchanged.
func (s *Service) payableAccount(ctx context.Context, userID string) (directory.PayeeAccount, error) {
	account, err := s.accounts.PayeeAccount(ctx, userID)
	if errors.Is(err, directory.ErrNotFound) {
		return directory.PayeeAccount{}, apperr.InvalidState("payee account onboarding has not started")
	}
	if err != nil {
		return directory.PayeeAccount{}, fmt.Errorf("payee account %s: %w", userID, err)
	}
	if !account.CanReceivePayouts() {
		return directory.PayeeAccount{}, apperr.InvalidState("payee account onboarding is incomplete or payouts are disabled")
	}
	return account, nil
}

// checkAvailable requires balance minus the user's other in-flight payouts to cover amount.
func (s *Service) checkAvailable(ctx context.Context, userID string, amount decimal.Decimal, active []Payout) error {
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return err
	}
	available := balance
	for _, p := range active {
		available = available.Sub(p.Amount)
	}
	if available.LessThan(amount) {
		return apperr.Wrap(apperr.KindInvalidState, ErrInsufficientBalance,
			fmt.Sprintf("available %s, requested %s", available.StringFixed(2), amount.StringFixed(2)))
	}
	return nil
}

func (s *Service) settled(ctx context.Context, payoutID string, want Status) (Payout, error) {
	current, err := s.get(ctx, payoutID)
	if err != nil {
		return Payout{}, err
	}
	if current.Status != want {
		return Payout{}, apperr.InvalidState("payout is %s, expected %s", current.Status, want)
	}
	return current, nil
}

func (s *Service) resolve(ctx context.Context, gatewayPayoutID, payoutID string) (Payout, error) {
	p, err := s.repo.GetByGatewayID(ctx, gatewayPayoutID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Payout{}, err
	}
	if payoutID == "" {
		return Payout{}, apperr.Wrap(apperr.KindNotFound, err, "gateway payout "+gatewayPayoutID)
	}
	return s.get(ctx, payoutID)
}

func (s *Service) get(ctx context.Context, payoutID string) (Payout, error) {
	p, err := s.repo.Get(ctx, payoutID)
	if errors.Is(err, ErrNotFound) {
		return Payout{}, apperr.Wrap(apperr.KindNotFound, err, "payout "+payoutID)
	}
	return p, err
}

func (s *Service) update(ctx context.Context, p Payout, from Status) error {
	err := s.repo.Update(ctx, p, from)
	if errors.Is(err, ErrStatusConflict) {
		return apperr.Wrap(apperr.KindInvalidState, err, "payout "+p.ID)
	}
	return err
}

func (s *Service) notify(ctx context.Context, userID, typ, title, body string, p Payout) {
	err := s.notifier.Notify(ctx, notification.Message{
		UserID:   userID,
		Type:     typ,
		Title:    title,
		Body:     body,
		Metadata: map[string]string{"payout_id": p.ID, "user_id": p.UserID},
	})
	if err != nil {
		s.logger.Warn("notification failed", slog.String("type", typ), slog.String("user_id", userID), slog.Any("error", err))
	}
}
