package tip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/creatorhub/escrow-ledger/internal/actor"
	"github.com/creatorhub/escrow-ledger/internal/apperr"
	"github.com/creatorhub/escrow-ledger/internal/directory"
	"github.com/creatorhub/escrow-ledger/internal/gateway"
	"github.com/creatorhub/escrow-ledger/internal/ledger"
	"github.com/creatorhub/escrow-ledger/internal/money"
	"github.com/creatorhub/escrow-ledger/internal/notification"
)

// Directory resolves tip recipients and the posts they are attached to.
type Directory interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	PostAuthor(ctx context.Context, postID string) (string, error)
}

// Service runs the tip lifecycle and posts its ledger entries.
type Service struct {
	repo     Repository
	ledger   ledger.Store
	gateway  gateway.Gateway
	dir      Directory
	notifier notification.Notifier
	logger   *slog.Logger
	currency string
	now      func() time.Time
}

// NewService wires a tip service.
func NewService(repo Repository, store ledger.Store, gw gateway.Gateway, dir Directory, notifier notification.Notifier, logger *slog.Logger, currency string) *Service {
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		repo:     repo,
		ledger:   store,
		gateway:  gw,
		dir:      dir,
		notifier: notifier,
		logger:   logger,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateTip records a tip and charges the sender. A confirmed charge completes the tip
// inline; otherwise it stays PROCESSING until the gateway webhook arrives.
func (s *Service) CreateTip(ctx context.Context, act actor.Actor, in CreateInput) (CreateResult, error) {
	senderID := act.UserID
	if senderID == "" {
		return CreateResult{}, apperr.Forbidden("an authenticated sender is required")
	}
	if in.RecipientID == "" {
		return CreateResult{}, apperr.Validation("recipient is required")
	}
	if in.RecipientID == senderID {
		return CreateResult{}, apperr.Validation("you cannot tip yourself")
	}
	if in.Amount.LessThan(MinAmount) || in.Amount.GreaterThan(MaxAmount) {
		return CreateResult{}, apperr.Validation("tip amount must be between %s and %s", MinAmount.StringFixed(2), MaxAmount.StringFixed(2))
	}
	exists, err := s.dir.UserExists(ctx, in.RecipientID)
	if err != nil {
		return CreateResult{}, err
	}
	if !exists {
		return CreateResult{}, apperr.NotFound("recipient %s not found", in.RecipientID)
	}
	if in.PostID != "" {
		author, err := s.dir.PostAuthor(ctx, in.PostID)
		if errors.Is(err, directory.ErrNotFound) {
			return CreateResult{}, apperr.NotFound("post %s not found", in.PostID)
		}
		if err != nil {
			return CreateResult{}, err
		}
		if author != in.RecipientID {
			return CreateResult{}, apperr.Validation("post %s does not belong to the recipient", in.PostID)
		}
	}

	now := s.now()
	t := Tip{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		RecipientID: in.RecipientID,
		PostID:      in.PostID,
		Amount:      money.Round(in.Amount),
		Currency:    s.currency,
		Message:     strings.TrimSpace(in.Message),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return CreateResult{}, err
	}

	charge, err := s.gateway.CreateCharge(ctx, gateway.ChargeRequest{
		AmountMinor:    money.ToMinor(t.Amount),
		Currency:       t.Currency,
		PaymentMethod:  in.PaymentMethod,
		Confirm:        in.PaymentMethod != "",
		Description:    "tip to " + t.RecipientID,
		IdempotencyKey: "tip-" + t.ID,
		Metadata:       map[string]string{"tip_id": t.ID},
	})
	if err != nil {
		classified := gateway.Classify(err)
		s.logger.Warn("tip charge failed", slog.String("tip_id", t.ID), slog.Any("error", err))
		// An unknown outcome stays PENDING so the webhook can still settle it.
		var declined *gateway.Error
		if errors.As(err, &declined) {
			if _, failErr := s.fail(ctx, t, err.Error()); failErr != nil {
				s.logger.Error("mark tip failed", slog.String("tip_id", t.ID), slog.Any("error", failErr))
			}
		}
		return CreateResult{}, classified
	}

	processing := t
	processing.Status = StatusProcessing
	processing.GatewayChargeID = charge.ID
	processing.UpdatedAt = s.now()
	if err := s.update(ctx, processing, StatusPending); err != nil {
		return CreateResult{}, err
	}
	s.logger.Info("tip charged", slog.String("tip_id", t.ID), slog.String("charge_id", charge.ID), slog.String("charge_status", string(charge.Status)))

	if charge.Status != gateway.StatusSucceeded {
		return CreateResult{Tip: processing, ClientSecret: charge.ClientSecret}, nil
	}
	completed, err := s.complete(ctx, processing)
	if err != nil {
		return CreateResult{}, err
	}
	return CreateResult{Tip: completed}, nil
}

// CompleteTip posts the tip's ledger entries once. Completing a COMPLETED tip returns it unchanged.
func (s *Service) CompleteTip(ctx context.Context, tipID string) (Tip, error) {
	t, err := s.get(ctx, tipID)
	if err != nil {
		return Tip{}, err
	}
	return s.complete(ctx, t)
}

// CompleteTipByCharge completes the tip paid by chargeID. tipID, taken from the charge
// metadata, is the fallback when the charge id was never recorded.
func (s *Service) CompleteTipByCharge(ctx context.Context, chargeID, tipID string) (Tip, error) {
	t, err := s.resolve(ctx, chargeID, tipID)
	if err != nil {
		return Tip{}, err
	}
	return s.complete(ctx, t)
}

// FailTip records a failed payment. Replays on a FAILED tip are no-ops.
func (s *Service) FailTip(ctx context.Context, chargeID, tipID, reason string) (Tip, error) {
	t, err := s.resolve(ctx, chargeID, tipID)
	if err != nil {
		return Tip{}, err
	}
	return s.fail(ctx, t, reason)
}

// RefundTip reverses a completed tip. The gateway refund is best-effort; the recipient's
// net credit is always reversed in the ledger.
func (s *Service) RefundTip(ctx context.Context, act actor.Actor, tipID, reason string) (Tip, error) {
	t, err := s.get(ctx, tipID)
	if err != nil {
		return Tip{}, err
	}
	if !act.IsAdmin() && !act.IsSystem() && !act.Is(t.RecipientID) {
		return Tip{}, apperr.Forbidden("only the recipient or an admin can refund a tip")
	}
	if t.Status != StatusCompleted {
		return Tip{}, apperr.InvalidState("tip is %s, expected %s", t.Status, StatusCompleted)
	}

	if _, err := s.gateway.Refund(ctx, gateway.RefundRequest{
		ChargeID:       t.GatewayChargeID,
		AmountMinor:    money.ToMinor(t.Amount),
		Reason:         reason,
		IdempotencyKey: "tip-refund-" + t.ID,
	}); err != nil {
		s.logger.Error("tip gateway refund failed, reversing ledger anyway", slog.String("tip_id", t.ID), slog.Any("error", err))
	}

	net, _ := money.SplitFee(t.Amount)
	_, err = s.ledger.PostTransaction(ctx, ledger.Entry{
		UserID:        t.RecipientID,
		Type:          ledger.TypeRefund,
		Amount:        net.Neg(),
		Description:   fmt.Sprintf("refund of tip from %s", t.SenderID),
		ReferenceID:   t.ID,
		ReferenceType: ledger.RefTip,
	})
	if err != nil && !errors.Is(err, ledger.ErrDuplicateTransaction) {
		return Tip{}, err
	}

	now := s.now()
	refunded := t
	refunded.Status = StatusRefunded
	refunded.RefundReason = reason
	refunded.RefundedAt = &now
	refunded.UpdatedAt = now
	if err := s.repo.Update(ctx, refunded, StatusCompleted); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return s.settled(ctx, t.ID, StatusRefunded)
		}
		return Tip{}, err
	}
	s.logger.Info("tip refunded", slog.String("tip_id", t.ID), slog.String("reversed", net.StringFixed(2)))
	s.notify(ctx, t.RecipientID, notification.TypeTipRefunded, "Tip refunded",
		fmt.Sprintf("A tip of %s was refunded", t.Amount.StringFixed(2)), t)
	s.notify(ctx, t.SenderID, notification.TypeTipRefunded, "Tip refunded",
		fmt.Sprintf("Your tip of %s was refunded", t.Amount.StringFixed(2)), t)
	return refunded, nil
}

// Get returns a tip visible to its sender, recipient or an admin.
func (s *Service) Get(ctx context.Context, act actor.Actor, tipID string) (Tip, error) {
	t, err := s.get(ctx, tipID)
	if err != nil {
		return Tip{}, err
	}
	if !act.Is(t.SenderID) && !act.Is(t.RecipientID) && !act.IsAdmin() {
		return Tip{}, apperr.Forbidden("not a party to this tip")
	}
	return t, nil
}

func (s *Service) complete(ctx context.Context, t Tip) (Tip, error) {
	if t.Status == StatusCompleted {
		return t, nil
	}
	if !t.Status.CanTransitionTo(StatusCompleted) {
		return Tip{}, apperr.InvalidState("tip is %s and cannot complete", t.Status)
	}

	net, fee := money.SplitFee(t.Amount)
	entries := []ledger.Entry{
		{UserID: t.SenderID, Type: ledger.TypeTipSent, Amount: t.Amount.Neg(), Description: "tip to " + t.RecipientID, ReferenceID: t.ID, ReferenceType: ledger.RefTip},
		{UserID: t.RecipientID, Type: ledger.TypeTipReceived, Amount: net, Description: "tip from " + t.SenderID, ReferenceID: t.ID, ReferenceType: ledger.RefTip},
	}
	if fee.IsPositive() {
		entries = append(entries, ledger.Entry{UserID: t.RecipientID, Type: ledger.TypePlatformFee, Amount: fee.Neg(), Description: "platform fee", ReferenceID: t.ID, ReferenceType: ledger.RefTip})
	}
	posted := true
	if _, err := s.ledger.Post(ctx, entries...); err != nil {
		if !errors.Is(err, ledger.ErrDuplicateTransaction) {
			return Tip{}, err
		}
		posted = false
	}

	now := s.now()
	from := t.Status
	completed := t
	completed.Status = StatusCompleted
	completed.CompletedAt = &now
	completed.UpdatedAt = now
	if err := s.repo.Update(ctx, completed, from); err != nil {
		if !errors.Is(err, ErrStatusConflict) {
			return Tip{}, err
		}
		// A concurrent delivery flipped the status first.
		if completed, err = s.settled(ctx, t.ID, StatusCompleted); err != nil {
			return Tip{}, err
		}
	} else {
		s.logger.Info("tip completed", slog.String("tip_id", t.ID), slog.String("net", net.StringFixed(2)), slog.String("fee", fee.StringFixed(2)))
	}
	// Only the request that wrote the ledger entries notifies.
	if posted {
		s.notify(ctx, t.RecipientID, notification.TypeTipReceived, "You received a tip",
			fmt.Sprintf("You received %s (%s after fees)", t.Amount.StringFixed(2), net.StringFixed(2)), t)
	}
	return completed, nil
}

func (s *Service) fail(ctx context.Context, t Tip, reason string) (Tip, error) {
	if t.Status == StatusFailed {
		return t, nil
	}
	if !t.Status.CanTransitionTo(StatusFailed) {
		return Tip{}, apperr.InvalidState("tip is %s and cannot fail", t.Status)
	}
	failed := t
	failed.Status = StatusFailed
	failed.FailureReason = reason
	failed.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, failed, t.Status); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return s.settled(ctx, t.ID, StatusFailed)
		}
		return Tip{}, err
	}
	s.logger.Info("tip failed", slog.String("tip_id", t.ID), slog.String("reason", reason))
	return failed, nil
}

// settled re-reads a tip after a lost compare-and-set and accepts it when another
// request already moved it to want.
func (s *Service) settled(ctx context.Context, tipID string, want Status) (Tip, error) {
	current, err := s.get(ctx, tipID)
	if err != nil {
		return Tip{}, err
	}
	if current.Status != want {
		return Tip{}, apperr.InvalidState("tip is %s, expected %s", current.Status, want)
	}
	return current, nil
}

func (s *Service) resolve(ctx context.Context, chargeID, tipID string) (Tip, error) {
	t, err := s.repo.GetByChargeID(ctx, chargeID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Tip{}, err
	}
	if tipID == "" {
		return Tip{}, apperr.Wrap(apperr.KindNotFound, err, "charge "+chargeID)
	}
	t, err = s.get(ctx, tipID)
	if err != nil {
		return Tip{}, err
	}
	if t.GatewayChargeID == "" {
		t.GatewayChargeID = chargeID
	}
	return t, nil
}

func (s *Service) get(ctx context.Context, tipID string) (Tip, error) {
	t, err := s.repo.Get(ctx, tipID)
	if errors.Is(err, ErrNotFound) {
		return Tip{}, apperr.Wrap(apperr.KindNotFound, err, "tip "+tipID)
	}
	return t, err
}

func (s *Service) update(ctx context.Context, t Tip, from Status) error {
	err := s.repo.Update(ctx, t, from)
	if errors.Is(err, ErrStatusConflict) {
		return apperr.Wrap(apperr.KindInvalidState, err, "tip "+t.ID)
	}
	return err
}

func (s *Service) notify(ctx context.Context, userID, typ, title, body string, t Tip) {
	err := s.notifier.Notify(ctx, notification.Message{
		UserID:   userID,
		Type:     typ,
		Title:    title,
		Body:     body,
		Metadata: map[string]string{"tip_id": t.ID},
	})
	if err != nil {
		s.logger.Warn("notification failed", slog.String("type", typ), slog.String("user_id", userID), slog.Any("error", err))
	}
}
