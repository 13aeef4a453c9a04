package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/creatorhub/escrow-ledger/internal/actor"
	"github.com/creatorhub/escrow-ledger/internal/apperr"
	"github.com/creatorhub/escrow-ledger/internal/gateway"
	"github.com/creatorhub/escrow-ledger/internal/lock"
	"github.com/creatorhub/escrow-ledger/internal/money"
	"github.com/creatorhub/escrow-ledger/internal/notification"
)

// Applications is the gig-application collaborator notified when funding begins.
type Applications interface {
	MarkApplicationInProgress(ctx context.Context, applicationID string) error
}

// Service drives the escrow and milestone state machines.
type Service struct {
	repo     Repository
	gateway  gateway.Gateway
	locker   lock.Locker
	apps     Applications
	notifier notification.Notifier
	logger   *slog.Logger
	currency string
	now      func() time.Time
}

// NewService wires an escrow service.
func NewService(repo Repository, gw gateway.Gateway, locker lock.Locker, apps Applications, notifier notification.Notifier, logger *slog.Logger, currency string) *Service {
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		repo:     repo,
		gateway:  gw,
		locker:   locker,
		apps:     apps,
		notifier: notifier,
		logger:   logger,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create opens the escrow for an accepted application together with its milestones.
// Without explicit milestones a single milestone covers the full amount.
func (s *Service) Create(ctx context.Context, act actor.Actor, in CreateInput) (Escrow, []Milestone, error) {
	if !act.Is(in.PayerID) && !act.IsAdmin() && !act.IsSystem() {
		return Escrow{}, nil, apperr.Forbidden("only the payer can open an escrow")
	}
	if in.GigID == "" || in.ApplicationID == "" || in.PayerID == "" || in.PayeeID == "" {
		return Escrow{}, nil, apperr.Validation("gig, application, payer and payee are required")
	}
	if in.PayerID == in.PayeeID {
		return Escrow{}, nil, apperr.Validation("payer and payee must differ")
	}
	if !in.Amount.IsPositive() {
		return Escrow{}, nil, apperr.Validation("escrow amount must be positive")
	}
	if !isCents(in.Amount) {
		return Escrow{}, nil, apperr.Validation("escrow amount %s has more than 2 decimal places", in.Amount)
	}
	inputs := in.Milestones
	if len(inputs) == 0 {
		inputs = []MilestoneInput{{Title: "Full delivery", Amount: in.Amount, Order: 1}}
	}
	if err := validateMilestones(in.Amount, inputs); err != nil {
		return Escrow{}, nil, err
	}

	now := s.now()
	currency := strings.ToLower(in.Currency)
	if currency == "" {
		currency = s.currency
	}
	e := Escrow{
		ID:            uuid.NewString(),
		GigID:         in.GigID,
		ApplicationID: in.ApplicationID,
		PayerID:       in.PayerID,
		PayeeID:       in.PayeeID,
		Amount:        money.Round(in.Amount),
		Currency:      currency,
		Status:        StatusCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	milestones := make([]Milestone, 0, len(inputs))
	for i, mi := range inputs {
		order := mi.Order
		if order == 0 {
			order = i + 1
		}
		milestones = append(milestones, Milestone{
			ID:            uuid.NewString(),
			ApplicationID: in.ApplicationID,
			Title:         strings.TrimSpace(mi.Title),
			Description:   mi.Description,
			Amount:        money.Round(mi.Amount),
			DueDate:       mi.DueDate,
			Order:         order,
			Status:        MilestonePending,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	sort.Slice(milestones, func(i, j int) bool { return milestones[i].Order < milestones[j].Order })

	if err := s.repo.Create(ctx, e, milestones); err != nil {
		if errors.Is(err, ErrDuplicateApplication) {
			return Escrow{}, nil, apperr.Wrap(apperr.KindConflict, err, "application "+in.ApplicationID)
		}
		return Escrow{}, nil, err
	}
	s.logger.Info("escrow created", slog.String("escrow_id", e.ID), slog.String("application_id", e.ApplicationID), slog.String("amount", e.Amount.StringFixed(2)))
	return e, milestones, nil
}

func validateMilestones(total decimal.Decimal, inputs []MilestoneInput) error {
	seen := make(map[int]bool, len(inputs))
	sum := decimal.Zero
	for i, mi := range inputs {
		if strings.TrimSpace(mi.Title) == "" {
			return apperr.Validation("milestone %d: title is required", i+1)
		}
		if !mi.Amount.IsPositive() {
			return apperr.Validation("milestone %d: amount must be positive", i+1)
		}
		if !isCents(mi.Amount) {
			return apperr.Validation("milestone %d: amount %s has more than 2 decimal places", i+1, mi.Amount)
		}
		order := mi.Order
		if order == 0 {
			order = i + 1
		}
		if order < 0 || seen[order] {
			return apperr.Validation("milestone %d: order %d is not unique", i+1, order)
		}
		seen[order] = true
		sum = sum.Add(mi.Amount)
	}
	// Captures are exact cents against the hold, so the split must be exact too.
	if !sum.Equal(total) {
		return apperr.Validation("milestone amounts sum to %s, escrow amount is %s", sum.StringFixed(2), total.StringFixed(2))
	}
	return nil
}

func isCents(d decimal.Decimal) bool {
	return d.Equal(money.Round(d))
}

// Fund authorizes the full amount on the payer's payment method without capturing it.
func (s *Service) Fund(ctx context.Context, act actor.Actor, escrowID, paymentMethod string) (Escrow, error) {
	e, err := s.get(ctx, escrowID)
	if err != nil {
		return Escrow{}, err
	}
	if !act.Is(e.PayerID) {
		return Escrow{}, apperr.Forbidden("only the payer can fund this escrow")
	}
	if e.Status != StatusCreated {
		return Escrow{}, apperr.InvalidState("escrow is %s, expected %s", e.Status, StatusCreated)
	}
	if strings.TrimSpace(paymentMethod) == "" {
		return Escrow{}, apperr.Validation("payment method is required")
	}

	hold, err := s.gateway.AuthorizeHold(ctx, gateway.HoldRequest{
		AmountMinor:    money.ToMinor(e.Amount),
		Currency:       e.Currency,
		PaymentMethod:  paymentMethod,
		Description:    "escrow for application " + e.ApplicationID,
		IdempotencyKey: "escrow-fund-" + e.ID,
		Metadata:       map[string]string{"escrow_id": e.ID, "application_id": e.ApplicationID},
	})
	if err != nil {
		s.logger.Warn("escrow authorization failed", slog.String("escrow_id", e.ID), slog.Any("error", err))
		return Escrow{}, gateway.Classify(err)
	}

	now := s.now()
	funded := e
	funded.Status = StatusFunded
	funded.GatewayChargeID = hold.ID
	funded.FundedAt = &now
	funded.UpdatedAt = now
	if err := s.repo.UpdateStatus(ctx, funded, StatusCreated); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			// A concurrent request with the same idempotency key already recorded this hold.
			current, getErr := s.get(ctx, escrowID)
			if getErr == nil && current.Status == StatusFunded && current.GatewayChargeID == hold.ID {
				return current, nil
			}
			return Escrow{}, apperr.Wrap(apperr.KindInvalidState, err, "fund escrow")
		}
		return Escrow{}, err
	}

	if err := s.apps.MarkApplicationInProgress(ctx, e.ApplicationID); err != nil {
		s.logger.Warn("mark application in progress failed", slog.String("application_id", e.ApplicationID), slog.Any("error", err))
	}
	s.logger.Info("escrow funded", slog.String("escrow_id", e.ID), slog.String("charge_id", hold.ID))
	s.notify(ctx, funded.PayeeID, notification.TypeEscrowFunded, "Escrow funded",
		fmt.Sprintf("%s %s is now held for your gig", funded.Amount.StringFixed(2), strings.ToUpper(funded.Currency)), funded)
	return funded, nil
}

// SubmitMilestone marks a deliverable as ready for the payer's review.
func (s *Service) SubmitMilestone(ctx context.Context, act actor.Actor, escrowID, milestoneID string) (Milestone, error) {
	e, m, err := s.getPair(ctx, escrowID, milestoneID)
	if err != nil {
		return Milestone{}, err
	}
	if !act.Is(e.PayeeID) {
		return Milestone{}, apperr.Forbidden("only the payee can submit milestones")
	}
	if e.Status != StatusCreated && e.Status != StatusFunded {
		return Milestone{}, apperr.InvalidState("escrow is %s", e.Status)
	}
	if !m.Status.CanTransitionTo(MilestoneSubmitted) {
		return Milestone{}, apperr.InvalidState("milestone is %s and cannot be submitted", m.Status)
	}

	now := s.now()
	from := m.Status
	m.Status = MilestoneSubmitted
	m.SubmittedAt = &now
	m.UpdatedAt = now
	if err := s.updateMilestone(ctx, m, from); err != nil {
		return Milestone{}, err
	}
	s.logger.Info("milestone submitted", slog.String("escrow_id", e.ID), slog.String("milestone_id", m.ID))
	s.notify(ctx, e.PayerID, notification.TypeMilestoneSubmit, "Milestone submitted",
		fmt.Sprintf("%q is ready for review", m.Title), e)
	return m, nil
}

// ReleaseMilestone approves a submitted milestone and captures its amount from the hold.
// Releases for one escrow are serialized so captures never exceed the authorization.
func (s *Service) ReleaseMilestone(ctx context.Context, act actor.Actor, escrowID, milestoneID string) (Escrow, Milestone, error) {
	e, err := s.get(ctx, escrowID)
	if err != nil {
		return Escrow{}, Milestone{}, err
	}
	if !act.Is(e.PayerID) {
		return Escrow{}, Milestone{}, apperr.Forbidden("only the payer can release milestones")
	}

	release, err := s.acquire(ctx, escrowID, "another release is in progress")
	if err != nil {
		return Escrow{}, Milestone{}, err
	}
	defer release()

	e, m, err := s.getPair(ctx, escrowID, milestoneID)
	if err != nil {
		return Escrow{}, Milestone{}, err
	}
	if e.Status != StatusFunded {
		return Escrow{}, Milestone{}, apperr.InvalidState("escrow is %s, expected %s", e.Status, StatusFunded)
	}
	if m.Status != MilestoneSubmitted {
		return Escrow{}, Milestone{}, apperr.InvalidState("milestone is %s, expected %s", m.Status, MilestoneSubmitted)
	}

	_, err = s.gateway.Capture(ctx, gateway.CaptureRequest{
		ChargeID:       e.GatewayChargeID,
		AmountMinor:    money.ToMinor(m.Amount),
		IdempotencyKey: "milestone-capture-" + m.ID,
	})
	if err != nil {
		s.logger.Warn("milestone capture failed", slog.String("escrow_id", e.ID), slog.String("milestone_id", m.ID), slog.Any("error", err))
		return Escrow{}, Milestone{}, gateway.Classify(err)
	}

	now := s.now()
	m.Status = MilestoneApproved
	m.ApprovedAt = &now
	m.UpdatedAt = now
	if err := s.updateMilestone(ctx, m, MilestoneSubmitted); err != nil {
		return Escrow{}, Milestone{}, err
	}
	s.logger.Info("milestone released", slog.String("escrow_id", e.ID), slog.String("milestone_id", m.ID), slog.String("amount", m.Amount.StringFixed(2)))
	s.notify(ctx, e.PayeeID, notification.TypeMilestoneApproved, "Milestone approved",
		fmt.Sprintf("%q was approved and %s released", m.Title, m.Amount.StringFixed(2)), e)

	all, err := s.repo.Milestones(ctx, e.ApplicationID)
	if err != nil {
		return Escrow{}, Milestone{}, err
	}
	for _, other := range all {
		if other.Status != MilestoneApproved {
			return e, m, nil
		}
	}

	released := e
	released.Status = StatusReleased
	released.ReleasedAt = &now
	released.UpdatedAt = now
	if err := s.updateStatus(ctx, released, StatusFunded); err != nil {
		return Escrow{}, Milestone{}, err
	}
	s.logger.Info("escrow released", slog.String("escrow_id", e.ID))
	s.notify(ctx, e.PayeeID, notification.TypeEscrowReleased, "Escrow released", "All milestones were approved", released)
	return released, m, nil
}

// RejectMilestone sends a submitted milestone back to the payee. Funds are untouched.
func (s *Service) RejectMilestone(ctx context.Context, act actor.Actor, escrowID, milestoneID, feedback string) (Milestone, error) {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return Milestone{}, apperr.Validation("feedback is required when rejecting a milestone")
	}
	e, m, err := s.getPair(ctx, escrowID, milestoneID)
	if err != nil {
		return Milestone{}, err
	}
	if !act.Is(e.PayerID) {
		return Milestone{}, apperr.Forbidden("only the payer can reject milestones")
	}
	if e.Status != StatusCreated && e.Status != StatusFunded {
		return Milestone{}, apperr.InvalidState("escrow is %s", e.Status)
	}
	if !m.Status.CanTransitionTo(MilestoneRejected) {
		return Milestone{}, apperr.InvalidState("milestone is %s, expected %s", m.Status, MilestoneSubmitted)
	}

	now := s.now()
	m.Status = MilestoneRejected
	m.RejectedAt = &now
	m.Feedback = feedback
	m.UpdatedAt = now
	if err := s.updateMilestone(ctx, m, MilestoneSubmitted); err != nil {
		return Milestone{}, err
	}
	s.logger.Info("milestone rejected", slog.String("escrow_id", e.ID), slog.String("milestone_id", m.ID))
	s.notify(ctx, e.PayeeID, notification.TypeMilestoneRejected, "Milestone needs changes", feedback, e)
	return m, nil
}

// Refund cancels the remaining authorization. Milestones already captured stay paid.
func (s *Service) Refund(ctx context.Context, act actor.Actor, escrowID string) (Escrow, error) {
	e, err := s.get(ctx, escrowID)
	if err != nil {
		return Escrow{}, err
	}
	if !act.IsAdmin() && !act.IsSystem() && !act.Is(e.PayeeID) {
		return Escrow{}, apperr.Forbidden("only the payee or an admin can refund an escrow")
	}

	release, err := s.acquire(ctx, escrowID, "the escrow is busy, refund not started")
	if err != nil {
		return Escrow{}, err
	}
	defer release()

	if e, err = s.get(ctx, escrowID); err != nil {
		return Escrow{}, err
	}
	if !e.Status.CanTransitionTo(StatusRefunded) {
		return Escrow{}, apperr.InvalidState("escrow is %s and cannot be refunded", e.Status)
	}

	if _, err := s.gateway.CancelHold(ctx, e.GatewayChargeID, "escrow-refund-"+e.ID); err != nil {
		s.logger.Warn("escrow cancel failed", slog.String("escrow_id", e.ID), slog.Any("error", err))
		return Escrow{}, gateway.Classify(err)
	}

	now := s.now()
	from := e.Status
	refunded := e
	refunded.Status = StatusRefunded
	refunded.RefundedAt = &now
	refunded.UpdatedAt = now
	if err := s.updateStatus(ctx, refunded, from); err != nil {
		return Escrow{}, err
	}
	s.logger.Info("escrow refunded", slog.String("escrow_id", e.ID))
	s.notify(ctx, e.PayerID, notification.TypeEscrowRefunded, "Escrow refunded", "The held funds were released back to you", refunded)
	s.notify(ctx, e.PayeeID, notification.TypeEscrowRefunded, "Escrow refunded", "The escrow for your gig was refunded", refunded)
	return refunded, nil
}

// MarkDisputed freezes a funded escrow until an admin resolves it.
func (s *Service) MarkDisputed(ctx context.Context, act actor.Actor, escrowID, reason string) (Escrow, error) {
	e, err := s.get(ctx, escrowID)
	if err != nil {
		return Escrow{}, err
	}
	if !e.IsParty(act.UserID) && !act.IsAdmin() && !act.IsSystem() {
		return Escrow{}, apperr.Forbidden("only escrow parties can open a dispute")
	}
	return s.dispute(ctx, e, reason)
}

// MarkDisputedByCharge handles a gateway dispute for the escrow's charge. Replays are no-ops.
func (s *Service) MarkDisputedByCharge(ctx context.Context, chargeID, reason string) (Escrow, error) {
	e, err := s.repo.GetByChargeID(ctx, chargeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Escrow{}, apperr.Wrap(apperr.KindNotFound, err, "charge "+chargeID)
		}
		return Escrow{}, err
	}
	if e.Status == StatusDisputed {
		return e, nil
	}
	return s.dispute(ctx, e, reason)
}

func (s *Service) dispute(ctx context.Context, e Escrow, reason string) (Escrow, error) {
	if !e.Status.CanTransitionTo(StatusDisputed) {
		return Escrow{}, apperr.InvalidState("escrow is %s, expected %s", e.Status, StatusFunded)
	}
	now := s.now()
	disputed := e
	disputed.Status = StatusDisputed
	disputed.DisputedAt = &now
	disputed.UpdatedAt = now
	if err := s.updateStatus(ctx, disputed, StatusFunded); err != nil {
		return Escrow{}, err
	}
	s.logger.Info("escrow disputed", slog.String("escrow_id", e.ID), slog.String("reason", reason))
	body := "A dispute was opened on this escrow"
	if reason != "" {
		body += ": " + reason
	}
	s.notify(ctx, e.PayerID, notification.TypeEscrowDisputed, "Escrow disputed", body, disputed)
	s.notify(ctx, e.PayeeID, notification.TypeEscrowDisputed, "Escrow disputed", body, disputed)
	return disputed, nil
}

// Get returns an escrow visible to its parties and admins.
func (s *Service) Get(ctx context.Context, act actor.Actor, escrowID string) (Escrow, error) {
	e, err := s.get(ctx, escrowID)
	if err != nil {
		return Escrow{}, err
	}
	if !e.IsParty(act.UserID) && !act.IsAdmin() {
		return Escrow{}, apperr.Forbidden("not a party to this escrow")
	}
	return e, nil
}

// Milestones lists an escrow's milestones in order.
func (s *Service) Milestones(ctx context.Context, act actor.Actor, escrowID string) ([]Milestone, error) {
	e, err := s.Get(ctx, act, escrowID)
	if err != nil {
		return nil, err
	}
	return s.repo.Milestones(ctx, e.ApplicationID)
}

// acquire takes the per-escrow lock. Only contention is a Conflict; cancellation and
// lock store failures are returned as they are.
func (s *Service) acquire(ctx context.Context, escrowID, busy string) (func(), error) {
	release, err := s.locker.Acquire(ctx, "escrow:"+escrowID)
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, apperr.Wrap(apperr.KindConflict, err, busy)
	}
	if err != nil {
		return nil, fmt.Errorf("lock escrow %s: %w", escrowID, err)
	}
	return release, nil
}

func (s *Service) get(ctx context.Context, escrowID string) (Escrow, error) {
	e, err := s.repo.Get(ctx, escrowID)
	if errors.Is(err, ErrNotFound) {
		return Escrow{}, apperr.Wrap(apperr.KindNotFound, err, "escrow "+escrowID)
	}
	return e, err
}

func (s *Service) getPair(ctx context.Context, escrowID, milestoneID string) (Escrow, Milestone, error) {
	e, err := s.get(ctx, escrowID)
	if err != nil {
		return Escrow{}, Milestone{}, err
	}
	m, err := s.repo.Milestone(ctx, milestoneID)
	if errors.Is(err, ErrNotFound) || (err == nil && m.ApplicationID != e.ApplicationID) {
		return Escrow{}, Milestone{}, apperr.NotFound("milestone %s not found in escrow %s", milestoneID, escrowID)
	}
	if err != nil {
		return Escrow{}, Milestone{}, err
	}
	return e, m, nil
}

func (s *Service) updateStatus(ctx context.Context, e Escrow, from Status) error {
	err := s.repo.UpdateStatus(ctx, e, from)
	if errors.Is(err, ErrStatusConflict) {
		return apperr.Wrap(apperr.KindInvalidState, err, "escrow "+e.ID)
	}
	return err
}

func (s *Service) updateMilestone(ctx context.Context, m Milestone, from MilestoneStatus) error {
	err := s.repo.UpdateMilestone(ctx, m, from)
	if errors.Is(err, ErrStatusConflict) {
		return apperr.Wrap(apperr.KindInvalidState, err, "milestone "+m.ID)
	}
	return err
}

func (s *Service) notify(ctx context.Context, userID, typ, title, body string, e Escrow) {
	err := s.notifier.Notify(ctx, notification.Message{
		UserID:   userID,
		Type:     typ,
		Title:    title,
		Body:     body,
		Metadata: map[string]string{"escrow_id": e.ID, "application_id": e.ApplicationID},
	})
	if err != nil {
		s.logger.Warn("notification failed", slog.String("type", typ), slog.String("user_id", userID), slog.Any("error", err))
	}
}
