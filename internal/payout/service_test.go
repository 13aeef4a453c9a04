package payout

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorhub/escrow-ledger/internal/actor"
	"github.com/creatorhub/escrow-ledger/internal/apperr"
	"github.com/creatorhub/escrow-ledger/internal/directory"
	"github.com/creatorhub/escrow-ledger/internal/gateway"
	"github.com/creatorhub/escrow-ledger/internal/ledger"
	"github.com/creatorhub/escrow-ledger/internal/logging"
	"github.com/creatorhub/escrow-ledger/internal/notification"
)

type fixture struct {
	svc      *Service
	store    ledger.Store
	sim      *gateway.Simulator
	dir      *directory.MemoryRepository
	notifier *notification.Recorder
	creator  actor.Actor
	admin    actor.Actor
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T, balance string) *fixture {
	t.Helper()
	store := ledger.NewInMemory("usd")
	if balance != "" {
		require.NoError(t, ledger.SeedCredit(context.Background(), store, "creator", d(balance)))
	}
	dir := directory.NewMemoryRepository()
	dir.SetPayeeAccount(directory.PayeeAccount{UserID: "creator", AccountID: "acct_creator", OnboardingComplete: true, PayoutsEnabled: true})
	sim := gateway.NewSimulator()
	rec := &notification.Recorder{}
	return &fixture{
		svc:      NewService(NewMemoryRepository(), store, sim, dir, rec, logging.Discard(), "usd"),
		store:    store,
		sim:      sim,
		dir:      dir,
		notifier: rec,
		creator:  actor.New("creator"),
		admin:    actor.New("ops", actor.RoleAdmin),
	}
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	b, err := f.store.Balance(context.Background(), "creator")
	require.NoError(t, err)
	return b
}

func TestCreatePayoutRequestRules(t *testing.T) {
	f := newFixture(t, "30")
	ctx := context.Background()

	_, err := f.svc.CreatePayoutRequest(ctx, f.creator, d("5"), "")
	assert.True(t, apperr.Is(err, apperr.KindValidation), "below minimum: %v", err)

	_, err = f.svc.CreatePayoutRequest(ctx, f.creator, d("50"), "")
	assert.True(t, apperr.Is(err, apperr.KindInvalidState), "insufficient balance: %v", err)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	p, err := f.svc.CreatePayoutRequest(ctx, f.creator, d("20"), "rent")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.Len(t, f.notifier.Messages(notification.TypePayoutRequested), 1)
	assert.Equal(t, notification.AdminRecipient, f.notifier.Messages(notification.TypePayoutRequested)[0].UserID)

	_, err = f.svc.CreatePayoutRequest(ctx, f.creator, d("10"), "")
	assert.True(t, apperr.Is(err, apperr.KindConflict), "second in-flight payout: %v", err)
}

func TestCreatePayoutRequiresOnboarding(t *testing.T) {
	f := newFixture(t, "100")
	f.dir.SetPayeeAccount(directory.PayeeAccount{UserID: "creator", AccountID: "acct_creator", OnboardingComplete: true})

	_, err := f.svc.CreatePayoutRequest(context.Background(), f.creator, d("20"), "")
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	_, err = f.svc.CreatePayoutRequest(context.Background(), actor.New("newbie"), d("20"), "")
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestApprovePayoutDebitsAndCompletes(t *testing.T) {
	f := newFixture(t, "100")
	ctx := context.Background()
	p, err := f.svc.CreatePayoutRequest(ctx, f.creator, d("40"), "")
	require.NoError(t, err)

	_, err = f.svc.ApprovePayout(ctx, f.creator, p.ID, true, "")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	processing, err := f.svc.ApprovePayout(ctx, f.admin, p.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, processing.Status)
	assert.Equal(t, "ops", processing.ApprovedBy)
	require.NotEmpty(t, processing.GatewayPayoutID)
	assert.True(t, f.balance(t).Equal(d("60")))

	// payout.paid delivered twice.
	for i := 0; i < 2; i++ {
		completed, err := f.svc.CompletePayout(ctx, processing.GatewayPayoutID, "")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, completed.Status)
	}
	assert.Len(t, f.notifier.Messages(notification.TypePayoutCompleted), 1)
	assert.True(t, f.balance(t).Equal(d("60")))

	report, err := f.store.VerifyIntegrity(ctx, "creator")
	require.NoError(t, err)
	assert.True(t, report.Valid)

	next, err := f.svc.CreatePayoutRequest(ctx, f.creator, d("60"), "")
	require.NoError(t, err, "terminal payouts do not block new requests")
	assert.Equal(t, StatusPending, next.Status)
}

type unavailableAccounts struct{ err error }

func (a unavailableAccounts) PayeeAccount(context.Context, string) (directory.PayeeAccount, error) {
	return directory.PayeeAccount{}, a.err
}

func TestApproveSeparatesAccountLookupFailures(t *testing.T) {
	f := newFixture(t, "100")
	ctx := context.Background()
	p, err := f.svc.CreatePayoutRequest(ctx, f.creator, d("40"), "")
	require.NoError(t, err)

	dbDown := errors.New("connection reset by peer")
	f.svc.accounts = unavailableAccounts{err: dbDown}
	_, err = f.svc.ApprovePayout(ctx, f.admin, p.ID, true, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, dbDown)
	assert.False(t, apperr.Is(err, apperr.KindInvalidState), "a lookup failure is not a payee problem")

	f.svc.accounts = f.dir
	f.dir.SetPayeeAccount(directory.PayeeAccount{UserID: "creator", AccountID: "acct_creator", OnboardingComplete: true})
	_, err = f.svc.ApprovePayout(ctx, f.admin, p.ID, true, "")
	assert.True(t, apperr.Is(err, apperr.KindInvalidState), "payouts disabled: %v", err)

	assert.Zero(t, f.sim.Calls(gateway.OpPayout))
	assert.True(t, f.balance(t).Equal(d("100")))

	f.dir.SetPayeeAccount(directory.PayeeAccount{UserID: "creator", AccountID: "acct_creator", OnboardingComplete: true, PayoutsEnabled: true})
	processing, err := f.svc.ApprovePayout(ctx, f.admin, p.ID, true, "")
	require.NoError(t, err, "the request stayed PENDING")
	assert.Equal(t, StatusProcessing, processing.Status)
}

func TestRejectPayout(t *testing.T) {
	f := newFixture(t, "100")
	ctx := context.Background()
	p, err := f.svc.CreatePayoutRequest(ctx, f.creator, d("40"), "")
	require.NoError(t, err)

	rejected, err := f.svc.ApprovePayout(ctx, f.admin, p.ID, false, "verify identity first")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, "verify identity first", rejected.RejectionReason)
	assert.True(t, f.balance(t).Equal(d("100")))
	assert.Zero(t, f.sim.Calls(gateway.OpPayout))

	_, err = f.svc.ApprovePayout(ctx, f.admin, p.ID, true, "")
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestGatewayFailureLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t, "100")
	ctx := context.Background()
	p, err := f.svc.CreatePayoutRequest(ctx, f.creator, d("40"), "")
	require.NoError(t, err)

	f.sim.FailNext(gateway.OpPayout, &gateway.Error{Code: "account_closed", Message: "destination closed"})
	failed, err := f.svc.ApprovePayout(ctx, f.admin, p.ID, true, "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindPaymentGateway))
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.FailureReason, "destination closed")
	assert.True(t, f.balance(t).Equal(d("100")))

	txs, err := f.store.Transactions(ctx, "creator", 10, 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1, "only the seed credit")
}

func TestUnknownOutcomeSettledByWebhook(t *testing.T) {
	f := newFixture(t, "100")
	ctx := context.Background()
	p, err := f.svc.CreatePayoutRequest(ctx, f.creator, d("40"), "")
	require.NoError(t, err)

	f.sim.FailNext(gateway.OpPayout, context.DeadlineExceeded)
	approved, err := f.svc.ApprovePayout(ctx, f.admin, p.ID, true, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrUnknownOutcome)
	assert.Equal(t, StatusApproved, approved.Status)
	assert.True(t, f.balance(t).Equal(d("100")))

	completed, err := f.svc.CompletePayout(ctx, "po_late", p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
	assert.Equal(t, "po_late", completed.GatewayPayoutID)
	assert.True(t, f.balance(t).Equal(d("60")))
}

func TestFailPayoutReversesDebitOnce(t *testing.T) {
	f := newFixture(t, "100")
	ctx := context.Background()
	p, err := f.svc.CreatePayoutRequest(ctx, f.creator, d("40"), "")
	require.NoError(t, err)
	processing, err := f.svc.ApprovePayout(ctx, f.admin, p.ID, true, "")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		failed, err := f.svc.FailPayout(ctx, processing.GatewayPayoutID, "", "bank rejected")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, failed.Status)
	}
	assert.True(t, f.balance(t).Equal(d("100")))
	assert.Len(t, f.notifier.Messages(notification.TypePayoutFailed), 1)

	_, err = f.svc.CompletePayout(ctx, processing.GatewayPayoutID, "")
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestListByUserScopesToActor(t *testing.T) {
	f := newFixture(t, "100")
	ctx := context.Background()
	_, err := f.svc.CreatePayoutRequest(ctx, f.creator, d("40"), "")
	require.NoError(t, err)

	mine, err := f.svc.ListByUser(ctx, f.creator, "")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = f.svc.ListByUser(ctx, actor.New("stranger"), "creator")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}
