package tip

import (
	"context"
	"sync"
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
	notifier *notification.Recorder
	fan      actor.Actor
	admin    actor.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := directory.NewMemoryRepository()
	dir.AddUser(directory.User{ID: "fan"})
	dir.AddUser(directory.User{ID: "creator"})
	dir.AddUser(directory.User{ID: "other"})
	dir.AddPost(directory.Post{ID: "post-1", AuthorID: "creator"})

	store := ledger.NewInMemory("usd")
	sim := gateway.NewSimulator()
	rec := &notification.Recorder{}
	return &fixture{
		svc:      NewService(NewMemoryRepository(), store, sim, dir, rec, logging.Discard(), "usd"),
		store:    store,
		sim:      sim,
		notifier: rec,
		fan:      actor.New("fan"),
		admin:    actor.New("ops", actor.RoleAdmin),
	}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) balance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	b, err := f.store.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func TestCreateTipValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateInput
		kind apperr.Kind
	}{
		{"self tip", CreateInput{RecipientID: "fan", Amount: d("5")}, apperr.KindValidation},
		{"below minimum", CreateInput{RecipientID: "creator", Amount: d("0.49")}, apperr.KindValidation},
		{"above maximum", CreateInput{RecipientID: "creator", Amount: d("1000.01")}, apperr.KindValidation},
		{"unknown recipient", CreateInput{RecipientID: "ghost", Amount: d("5")}, apperr.KindNotFound},
		{"post of someone else", CreateInput{RecipientID: "other", PostID: "post-1", Amount: d("5")}, apperr.KindValidation},
		{"unknown post", CreateInput{RecipientID: "creator", PostID: "post-9", Amount: d("5")}, apperr.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateTip(ctx, f.fan, tc.in)
			assert.True(t, apperr.Is(err, tc.kind), "got %v", err)
		})
	}
	assert.Zero(t, f.sim.Calls(gateway.OpCharge), "invalid tips never reach the gateway")
}

func TestTipCompletesInlineWithThreeEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateTip(ctx, f.fan, CreateInput{RecipientID: "creator", PostID: "post-1", Amount: d("10"), PaymentMethod: "pm_card"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Tip.Status)

	assert.True(t, f.balance(t, "fan").Equal(d("-10")))
	assert.True(t, f.balance(t, "creator").Equal(d("9.00")))

	txs, err := f.store.Transactions(ctx, "creator", 10, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	byType := map[ledger.TransactionType]decimal.Decimal{}
	for _, tx := range txs {
		byType[tx.Type] = tx.Amount
		assert.Equal(t, res.Tip.ID, tx.ReferenceID)
	}
	assert.True(t, byType[ledger.TypeTipReceived].Equal(d("9.50")))
	assert.True(t, byType[ledger.TypePlatformFee].Equal(d("-0.50")))

	for _, user := range []string{"fan", "creator"} {
		report, err := f.store.VerifyIntegrity(ctx, user)
		require.NoError(t, err)
		assert.True(t, report.Valid, user)
	}
	assert.Len(t, f.notifier.Messages(notification.TypeTipReceived), 1)
}

func TestTipCompletionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sim.SetConfirmedChargeStatus(gateway.StatusProcessing)

	res, err := f.svc.CreateTip(ctx, f.fan, CreateInput{RecipientID: "creator", Amount: d("20"), PaymentMethod: "pm_card"})
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, res.Tip.Status)
	assert.True(t, f.balance(t, "creator").IsZero(), "no ledger entries before completion")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CompleteTipByCharge(ctx, res.Tip.GatewayChargeID, res.Tip.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	again, err := f.svc.CompleteTip(ctx, res.Tip.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, again.Status)

	assert.True(t, f.balance(t, "fan").Equal(d("-20")))
	assert.True(t, f.balance(t, "creator").Equal(d("18.00")))
	assert.Len(t, f.notifier.Messages(notification.TypeTipReceived), 1)
}

func TestTipWithoutPaymentMethodAwaitsConfirmation(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.CreateTip(context.Background(), f.fan, CreateInput{RecipientID: "creator", Amount: d("3")})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, res.Tip.Status)
	assert.NotEmpty(t, res.ClientSecret)
}

func TestTipDeclinedIsFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sim.FailNext(gateway.OpCharge, &gateway.Error{Code: "card_declined", Message: "declined"})

	_, err := f.svc.CreateTip(ctx, f.fan, CreateInput{RecipientID: "creator", Amount: d("5"), PaymentMethod: "pm_card"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindPaymentGateway))
	assert.True(t, f.balance(t, "fan").IsZero())
}

// capturingRepository remembers created tips so a test can find one whose creation
// returned an error.
type capturingRepository struct {
	Repository
	mu      sync.Mutex
	created []string
}

func (r *capturingRepository) Create(ctx context.Context, t Tip) error {
	r.mu.Lock()
	r.created = append(r.created, t.ID)
	r.mu.Unlock()
	return r.Repository.Create(ctx, t)
}

func TestUnknownChargeOutcomeSettledByWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := &capturingRepository{Repository: NewMemoryRepository()}
	f.svc.repo = repo
	f.sim.FailNext(gateway.OpCharge, context.DeadlineExceeded)

	_, err := f.svc.CreateTip(ctx, f.fan, CreateInput{RecipientID: "creator", Amount: d("10"), PaymentMethod: "pm_card"})
	require.Error(t, err)
	require.Len(t, repo.created, 1)
	tipID := repo.created[0]

	pending, err := f.svc.Get(ctx, f.fan, tipID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, pending.Status, "a timeout is not a decline")
	assert.Empty(t, pending.GatewayChargeID)
	txs, err := f.store.Transactions(ctx, "creator", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, txs)

	// The charge did go through; the webhook only knows its id and metadata.
	completed, err := f.svc.CompleteTipByCharge(ctx, "pi_late", tipID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
	assert.Equal(t, "pi_late", completed.GatewayChargeID)

	assert.True(t, f.balance(t, "fan").Equal(d("-10")))
	assert.True(t, f.balance(t, "creator").Equal(d("9.00")))
	txs, err = f.store.Transactions(ctx, "creator", 10, 0)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	again, err := f.svc.CompleteTipByCharge(ctx, "pi_late", "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, again.Status)
	assert.True(t, f.balance(t, "creator").Equal(d("9.00")))
	assert.Len(t, f.notifier.Messages(notification.TypeTipReceived), 1)
}

func TestFailTipFromWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sim.SetConfirmedChargeStatus(gateway.StatusProcessing)

	res, err := f.svc.CreateTip(ctx, f.fan, CreateInput{RecipientID: "creator", Amount: d("5"), PaymentMethod: "pm_card"})
	require.NoError(t, err)

	failed, err := f.svc.FailTip(ctx, res.Tip.GatewayChargeID, "", "insufficient funds")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)

	_, err = f.svc.FailTip(ctx, res.Tip.GatewayChargeID, "", "insufficient funds")
	require.NoError(t, err)

	_, err = f.svc.CompleteTip(ctx, res.Tip.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestRefundTipReversesNetCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateTip(ctx, f.fan, CreateInput{RecipientID: "creator", Amount: d("10"), PaymentMethod: "pm_card"})
	require.NoError(t, err)

	_, err = f.svc.RefundTip(ctx, f.fan, res.Tip.ID, "mistake")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	// Gateway refund failures do not block the ledger reversal.
	f.sim.FailNext(gateway.OpRefund, &gateway.Error{Code: "charge_disputed", Message: "disputed"})
	refunded, err := f.svc.RefundTip(ctx, f.admin, res.Tip.ID, "mistake")
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, refunded.Status)

	assert.True(t, f.balance(t, "creator").Equal(d("-0.50")))
	assert.True(t, f.balance(t, "fan").Equal(d("-10")), "sender recovery happens at the gateway")

	report, err := f.store.VerifyIntegrity(ctx, "creator")
	require.NoError(t, err)
	assert.True(t, report.Valid)

	_, err = f.svc.RefundTip(ctx, f.admin, res.Tip.ID, "mistake")
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}
