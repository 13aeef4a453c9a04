package routes

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorhub/escrow-ledger/internal/actor"
	"github.com/creatorhub/escrow-ledger/internal/auth"
	"github.com/creatorhub/escrow-ledger/internal/config"
	"github.com/creatorhub/escrow-ledger/internal/directory"
	"github.com/creatorhub/escrow-ledger/internal/logging"
	"github.com/creatorhub/escrow-ledger/internal/middleware"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	cfg := config.Config{
		AppEnv:           "test",
		Currency:         "usd",
		JWTSecret:        "jwt-test",
		WebhookSecret:    "whsec_test",
		WebhookTolerance: time.Minute,
		LockTTL:          time.Second,
		IdempotencyTTL:   time.Minute,
	}
	dir := directory.NewMemoryRepository()
	dir.AddUser(directory.User{ID: "fan"})
	dir.AddUser(directory.User{ID: "creator"})

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logging.Discard())})
	require.NoError(t, Setup(app, Deps{Cfg: cfg, Directory: dir, Logger: logging.Discard()}))
	return app
}

func call(t *testing.T, app *fiber.App, method, path, user, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("Idempotency-Key", method+path+body)
	if user != "" {
		token, err := auth.Issue([]byte("jwt-test"), actor.New(user), time.Hour, time.Now())
		require.NoError(t, err)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func TestTipThroughHTTP(t *testing.T) {
	app := newTestApp(t)

	status, body := call(t, app, fiber.MethodPost, "/api/v1/tips", "fan", `{"recipient_id":"creator","amount":"10.00","payment_method":"pm_card"}`)
	require.Equal(t, fiber.StatusCreated, status, "%v", body)

	status, body = call(t, app, fiber.MethodGet, "/api/v1/wallet", "creator", "")
	require.Equal(t, fiber.StatusOK, status)
	balance, err := decimal.NewFromString(body["balance"].(string))
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("9.00")), "got %s", balance)

	status, body = call(t, app, fiber.MethodGet, "/api/v1/wallet/integrity", "fan", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["valid"])
}

func TestDomainErrorsMapToStatus(t *testing.T) {
	app := newTestApp(t)

	status, body := call(t, app, fiber.MethodPost, "/api/v1/tips", "fan", `{"recipient_id":"creator","amount":"0.10"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "validation", body["kind"])

	status, _ = call(t, app, fiber.MethodPost, "/api/v1/payouts", "creator", `{"amount":"50"}`)
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = call(t, app, fiber.MethodGet, "/api/v1/tips/missing", "fan", "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestAuthAndWebhookBoundaries(t *testing.T) {
	app := newTestApp(t)

	status, _ := call(t, app, fiber.MethodGet, "/api/v1/wallet", "", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = call(t, app, fiber.MethodPost, "/webhooks/gateway", "", `{"id":"evt_1","type":"payout.paid"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body := call(t, app, fiber.MethodGet, "/healthz", "", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "memory", body["status"].(map[string]any)["postgres"])
}

func TestEscrowThroughHTTP(t *testing.T) {
	app := newTestApp(t)

	status, body := call(t, app, fiber.MethodPost, "/api/v1/escrows", "brand",
		`{"gig_id":"gig-1","application_id":"app-1","payee_id":"creator","amount":"300.00"}`)
	require.Equal(t, fiber.StatusCreated, status, "%v", body)
	escrowID := body["escrow"].(map[string]any)["id"].(string)
	milestoneID := body["milestones"].([]any)[0].(map[string]any)["id"].(string)
	base := "/api/v1/escrows/" + escrowID

	status, body = call(t, app, fiber.MethodPost, base+"/fund", "brand", `{"payment_method":"pm_card"}`)
	require.Equal(t, fiber.StatusOK, status, "%v", body)

	status, _ = call(t, app, fiber.MethodPost, base+"/milestones/"+milestoneID+"/release", "brand", "")
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = call(t, app, fiber.MethodPost, base+"/milestones/"+milestoneID+"/submit", "creator", "")
	require.Equal(t, fiber.StatusOK, status)

	status, _ = call(t, app, fiber.MethodPost, base+"/milestones/"+milestoneID+"/release", "creator", `{}`)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = call(t, app, fiber.MethodPost, base+"/milestones/"+milestoneID+"/release", "brand", `{"n":1}`)
	require.Equal(t, fiber.StatusOK, status, "%v", body)
	assert.Equal(t, "RELEASED", body["escrow"].(map[string]any)["status"])
}
