package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/creatorhub/escrow-ledger/internal/config"
	"github.com/creatorhub/escrow-ledger/internal/directory"
	"github.com/creatorhub/escrow-ledger/internal/escrow"
	"github.com/creatorhub/escrow-ledger/internal/gateway"
	"github.com/creatorhub/escrow-ledger/internal/ledger"
	"github.com/creatorhub/escrow-ledger/internal/lock"
	"github.com/creatorhub/escrow-ledger/internal/middleware"
	"github.com/creatorhub/escrow-ledger/internal/notification"
	"github.com/creatorhub/escrow-ledger/internal/payout"
	"github.com/creatorhub/escrow-ledger/internal/tip"
	"github.com/creatorhub/escrow-ledger/internal/wallet"
	"github.com/creatorhub/escrow-ledger/internal/webhook"
)

// Deps aggregates shared dependencies required to wire routes. DB, Cache and MQ are optional
// in dev environments, where in-memory backends take their place. Gateway and Directory
// default to the simulated gateway and a directory matching the storage backend.
type Deps struct {
	Cfg       config.Config
	DB        *pgxpool.Pool
	Cache     *redis.Client
	MQ        *amqp.Connection
	Channel   *amqp.Channel
	Gateway   gateway.Gateway
	Directory directory.Repository
	Logger    *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	currency := d.Cfg.Currency
	var (
		store   ledger.Store
		escrows escrow.Repository
		tips    tip.Repository
		payouts payout.Repository
		dir     = d.Directory
	)
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB, currency)
		escrows = escrow.NewPostgresRepository(d.DB)
		tips = tip.NewPostgresRepository(d.DB)
		payouts = payout.NewPostgresRepository(d.DB)
		if dir == nil {
			dir = directory.NewPostgresRepository(d.DB)
		}
	} else {
		store = ledger.NewInMemory(currency)
		escrows = escrow.NewMemoryRepository()
		tips = tip.NewMemoryRepository()
		payouts = payout.NewMemoryRepository()
		if dir == nil {
			dir = directory.NewMemoryRepository()
		}
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if d.Cache != nil {
		locker = lock.NewRedisLocker(d.Cache, d.Cfg.LockTTL, 0)
	}

	var notifier notification.Notifier = notification.NewLoggerNotifier(d.Logger)
	if d.Channel != nil {
		if err := notification.DeclareTopology(d.Channel); err != nil {
			return err
		}
		notifier = notification.NewAMQPNotifier(d.Channel, d.Logger)
	}

	gw := d.Gateway
	if gw == nil {
		gw = gateway.NewSimulator()
	}

	escrowSvc := escrow.NewService(escrows, gw, locker, dir, notifier, d.Logger, currency)
	tipSvc := tip.NewService(tips, store, gw, dir, notifier, d.Logger, currency)
	payoutSvc := payout.NewService(payouts, store, gw, dir, notifier, d.Logger, currency)
	walletSvc := wallet.NewService(store, currency, d.Logger)

	// Signed by the gateway, so it sits outside the JWT and Idempotency-Key requirements.
	dispatcher := webhook.NewGatewayDispatcher(tipSvc, escrowSvc, payoutSvc, dir, d.Logger)
	RegisterWebhookRoutes(app, webhook.NewHandler(dispatcher, d.Cfg.WebhookSecret, d.Cfg.WebhookTolerance, d.Logger))

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.CurrentRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	protected := api.Group("", middleware.JWTAuth(d.Cfg.JWTSecret), middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	RegisterEscrowRoutes(protected, escrow.NewHandler(escrowSvc))
	RegisterTipRoutes(protected, tip.NewHandler(tipSvc), middleware.TipRateLimit(d.Cache, d.Cfg.TipRateLimit))
	RegisterPayoutRoutes(protected, payout.NewHandler(payoutSvc))
	RegisterWalletRoutes(protected, wallet.NewHandler(walletSvc))

	return nil
}
