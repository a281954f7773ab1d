// Package routes wires middleware, services and handlers onto the Fiber app.
package routes

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/consulta-pay/consulta_pay/internal/audit"
	"github.com/consulta-pay/consulta_pay/internal/config"
	"github.com/consulta-pay/consulta_pay/internal/gateway"
	"github.com/consulta-pay/consulta_pay/internal/giftcard"
	"github.com/consulta-pay/consulta_pay/internal/ledger"
	"github.com/consulta-pay/consulta_pay/internal/metrics"
	"github.com/consulta-pay/consulta_pay/internal/middleware"
	"github.com/consulta-pay/consulta_pay/internal/notification"
	"github.com/consulta-pay/consulta_pay/internal/payout"
	"github.com/consulta-pay/consulta_pay/internal/refund"
	"github.com/consulta-pay/consulta_pay/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Outside of dev both backends are mandatory even though main also checks.
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog(d.Logger))

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
	} else {
		store = ledger.NewInMemory()
	}

	var auditor audit.Recorder
	if d.DB != nil {
		auditor = audit.NewPostgresRecorder(d.DB)
	} else {
		auditor = audit.NewMemoryRecorder()
	}
	notifier := notification.NewLoggerNotifier(d.Logger)

	var payoutRepo payout.Repository
	var refundRepo refund.Repository
	var cardRepo giftcard.Repository
	if d.DB != nil {
		payoutRepo = payout.NewPostgresRepository(d.DB)
		refundRepo = refund.NewPostgresRepository(d.DB)
		cardRepo = giftcard.NewPostgresRepository(d.DB)
	} else {
		payoutRepo = payout.NewMemoryRepository()
		refundRepo = refund.NewMemoryRepository()
		cardRepo = giftcard.NewMemoryRepository()
	}

	var gw gateway.Gateway = gateway.StaticGateway{}
	if d.Cfg.GatewayURL != "" {
		gw = gateway.NewHTTPGateway(d.Cfg.GatewayURL, d.Cfg.GatewayTimeout)
	}

	walletSvc := wallet.NewService(store, auditor, notifier, d.Logger, m)
	payoutSvc := payout.NewService(payoutRepo, store,
		payout.Bounds{Min: d.Cfg.PayoutMin, Max: d.Cfg.PayoutMax},
		auditor, notifier, d.Logger, m)
	refundSvc := refund.NewService(refundRepo, store, gw, d.Cfg.GatewayTimeout,
		auditor, notifier, d.Logger, m)
	cardSvc := giftcard.NewService(cardRepo, store, auditor, notifier, d.Logger, m)

	walletHandler := wallet.NewHandler(walletSvc)
	payoutHandler := payout.NewHandler(payoutSvc)
	refundHandler := refund.NewHandler(refundSvc)
	cardHandler := giftcard.NewHandler(cardSvc)
	auditHandler := audit.NewHandler(auditor)

	api := app.Group("/api/v1", middleware.Auth([]byte(d.Cfg.JWTSecret)))
	if d.Cache != nil {
		api.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	admin := api.Group("", middleware.RequireRole("admin"))
	admin.Use(middleware.MoneyRateLimit(d.Cache, 30))

	RegisterWalletRoutes(api, admin, walletHandler)
	RegisterPayoutRoutes(api, admin, payoutHandler)
	RegisterRefundRoutes(api, admin, refundHandler)
	RegisterGiftCardRoutes(api, admin, cardHandler)
	admin.Get("/audit/events", auditHandler.List)

	return nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
