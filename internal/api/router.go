package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/oregpt/escrowservice-sub000/internal/api/handler"
	"github.com/oregpt/escrowservice-sub000/internal/api/middleware"
	"github.com/oregpt/escrowservice-sub000/internal/api/spec"
	"github.com/oregpt/escrowservice-sub000/internal/config"
	"github.com/oregpt/escrowservice-sub000/internal/gateway"
	"github.com/oregpt/escrowservice-sub000/internal/idempotency"
	"github.com/oregpt/escrowservice-sub000/internal/repository"
	"github.com/oregpt/escrowservice-sub000/internal/service"
)

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *pgxpool.Pool
	store     *repository.Store
	idemStore *idempotency.Store
	redis     redis.Cmdable
	gateway   gateway.Gateway
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, store *repository.Store, idemStore *idempotency.Store, redisClient redis.Cmdable, gw gateway.Gateway) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		store:     store,
		idemStore: idemStore,
		redis:     redisClient,
		gateway:   gw,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))

	// Services
	escrowSvc := service.NewEscrowService(api.store)
	accountSvc := service.NewAccountService(api.store)
	withdrawalSvc := service.NewWithdrawalService(api.store, api.gateway)
	webhookSvc := service.NewWebhookService(api.store, api.cfg.WebhookHMACKey, api.cfg.WebhookSkipSignature)

	// Handlers
	authHandler := handler.NewAuthHandler(api.store)
	directoryHandler := handler.NewDirectoryHandler(api.store)
	escrowHandler := handler.NewEscrowHandler(escrowSvc)
	accountHandler := handler.NewAccountHandler(accountSvc)
	withdrawalHandler := handler.NewWithdrawalHandler(withdrawalSvc)
	webhookHandler := handler.NewWebhookHandler(webhookSvc)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	idem := middleware.IdempotencyMiddleware(api.idemStore, api.logger)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))

		r.Get("/healthz", healthHandler.Live)
		r.Get("/readyz", healthHandler.Ready)
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/openapi.yaml", spec.OpenAPIHandler())
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

		r.Post("/v1/auth/login", authHandler.Login)
		r.Post("/v1/users", directoryHandler.CreateUser)

		// The funding rail authenticates with an HMAC signature, not a JWT.
		r.Post("/v1/webhooks/deposit", webhookHandler.HandleDepositWebhook)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		// Directory
		r.Post("/v1/orgs", directoryHandler.CreateOrganization)
		r.Post("/v1/orgs/members", directoryHandler.AddOrgMember)
		r.With(middleware.RequireRole("admin")).Post("/v1/service-types", directoryHandler.CreateServiceType)

		// Accounts
		r.Get("/v1/accounts/{id}/balance", accountHandler.GetBalance)
		r.Get("/v1/accounts/{id}/statement", accountHandler.GetStatement)
		r.Get("/v1/orgs/{id}/account", accountHandler.GetOrgAccount)

		// Escrow lifecycle
		r.With(idem).Post("/v1/escrows", escrowHandler.CreateEscrow)
		r.Get("/v1/escrows/{id}", escrowHandler.GetEscrow)
		r.Get("/v1/escrows/{id}/events", escrowHandler.ListEscrowEvents)
		r.With(idem).Post("/v1/escrows/{id}/accept", escrowHandler.AcceptEscrow)
		r.With(idem).Post("/v1/escrows/{id}/fund", escrowHandler.FundEscrow)
		r.With(idem).Post("/v1/escrows/{id}/confirm", escrowHandler.ConfirmEscrow)
		r.With(idem).Post("/v1/escrows/{id}/cancel", escrowHandler.CancelEscrow)
		r.Post("/v1/escrows/{id}/evidence", escrowHandler.AttachEvidence)

		// Arbiter / platform admin paths. Authorization is resolved per
		// escrow inside the service, not by JWT role alone.
		r.With(idem).Post("/v1/escrows/{id}/admin-cancel", escrowHandler.AdminCancelEscrow)
		r.With(idem).Post("/v1/escrows/{id}/force-complete", escrowHandler.ForceCompleteEscrow)

		// Withdrawals
		r.With(idem).Post("/v1/withdrawals", withdrawalHandler.CreateWithdrawal)
		r.Get("/v1/withdrawals/{reference}", withdrawalHandler.GetWithdrawal)
	})

	return r
}
