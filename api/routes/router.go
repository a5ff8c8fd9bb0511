package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tabkeeper-backend/api/controllers"
	"github.com/angelmondragon/tabkeeper-backend/api/middleware"
	"github.com/angelmondragon/tabkeeper-backend/internal/balances"
	"github.com/angelmondragon/tabkeeper-backend/internal/batches"
	"github.com/angelmondragon/tabkeeper-backend/internal/ledger"
	"github.com/angelmondragon/tabkeeper-backend/internal/payments"
	"github.com/angelmondragon/tabkeeper-backend/pkg/config"
	"github.com/angelmondragon/tabkeeper-backend/pkg/db"
	"github.com/angelmondragon/tabkeeper-backend/pkg/logger"
	"github.com/angelmondragon/tabkeeper-backend/pkg/redis"
)

// Services groups the domain services mounted under /api/v1.
type Services struct {
	Ledger   ledger.Service
	Batches  batches.Service
	Planner  controllers.Planner
	Balances balances.Service
	Payments payments.Service
}

// NewRouter wires middleware and routes. idem and redisP may be nil when redis is
// disabled; writes then run without response replay.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	idem redis.IdempotencyStore,
	gatherer prometheus.Gatherer,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Terminal,
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	idempotent := middleware.Idempotency(idem, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/purchases", func(r chi.Router) {
			r.With(idempotent).Post("/", controllers.LogPurchase(svc.Ledger, logg))
			r.Get("/", controllers.ListPurchaseUnits(svc.Ledger, logg))
		})
		r.With(idempotent).Post("/undo", controllers.UndoLastAction(svc.Ledger, logg))
		r.Get("/undo", controllers.CanUndo(svc.Ledger, logg))

		r.Route("/batches", func(r chi.Router) {
			r.Post("/", controllers.AddBatch(svc.Batches, logg))
			r.Get("/", controllers.ListBatches(svc.Batches, logg))
			r.Delete("/{batchId}", controllers.DeleteBatch(svc.Batches, logg))
		})
		r.Get("/products/{productId}/plan", controllers.PreviewPlan(svc.Planner, logg))

		r.Get("/balances", controllers.ListBalances(svc.Balances, logg))
		r.Get("/balances/{userId}", controllers.GetBalance(svc.Balances, logg))
		r.Get("/timeline", controllers.Timeline(svc.Balances, logg))
		r.With(idempotent).Post("/settle", controllers.Settle(svc.Balances, logg))

		r.Route("/payments", func(r chi.Router) {
			r.With(idempotent).Post("/", controllers.RecordPayment(svc.Payments, logg))
			r.Get("/", controllers.ListPayments(svc.Payments, logg))
			r.Delete("/{paymentId}", controllers.DeletePayment(svc.Payments, logg))
		})
	})

	return r
}
