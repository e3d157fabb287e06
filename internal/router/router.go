package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"payment-service/internal/handler"
	"payment-service/internal/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Wallet        *handler.WalletHandler
	Transaction   *handler.TransactionHandler
	Escrow        *handler.EscrowHandler
	Withdrawal    *handler.WithdrawalHandler
	PaymentMethod *handler.PaymentMethodHandler
	Payment       *handler.PaymentHandler
	Webhook       *handler.WebhookHandler
}

func SetupRoutes(h Handlers, auth *middleware.AuthMiddleware, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/api/v1/payments/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Webhooks authenticate by signature, not bearer token.
		r.Post("/webhooks/stripe", h.Webhook.HandleStripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)

			r.Route("/wallets", func(r chi.Router) {
				r.Get("/me", h.Wallet.GetMyWallet)
				r.With(middleware.RequireAdmin).Get("/platform", h.Wallet.GetPlatformWallet)
				r.With(middleware.RequireAdmin).Get("/{id}", h.Wallet.GetWallet)
				r.With(middleware.RequireAdmin).Patch("/{id}/status", h.Wallet.UpdateWalletStatus)
			})

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", h.Transaction.List)
				r.Get("/{id}", h.Transaction.Get)
			})

			r.Route("/escrows", func(r chi.Router) {
				r.Post("/", h.Escrow.Create)
				r.Get("/{id}", h.Escrow.Get)
				r.Get("/project/{projectID}", h.Escrow.ListByProject)
				r.Post("/{id}/fund", h.Escrow.Fund)
				r.Post("/{id}/milestones/{milestoneID}/release", h.Escrow.ReleaseMilestone)
				r.With(middleware.RequireAdmin).Post("/{id}/refund", h.Escrow.Refund)
				r.With(middleware.RequireAdmin).Post("/{id}/dispute", h.Escrow.Dispute)
			})

			r.Route("/withdrawals", func(r chi.Router) {
				r.Post("/", h.Withdrawal.Create)
				r.Get("/", h.Withdrawal.List)
				r.Get("/{id}", h.Withdrawal.Get)
				r.Post("/{id}/cancel", h.Withdrawal.Cancel)
				r.With(middleware.RequireAdmin).Post("/{id}/process", h.Withdrawal.Process)
			})

			r.Route("/payment-methods", func(r chi.Router) {
				r.Post("/", h.PaymentMethod.Add)
				r.Get("/", h.PaymentMethod.List)
				r.Post("/{id}/default", h.PaymentMethod.SetDefault)
				r.Delete("/{id}", h.PaymentMethod.Deactivate)
			})

			r.Post("/deposits", h.Payment.CreateDeposit)
		})
	})

	return r
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}
