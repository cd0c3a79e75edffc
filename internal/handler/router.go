package handler

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/eloscloud/caixinha-banking-go/internal/infra/observability"
	"github.com/eloscloud/caixinha-banking-go/internal/port"
	"github.com/eloscloud/caixinha-banking-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps bundles everything the router serves.
type Deps struct {
	Banking   *service.BankingService
	PixFlows  *service.PixSessionManager
	Checkout  *service.CardSessionManager
	Directory *service.DirectoryService
	Gateway   port.PaymentGateway
	Metrics   *observability.Metrics
	Logger    *zap.Logger
	JWTSecret string
}

// NewRouter creates the HTTP router with all routes and middleware.
// Reads are public; everything that moves money or changes account
// state requires a platform JWT.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(d.Logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*.eloscloud.com", "http://localhost:*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(d.Gateway))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))

	auth := JWTAuthMiddleware(d.JWTSecret, d.Logger)

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// Banking reads
		// =============================================
		r.Get("/caixinhas/{caixinhaId}/banking", getBankingInfoHandler(d.Banking, d.Logger))
		r.Get("/caixinhas/{caixinhaId}/banking/history", getBankingHistoryHandler(d.Banking, d.Logger))
		r.Get("/transactions/{transactionId}", getTransactionHandler(d.Banking, d.Logger))

		// =============================================
		// Banking mutations (protected)
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Post("/caixinhas/{caixinhaId}/banking/register", registerBankAccountHandler(d.Banking, d.Logger))
			r.Post("/caixinhas/{caixinhaId}/banking/validate", validateBankAccountHandler(d.Banking, d.Logger))
			r.Post("/banking/transfer", transferFundsHandler(d.Banking, d.Logger))
			r.Post("/caixinhas/{caixinhaId}/transactions/{transactionId}/cancel", cancelTransactionHandler(d.Banking, d.Logger))
		})

		// =============================================
		// PIX account validation sessions
		// =============================================
		r.With(auth).Post("/caixinhas/{caixinhaId}/banking/pix-validation", startPixValidationHandler(d.PixFlows, d.Logger))
		r.Get("/pix-validation/{sessionId}", getPixValidationHandler(d.PixFlows, d.Logger))
		r.With(auth).Post("/pix-validation/{sessionId}/retry", retryPixValidationHandler(d.PixFlows, d.Logger))
		r.Delete("/pix-validation/{sessionId}", closePixValidationHandler(d.PixFlows, d.Logger))

		// =============================================
		// Card checkout sessions
		// =============================================
		r.Route("/checkout/sessions", func(r chi.Router) {
			r.Use(auth)
			r.Post("/", createCheckoutHandler(d.Checkout, d.Logger))
			r.Get("/{sessionId}", getCheckoutHandler(d.Checkout, d.Logger))
			r.Put("/{sessionId}/card", setCheckoutCardHandler(d.Checkout, d.Logger))
			r.Post("/{sessionId}/confirm", confirmCheckoutHandler(d.Checkout, d.Logger))
			r.Post("/{sessionId}/reset", resetCheckoutHandler(d.Checkout, d.Logger))
			r.Delete("/{sessionId}", closeCheckoutHandler(d.Checkout, d.Logger))
		})

		// =============================================
		// Gateway passthroughs
		// =============================================
		r.Get("/gateway/session", gatewaySessionHandler(d.Gateway, d.Logger))
		r.Get("/gateway/payment-methods", gatewayPaymentMethodsHandler(d.Gateway, d.Logger))
		r.Get("/gateway/payment-methods/{methodId}/issuers", gatewayIssuersHandler(d.Gateway, d.Logger))
		r.Get("/gateway/identification-types", gatewayIdentificationTypesHandler(d.Gateway, d.Logger))
		r.Get("/gateway/installments", gatewayInstallmentsHandler(d.Gateway, d.Logger))
		r.Get("/gateway/payments/{paymentId}", gatewayPaymentStatusHandler(d.Gateway, d.Logger))

		// =============================================
		// Directory lookups
		// =============================================
		r.Get("/address/{cep}", addressHandler(d.Directory, d.Logger))
		r.Get("/banks", banksHandler(d.Directory, d.Logger))

		// =============================================
		// Metrics snapshot
		// =============================================
		r.Get("/metrics/payments", paymentMetricsHandler(d.Metrics, d.Logger))
	})

	return r
}

type serviceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LastChecked string `json:"last_checked"`
}

type healthResponse struct {
	Status   string          `json:"status"`
	Services []serviceHealth `json:"services"`
}

// healthzHandler reports the API and gateway health. The gateway check
// is passive: it reports the session state without forcing a new
// initialization round-trip on every probe.
func healthzHandler(gw port.PaymentGateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []serviceHealth{
			{Name: "banking-api", Status: "healthy", LastChecked: now},
		}

		gwStatus := "healthy"
		if gw != nil && !gw.Ready(r.Context()) {
			gwStatus = "degraded"
		}
		services = append(services, serviceHealth{Name: "payment-gateway", Status: gwStatus, LastChecked: now})

		overall := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overall = "degraded"
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: overall, Services: services})
	}
}

var ready atomic.Bool

// SetReady flips the readiness probe; main calls it once wiring is done.
func SetReady(v bool) { ready.Store(v) }

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
