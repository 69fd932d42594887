package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/enersol/gd-portal-bfa-go/internal/domain"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/observability"
	"github.com/enersol/gd-portal-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services bundles everything the router needs.
type Services struct {
	Linking   *service.LinkingService
	GD        *service.GDService
	Dashboard *service.DashboardService
	Invoices  *service.InvoiceService
	Reports   *service.ReportService
	Auth      *service.AuthService
}

// NewRouter creates the HTTP router with all routes and middleware.
// Routes follow the API contract defined for the GD portal frontend.
func NewRouter(svcs Services, metrics *observability.Metrics, adminKeyHash string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svcs.Dashboard, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// Autenticação
		// POST /v1/auth/token (back-office issued)
		// =============================================
		r.With(AdminKeyMiddleware(adminKeyHash, logger)).
			Post("/auth/token", issueTokenHandler(svcs.Auth, logger))

		// Everything below requires an operator token.
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svcs.Auth, logger))

			// =============================================
			// Vinculação de UC (wizard)
			// =============================================
			r.Route("/link/sessions", func(r chi.Router) {
				r.Post("/", createLinkSessionHandler(svcs.Linking, logger))
				r.Route("/{sessionId}", func(r chi.Router) {
					r.Get("/", getLinkSessionHandler(svcs.Linking, logger))
					r.Delete("/", deleteLinkSessionHandler(svcs.Linking, logger))
					r.Post("/cpf", submitCPFHandler(svcs.Linking, logger))
					r.Post("/phone", selectPhoneHandler(svcs.Linking, logger))
					r.Post("/phone/confirm", confirmPhoneHandler(svcs.Linking, logger))
					r.Post("/sms", submitSMSHandler(svcs.Linking, logger))
					r.Post("/units/toggle", toggleUnitHandler(svcs.Linking, logger))
					r.Post("/units/toggle-all", toggleAllUnitsHandler(svcs.Linking, logger))
					r.Post("/link", linkUnitsHandler(svcs.Linking, svcs.Dashboard, logger))
					r.Post("/back", linkSessionBackHandler(svcs.Linking, logger))
					r.Post("/restart", linkSessionRestartHandler(svcs.Linking, logger))
				})
			})

			// =============================================
			// Geração Distribuída
			// =============================================
			r.Get("/gd/summary", gdSummaryHandler(svcs.GD, logger))
			r.Get("/gd/units/{unitId}/insights", gdUnitInsightsHandler(svcs.GD, logger))
			r.Get("/gd/units/{unitId}/plant", gdPlantHandler(svcs.GD, logger))
			r.Post("/gd/sync", gdSyncHandler(svcs.GD, logger))

			// =============================================
			// Dashboard
			// =============================================
			r.Get("/dashboard/summary", dashboardSummaryHandler(svcs.Dashboard, logger))

			// =============================================
			// Faturas
			// =============================================
			r.Get("/invoices", listInvoicesHandler(svcs.Invoices, logger))
			r.Get("/invoices/{invoiceId}/pdf", downloadInvoiceHandler(svcs.Invoices, logger))
			r.Post("/invoices/batch", batchDownloadHandler(svcs.Invoices, logger))
		})

		// =============================================
		// Back-office (admin key)
		// =============================================
		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminKeyMiddleware(adminKeyHash, logger))
			r.Get("/metrics/linking", adminLinkingMetricsHandler(metrics, logger))
			r.Get("/reports/invoices", adminInvoiceReportHandler(svcs.Reports, logger))
			r.Get("/reports/invoices/xlsx", adminInvoiceReportXLSXHandler(svcs.Reports, logger))
		})
	})

	return r
}

// ============================================================
// Dashboard
// ============================================================

func dashboardSummaryHandler(dashSvc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/dashboard/summary")
		defer span.End()

		summary, err := dashSvc.GetSummary(ctx, OperatorIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// ============================================================
// Autenticação
// ============================================================

func issueTokenHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			OperatorID string `json:"operator_id"`
			CPF        string `json:"cpf"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.OperatorID == "" {
			writeError(w, http.StatusBadRequest, "operator_id is required")
			return
		}

		token, err := authSvc.GenerateAccessToken(body.OperatorID, body.CPF)
		if err != nil {
			logger.Error("token generation failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"access_token": token,
			"token_type":   "Bearer",
		})
	}
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(dashSvc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "gd-portal-bfa", Status: "healthy", LatencyMs: 0, UptimePercent: 99.99, LastChecked: now},
		}

		if dashSvc != nil {
			start := time.Now()
			_, err := dashSvc.GetSummary(ctx, "health-check")
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: "platform", Status: status, LatencyMs: latency,
				UptimePercent: 99.9, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
