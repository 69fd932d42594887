package handler

import (
	"net/http"

	"github.com/enersol/gd-portal-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Geração Distribuída (GD)
// ============================================================

func gdSummaryHandler(gdSvc *service.GDService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/gd/summary")
		defer span.End()

		summary, err := gdSvc.GetSummary(ctx, OperatorIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func gdUnitInsightsHandler(gdSvc *service.GDService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/gd/units/{unitId}/insights")
		defer span.End()

		unitID := chi.URLParam(r, "unitId")
		span.SetAttributes(attribute.String("unit.id", unitID))

		insights, err := gdSvc.GetUnitInsights(ctx, OperatorIDFromContext(ctx), unitID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, insights)
	}
}

func gdPlantHandler(gdSvc *service.GDService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/gd/units/{unitId}/plant")
		defer span.End()

		plant, err := gdSvc.GetPlant(ctx, chi.URLParam(r, "unitId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, plant)
	}
}

func gdSyncHandler(gdSvc *service.GDService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/gd/sync")
		defer span.End()

		result, err := gdSvc.TriggerSync(ctx, OperatorIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, result)
	}
}
