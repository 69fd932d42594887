package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/enersol/gd-portal-bfa-go/internal/infra/observability"
	"github.com/enersol/gd-portal-bfa-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Back-office (admin)
// ============================================================

func adminLinkingMetricsHandler(metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetLinkingSnapshot())
	}
}

func adminInvoiceReportHandler(reportSvc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/reports/invoices")
		defer span.End()

		operatorID := r.URL.Query().Get("operator_id")
		if operatorID == "" {
			writeError(w, http.StatusBadRequest, "operator_id is required")
			return
		}

		report, err := reportSvc.BuildInvoiceReport(ctx, operatorID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func adminInvoiceReportXLSXHandler(reportSvc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/reports/invoices/xlsx")
		defer span.End()

		operatorID := r.URL.Query().Get("operator_id")
		if operatorID == "" {
			writeError(w, http.StatusBadRequest, "operator_id is required")
			return
		}

		report, err := reportSvc.BuildInvoiceReport(ctx, operatorID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		workbook, err := reportSvc.ExportXLSX(report)
		if err != nil {
			logger.Error("xlsx export failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		name := fmt.Sprintf("relatorio-faturas-%s.xlsx", time.Now().Format("2006-01-02"))
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
		w.WriteHeader(http.StatusOK)
		w.Write(workbook)
	}
}
