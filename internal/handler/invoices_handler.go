package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/enersol/gd-portal-bfa-go/internal/domain"
	"github.com/enersol/gd-portal-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Faturas
// ============================================================

func listInvoicesHandler(invSvc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/invoices")
		defer span.End()

		invoices, err := invSvc.List(ctx, OperatorIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if invoices == nil {
			invoices = []domain.Invoice{}
		}
		writeJSON(w, http.StatusOK, invoices)
	}
}

func downloadInvoiceHandler(invSvc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/invoices/{invoiceId}/pdf")
		defer span.End()

		invoiceID := chi.URLParam(r, "invoiceId")
		span.SetAttributes(attribute.String("invoice.id", invoiceID))

		pdf, err := invSvc.Download(ctx, invoiceID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=fatura-%s.pdf", invoiceID))
		w.WriteHeader(http.StatusOK)
		w.Write(pdf)
	}
}

func batchDownloadHandler(invSvc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/invoices/batch")
		defer span.End()

		var body struct {
			Invoices []domain.Invoice `json:"invoices"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		span.SetAttributes(attribute.Int("invoices.count", len(body.Invoices)))

		archive, items, err := invSvc.DownloadBatch(ctx, OperatorIDFromContext(ctx), body.Invoices)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		for _, item := range items {
			if !item.OK {
				logger.Warn("batch item failed",
					zap.String("invoice_id", item.InvoiceID),
					zap.String("error", item.Error),
				)
			}
		}

		name := fmt.Sprintf("faturas-%s.zip", time.Now().Format("2006-01-02"))
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
		w.WriteHeader(http.StatusOK)
		w.Write(archive)
	}
}
