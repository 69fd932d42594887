package service

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/enersol/gd-portal-bfa-go/internal/domain"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/resilience"
	"github.com/enersol/gd-portal-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var invoiceTracer = otel.Tracer("service/invoices")

// InvoiceService lists invoices and serves single and batch PDF downloads.
// Batch downloads are strictly serialized with a fixed delay between
// documents, because the upstream throttles bursty PDF fetches.
type InvoiceService struct {
	store      port.PlatformStore
	batchDelay time.Duration
	logger     *zap.Logger
}

func NewInvoiceService(store port.PlatformStore, batchDelay time.Duration, logger *zap.Logger) *InvoiceService {
	return &InvoiceService{
		store:      store,
		batchDelay: batchDelay,
		logger:     logger,
	}
}

// List returns the operator's invoices across all linked units. Invoices of
// inactive or contract-less units are dropped: documents cannot be fetched
// for them anyway.
func (s *InvoiceService) List(ctx context.Context, operatorID string) ([]domain.Invoice, error) {
	ctx, span := invoiceTracer.Start(ctx, "Invoices.List")
	defer span.End()

	units, err := s.store.ListUnits(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	invoices, err := s.store.ListInvoices(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	byID := unitsByID(units)
	out := make([]domain.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if u, ok := byID[inv.UnitID]; ok && u.EligibleForInvoices() {
			out = append(out, inv)
		}
	}
	return out, nil
}

func unitsByID(units []domain.ConsumerUnit) map[string]domain.ConsumerUnit {
	m := make(map[string]domain.ConsumerUnit, len(units))
	for _, u := range units {
		m[u.ID] = u
	}
	return m
}

// CheckUnitEligible returns a validation error when invoices cannot be
// fetched for the unit.
func CheckUnitEligible(unit *domain.ConsumerUnit) error {
	if !unit.EligibleForInvoices() {
		return &domain.ErrValidation{
			Field:   "unit",
			Message: "Unidade inativa ou sem contrato vigente, faturas indisponíveis",
		}
	}
	return nil
}

// Download fetches one invoice PDF.
func (s *InvoiceService) Download(ctx context.Context, invoiceID string) ([]byte, error) {
	ctx, span := invoiceTracer.Start(ctx, "Invoices.Download")
	defer span.End()
	span.SetAttributes(attribute.String("invoice.id", invoiceID))

	pdf, err := s.store.DownloadInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if len(pdf) == 0 {
		return nil, &domain.ErrNotFound{Resource: "invoice document", ID: invoiceID}
	}
	return pdf, nil
}

// BatchItem is the per-invoice outcome of a batch download.
type BatchItem struct {
	InvoiceID string `json:"invoiceId"`
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// DownloadBatch fetches the given invoices one at a time, pacing the
// requests, and packs the PDFs into a single zip archive. A failed
// document is recorded and skipped; the archive carries whatever
// succeeded. Invoices of units no longer eligible for retrieval are
// rejected up front without hitting the upstream. Context cancellation
// stops the loop and returns the error.
func (s *InvoiceService) DownloadBatch(ctx context.Context, operatorID string, invoices []domain.Invoice) ([]byte, []BatchItem, error) {
	ctx, span := invoiceTracer.Start(ctx, "Invoices.DownloadBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("invoices.count", len(invoices)))

	if len(invoices) == 0 {
		return nil, nil, &domain.ErrValidation{Field: "invoices", Message: "Selecione ao menos uma fatura"}
	}

	units, err := s.store.ListUnits(ctx, operatorID)
	if err != nil {
		return nil, nil, err
	}
	byID := unitsByID(units)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	items := make([]BatchItem, 0, len(invoices))

	// One pacer per batch: each request's batch keeps its own delay cadence.
	pacer := resilience.NewPacer(s.batchDelay)

	for _, inv := range invoices {
		name := fmt.Sprintf("fatura-%s-%02d-%04d.pdf", inv.UnitID, inv.Month, inv.Year)
		item := BatchItem{InvoiceID: inv.ID, Name: name}

		unit, ok := byID[inv.UnitID]
		if !ok {
			err := &domain.ErrNotFound{Resource: "consumer unit", ID: inv.UnitID}
			item.Error = err.Error()
			items = append(items, item)
			continue
		}
		if err := CheckUnitEligible(&unit); err != nil {
			item.Error = err.Error()
			items = append(items, item)
			continue
		}

		if err := pacer.Wait(ctx); err != nil {
			zw.Close()
			return nil, items, err
		}

		pdf, err := s.store.DownloadInvoice(ctx, inv.ID)
		if err != nil || len(pdf) == 0 {
			if err == nil {
				err = &domain.ErrNotFound{Resource: "invoice document", ID: inv.ID}
			}
			s.logger.Warn("batch download: document failed, continuing",
				zap.String("invoice_id", inv.ID),
				zap.Error(err),
			)
			item.Error = err.Error()
			items = append(items, item)
			continue
		}

		w, err := zw.Create(name)
		if err != nil {
			zw.Close()
			return nil, items, err
		}
		if _, err := w.Write(pdf); err != nil {
			zw.Close()
			return nil, items, err
		}
		item.OK = true
		items = append(items, item)
	}

	if err := zw.Close(); err != nil {
		return nil, items, err
	}
	return buf.Bytes(), items, nil
}
