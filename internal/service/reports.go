package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/enersol/gd-portal-bfa-go/internal/domain"
	"github.com/enersol/gd-portal-bfa-go/internal/port"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var reportTracer = otel.Tracer("service/reports")

// ReportService builds the back-office invoice report: per-unit totals
// plus an XLSX export. Monetary sums use decimal arithmetic; float
// accumulation drifts over the volumes a report covers.
type ReportService struct {
	store  port.PlatformStore
	logger *zap.Logger
}

func NewReportService(store port.PlatformStore, logger *zap.Logger) *ReportService {
	return &ReportService{store: store, logger: logger}
}

// InvoiceReportRow is one unit's aggregated invoice position.
type InvoiceReportRow struct {
	UnitID        string          `json:"unitId"`
	Invoices      int             `json:"invoices"`
	Paid          int             `json:"paid"`
	Pending       int             `json:"pending"`
	AmountPaid    decimal.Decimal `json:"amountPaid"`
	AmountPending decimal.Decimal `json:"amountPending"`
}

// InvoiceReport is the per-operator invoice report.
type InvoiceReport struct {
	OperatorID    string             `json:"operatorId"`
	Rows          []InvoiceReportRow `json:"rows"`
	TotalPaid     decimal.Decimal    `json:"totalPaid"`
	TotalPending  decimal.Decimal    `json:"totalPending"`
	TotalInvoices int                `json:"totalInvoices"`
}

// BuildInvoiceReport aggregates the operator's invoices per unit. Rows
// keep the order units first appear in the invoice list.
func (s *ReportService) BuildInvoiceReport(ctx context.Context, operatorID string) (*InvoiceReport, error) {
	ctx, span := reportTracer.Start(ctx, "Reports.BuildInvoiceReport")
	defer span.End()

	invoices, err := s.store.ListInvoices(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	report := &InvoiceReport{
		OperatorID:   operatorID,
		TotalPaid:    decimal.Zero,
		TotalPending: decimal.Zero,
	}

	index := make(map[string]int)
	for _, inv := range invoices {
		i, ok := index[inv.UnitID]
		if !ok {
			i = len(report.Rows)
			index[inv.UnitID] = i
			report.Rows = append(report.Rows, InvoiceReportRow{
				UnitID:        inv.UnitID,
				AmountPaid:    decimal.Zero,
				AmountPending: decimal.Zero,
			})
		}
		row := &report.Rows[i]
		row.Invoices++
		report.TotalInvoices++

		amount := decimal.NewFromFloat(inv.Amount)
		switch inv.Status() {
		case domain.StatusPaid:
			row.Paid++
			row.AmountPaid = row.AmountPaid.Add(amount)
			report.TotalPaid = report.TotalPaid.Add(amount)
		case domain.StatusPending:
			row.Pending++
			row.AmountPending = row.AmountPending.Add(amount)
			report.TotalPending = report.TotalPending.Add(amount)
		}
	}

	return report, nil
}

// ExportXLSX renders the report as an XLSX workbook.
func (s *ReportService) ExportXLSX(report *InvoiceReport) ([]byte, error) {
	xlsx := excelize.NewFile()
	defer func() {
		if err := xlsx.Close(); err != nil {
			s.logger.Warn("closing xlsx workbook", zap.Error(err))
		}
	}()

	const sheet = "Faturas"
	if err := xlsx.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headerStyle, _ := xlsx.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#1A659E"}, Pattern: 1},
		Font:      &excelize.Font{Color: "FFFFFF", Bold: true, Size: 11},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	headers := []string{"Unidade", "Faturas", "Pagas", "Pendentes", "Valor Pago (R$)", "Valor Pendente (R$)"}
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := xlsx.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}
	endHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = xlsx.SetCellStyle(sheet, "A1", endHeader, headerStyle)

	for i, row := range report.Rows {
		r := i + 2
		values := []any{
			row.UnitID,
			row.Invoices,
			row.Paid,
			row.Pending,
			row.AmountPaid.InexactFloat64(),
			row.AmountPending.InexactFloat64(),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, r)
			if err := xlsx.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	totalRow := len(report.Rows) + 2
	_ = xlsx.SetCellValue(sheet, fmt.Sprintf("A%d", totalRow), "TOTAL")
	_ = xlsx.SetCellValue(sheet, fmt.Sprintf("B%d", totalRow), report.TotalInvoices)
	_ = xlsx.SetCellValue(sheet, fmt.Sprintf("E%d", totalRow), report.TotalPaid.InexactFloat64())
	_ = xlsx.SetCellValue(sheet, fmt.Sprintf("F%d", totalRow), report.TotalPending.InexactFloat64())

	_ = xlsx.SetColWidth(sheet, "A", "A", 28)
	_ = xlsx.SetColWidth(sheet, "E", "F", 18)

	var buf bytes.Buffer
	if err := xlsx.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
