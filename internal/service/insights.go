// Package service holds the application services: the GD insight
// derivations, the account-linking workflow, dashboard rollups, invoice
// batching and admin reports.
package service

import (
	"math"
	"sort"
	"time"

	"github.com/enersol/gd-portal-bfa-go/internal/domain"
)

// The derivation functions below are pure: deterministic given their inputs
// and the supplied reference time. History slices arrive newest-first from
// the platform backend; every function tolerates empty input.

// creditLifetimeMonths is how long a GD credit vintage lives before
// expiring, counted from its reference month.
const creditLifetimeMonths = 60

// expiringSoonThreshold marks vintages within this many months of expiry.
const expiringSoonThreshold = 6

// AggregateTotals sums a unit's full GD history and derives the efficiency
// percentage. Efficiency is (transferred + compensated-self) / injected,
// and exactly 0 when nothing was injected. The current balance comes from
// the most recent month's previous-balance field, falling back to the
// unit's stored accumulated balance when there is no history.
func AggregateTotals(unit domain.ConsumerUnit, history []domain.MonthlyGDRecord) domain.GDTotals {
	var t domain.GDTotals

	for _, rec := range history {
		t.Injected += rec.Injected
		t.Transferred += rec.CompensatedTrans
		t.CompensatedSelf += rec.CompensatedSelf
	}

	if t.Injected > 0 {
		t.EfficiencyPercent = (t.Transferred + t.CompensatedSelf) / t.Injected * 100
	}

	if len(history) > 0 {
		t.CurrentBalance = history[0].PreviousBalance
	} else {
		t.CurrentBalance = unit.BalanceKWH
	}

	return t
}

// ChartWindow takes the most recent 12 months of history and reverses them
// to oldest-first for chronological plotting. Bar heights are normalized
// against the maximum observed across both the injected and transferred
// series — a shared scale, not per-series.
func ChartWindow(history []domain.MonthlyGDRecord) []domain.ChartPoint {
	window := history
	if len(window) > 12 {
		window = window[:12]
	}

	max := 0.0
	for _, rec := range window {
		if rec.Injected > max {
			max = rec.Injected
		}
		if rec.CompensatedTrans > max {
			max = rec.CompensatedTrans
		}
	}

	points := make([]domain.ChartPoint, 0, len(window))
	for i := len(window) - 1; i >= 0; i-- {
		rec := window[i]
		p := domain.ChartPoint{
			Month:       rec.Month,
			Year:        rec.Year,
			Injected:    rec.Injected,
			Transferred: rec.CompensatedTrans,
		}
		if max > 0 {
			p.InjectedNormal = rec.Injected / max
			p.TransferredNormal = rec.CompensatedTrans / max
		}
		points = append(points, p)
	}
	return points
}

// GroupCounterparties folds every per-month transfer breakdown across the
// full history into one summary per counterparty unit, accumulating the
// absolute transferred amount and retaining one representative address plus
// the ordered month contributions. Output is sorted descending by total;
// the totals are independent of input month ordering.
func GroupCounterparties(history []domain.MonthlyGDRecord) []domain.CounterpartySummary {
	byID := make(map[string]*domain.CounterpartySummary)
	order := make([]string, 0)

	for _, rec := range history {
		for _, b := range rec.Discriminacao {
			s, ok := byID[b.CounterpartyID]
			if !ok {
				s = &domain.CounterpartySummary{
					CounterpartyID: b.CounterpartyID,
					Street:         b.Street,
					Neighborhood:   b.Neighborhood,
					Municipality:   b.Municipality,
				}
				byID[b.CounterpartyID] = s
				order = append(order, b.CounterpartyID)
			}
			s.Total += math.Abs(b.Amount)
			s.Contributions = append(s.Contributions, b)
		}
	}

	out := make([]domain.CounterpartySummary, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].CounterpartyID < out[j].CounterpartyID
	})
	return out
}

// CreditVintages derives the expiry countdown for the most recent month's
// balance composition. Only entries with a strictly positive balance are
// kept. Credits expire creditLifetimeMonths after their reference month;
// a vintage with monthsRemaining <= 0 is expired, <= 6 is expiring soon.
// Output is sorted ascending by monthsRemaining (soonest-expiring first).
func CreditVintages(history []domain.MonthlyGDRecord, now time.Time) []domain.CreditVintage {
	if len(history) == 0 {
		return []domain.CreditVintage{}
	}

	curYear, curMonth := now.Year(), int(now.Month())

	out := make([]domain.CreditVintage, 0, len(history[0].Composicao))
	for _, comp := range history[0].Composicao {
		if comp.PreviousBalance <= 0 {
			continue
		}

		monthsElapsed := (curYear-comp.Year)*12 + (curMonth - comp.Month)
		remaining := creditLifetimeMonths - monthsElapsed

		v := domain.CreditVintage{
			Month:           comp.Month,
			Year:            comp.Year,
			BalanceKWH:      comp.PreviousBalance,
			MonthsRemaining: remaining,
			Classification:  domain.VintageHealthy,
		}
		switch {
		case remaining <= 0:
			v.Classification = domain.VintageExpired
		case remaining <= expiringSoonThreshold:
			v.Classification = domain.VintageExpiringSoon
		}
		out = append(out, v)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MonthsRemaining < out[j].MonthsRemaining
	})
	return out
}

// Rollup computes the landing-screen summary from the operator's fetched
// collections. All predicates are total over possibly-empty slices; empty
// input yields zero aggregates.
func Rollup(companies []domain.Company, units []domain.ConsumerUnit, invoices []domain.Invoice) domain.DashboardSummary {
	var s domain.DashboardSummary

	s.Companies = len(companies)
	for _, c := range companies {
		if c.ConnectionStatus == "connected" {
			s.CompaniesConnected++
		}
	}

	s.Units = len(units)
	for _, u := range units {
		if u.Generator {
			s.Generators++
		}
		s.TotalBalanceKWH += u.BalanceKWH
	}

	s.Invoices = len(invoices)
	for _, inv := range invoices {
		switch inv.Status() {
		case domain.StatusPaid:
			s.InvoicesPaid++
			s.AmountPaid += inv.Amount
		case domain.StatusPending:
			s.InvoicesPending++
			s.AmountPending += inv.Amount
		}
	}

	return s
}
