package service

import (
	"context"

	"github.com/enersol/gd-portal-bfa-go/internal/domain"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/observability"
	"github.com/enersol/gd-portal-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var dashboardTracer = otel.Tracer("service/dashboard")

// DashboardService builds the landing-screen rollup. The three collections
// it needs are independent, so they are fetched concurrently and the first
// failure cancels the rest.
type DashboardService struct {
	store   port.PlatformStore
	cache   port.Cache[*domain.DashboardSummary]
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewDashboardService(store port.PlatformStore, c port.Cache[*domain.DashboardSummary], metrics *observability.Metrics, logger *zap.Logger) *DashboardService {
	return &DashboardService{
		store:   store,
		cache:   c,
		metrics: metrics,
		logger:  logger,
	}
}

// GetSummary returns the operator's dashboard rollup, cached per operator.
func (s *DashboardService) GetSummary(ctx context.Context, operatorID string) (*domain.DashboardSummary, error) {
	ctx, span := dashboardTracer.Start(ctx, "Dashboard.GetSummary")
	defer span.End()

	if cached, ok := s.cache.Get(operatorID); ok {
		s.metrics.IncrCacheHit("dashboard")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("dashboard")

	var (
		companies []domain.Company
		units     []domain.ConsumerUnit
		invoices  []domain.Invoice
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		companies, err = s.store.ListCompanies(gctx, operatorID)
		return err
	})
	g.Go(func() error {
		var err error
		units, err = s.store.ListUnits(gctx, operatorID)
		return err
	})
	g.Go(func() error {
		var err error
		invoices, err = s.store.ListInvoices(gctx, operatorID)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("dashboard rollup fetch failed",
			zap.String("operator_id", operatorID),
			zap.Error(err),
		)
		return nil, err
	}

	summary := Rollup(companies, units, invoices)
	s.cache.Set(operatorID, &summary)
	return &summary, nil
}

// Invalidate drops the operator's cached rollup, used after linking new
// units so the landing screen reflects them immediately.
func (s *DashboardService) Invalidate(operatorID string) {
	s.cache.Delete(operatorID)
}
