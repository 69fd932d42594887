package service

import (
	"context"
	"time"

	"github.com/enersol/gd-portal-bfa-go/internal/domain"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/observability"
	"github.com/enersol/gd-portal-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var gdTracer = otel.Tracer("service/gd")

// GDService serves the distributed-generation views: the per-operator
// summary, per-unit insight pages and the generator plant tree. Summaries
// are cached per operator; the derivations themselves are pure functions
// over the platform's history rows.
type GDService struct {
	store   port.PlatformStore
	cache   port.Cache[*domain.GDSummary]
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewGDService(store port.PlatformStore, c port.Cache[*domain.GDSummary], metrics *observability.Metrics, logger *zap.Logger) *GDService {
	return &GDService{
		store:   store,
		cache:   c,
		metrics: metrics,
		logger:  logger,
	}
}

// GetSummary returns the operator's consolidated GD summary, cached for
// the configured TTL.
func (s *GDService) GetSummary(ctx context.Context, operatorID string) (*domain.GDSummary, error) {
	ctx, span := gdTracer.Start(ctx, "GD.GetSummary")
	defer span.End()

	if cached, ok := s.cache.Get(operatorID); ok {
		s.metrics.IncrCacheHit("gd_summary")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("gd_summary")

	summary, err := s.store.GetGDSummary(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		summary = &domain.GDSummary{}
	}

	s.cache.Set(operatorID, summary)
	return summary, nil
}

// UnitInsights is the full derived view for one unit's insight page.
type UnitInsights struct {
	Unit           domain.ConsumerUnit          `json:"unit"`
	Totals         domain.GDTotals              `json:"totais"`
	Chart          []domain.ChartPoint          `json:"grafico"`
	Counterparties []domain.CounterpartySummary `json:"beneficiarias"`
	Vintages       []domain.CreditVintage       `json:"composicaoSaldo"`
}

// GetUnitInsights fetches a unit's GD history and derives every insight
// block in one pass.
func (s *GDService) GetUnitInsights(ctx context.Context, operatorID, unitID string) (*UnitInsights, error) {
	ctx, span := gdTracer.Start(ctx, "GD.GetUnitInsights")
	defer span.End()
	span.SetAttributes(attribute.String("unit.id", unitID))

	summary, err := s.GetSummary(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	var unit domain.ConsumerUnit
	found := false
	for _, u := range summary.Units {
		if u.ID == unitID {
			unit = u
			found = true
			break
		}
	}
	if !found {
		return nil, &domain.ErrNotFound{Resource: "consumer unit", ID: unitID}
	}

	history, err := s.store.GetHistory(ctx, unitID)
	if err != nil {
		return nil, err
	}

	return &UnitInsights{
		Unit:           unit,
		Totals:         AggregateTotals(unit, history),
		Chart:          ChartWindow(history),
		Counterparties: GroupCounterparties(history),
		Vintages:       CreditVintages(history, time.Now()),
	}, nil
}

// GetPlant returns the generator plant view for a generator unit.
func (s *GDService) GetPlant(ctx context.Context, unitID string) (*domain.GeneratorPlant, error) {
	ctx, span := gdTracer.Start(ctx, "GD.GetPlant")
	defer span.End()

	plant, err := s.store.GetPlant(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if plant == nil {
		return nil, &domain.ErrNotFound{Resource: "generator plant", ID: unitID}
	}
	return plant, nil
}

// TriggerSync asks the platform backend to refresh GD data for every unit
// of the operator, then invalidates the cached summary so the next read
// reflects the new state.
func (s *GDService) TriggerSync(ctx context.Context, operatorID string) (*domain.SyncResult, error) {
	ctx, span := gdTracer.Start(ctx, "GD.TriggerSync")
	defer span.End()

	result, err := s.store.TriggerGDSync(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	s.cache.Delete(operatorID)
	s.logger.Info("gd sync triggered",
		zap.String("operator_id", operatorID),
		zap.Bool("success", result != nil && result.Success),
	)
	return result, nil
}
