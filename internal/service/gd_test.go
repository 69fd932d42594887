package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/enersol/gd-portal-bfa-go/internal/domain"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/cache"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/observability"

	"go.uber.org/zap"
)

type gdStore struct {
	mockPlatform
	summaryCalls int
	syncCalls    int
	historyFunc  func(ctx context.Context, unitID string) ([]domain.MonthlyGDRecord, error)
}

func (m *gdStore) GetGDSummary(ctx context.Context, operatorID string) (*domain.GDSummary, error) {
	m.summaryCalls++
	return &domain.GDSummary{
		Units: []domain.ConsumerUnit{
			{ID: "uc-1", BalanceKWH: 100},
		},
	}, nil
}

func (m *gdStore) TriggerGDSync(ctx context.Context, operatorID string) (*domain.SyncResult, error) {
	m.syncCalls++
	return &domain.SyncResult{Success: true, Message: "ok"}, nil
}

func (m *gdStore) GetHistory(ctx context.Context, unitID string) ([]domain.MonthlyGDRecord, error) {
	if m.historyFunc != nil {
		return m.historyFunc(ctx, unitID)
	}
	return []domain.MonthlyGDRecord{
		{UnitID: unitID, Year: 2026, Month: 7, PreviousBalance: 80, Injected: 100, CompensatedTrans: 40, CompensatedSelf: 20},
	}, nil
}

func newTestGD(store *gdStore) *GDService {
	return NewGDService(store, cache.New[*domain.GDSummary](time.Minute), observability.NewMetrics(), zap.NewNop())
}

func TestGDSummary_Cached(t *testing.T) {
	store := &gdStore{}
	svc := newTestGD(store)

	if _, err := svc.GetSummary(context.Background(), "op-1"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := svc.GetSummary(context.Background(), "op-1"); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if store.summaryCalls != 1 {
		t.Errorf("expected 1 upstream call, got %d", store.summaryCalls)
	}
}

func TestGDUnitInsights_DerivesAllBlocks(t *testing.T) {
	store := &gdStore{}
	svc := newTestGD(store)

	got, err := svc.GetUnitInsights(context.Background(), "op-1", "uc-1")
	if err != nil {
		t.Fatalf("GetUnitInsights: %v", err)
	}
	if got.Totals.EfficiencyPercent != 60 {
		t.Errorf("efficiency = %v, want 60", got.Totals.EfficiencyPercent)
	}
	if len(got.Chart) != 1 {
		t.Errorf("expected 1 chart point, got %d", len(got.Chart))
	}
	if got.Totals.CurrentBalance != 80 {
		t.Errorf("current balance = %v, want 80", got.Totals.CurrentBalance)
	}
}

func TestGDUnitInsights_UnknownUnit(t *testing.T) {
	store := &gdStore{}
	svc := newTestGD(store)

	_, err := svc.GetUnitInsights(context.Background(), "op-1", "uc-missing")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGDTriggerSync_InvalidatesCache(t *testing.T) {
	store := &gdStore{}
	svc := newTestGD(store)

	if _, err := svc.GetSummary(context.Background(), "op-1"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if _, err := svc.TriggerSync(context.Background(), "op-1"); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}
	if _, err := svc.GetSummary(context.Background(), "op-1"); err != nil {
		t.Fatalf("after sync: %v", err)
	}
	if store.summaryCalls != 2 {
		t.Errorf("sync must invalidate the cached summary, upstream calls = %d", store.summaryCalls)
	}
}
