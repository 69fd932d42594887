// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/enersol/gd-portal-bfa-go/internal/domain"
)

// UtilityProvider is the utility company's SMS-verified login and account
// enumeration API (Energisa). All calls within one linking step are awaited
// sequentially before the next step begins.
type UtilityProvider interface {
	// StartLogin begins the SMS flow for a tax ID and returns the
	// provider transaction ID plus candidate phone numbers.
	StartLogin(ctx context.Context, cpf string) (string, []domain.CandidatePhone, error)
	// SelectOption picks the phone that receives the SMS code.
	SelectOption(ctx context.Context, transactionID, phone string) error
	// FinishLogin submits the SMS code and completes provider auth.
	FinishLogin(ctx context.Context, transactionID, code string) error
	// ListUnits enumerates the account's consumer units.
	ListUnits(ctx context.Context, cpf string) ([]domain.CandidateUnit, error)
}

// PlatformStore is the platform backend that owns all persisted entities.
// Implemented by the platform REST client.
type PlatformStore interface {
	// Linking
	LinkUnit(ctx context.Context, cpf string, unit domain.CandidateUnit) (string, error)
	SyncInvoices(ctx context.Context, localID string, cdc, verifierDigit int) error

	// GD
	GetGDSummary(ctx context.Context, operatorID string) (*domain.GDSummary, error)
	TriggerGDSync(ctx context.Context, operatorID string) (*domain.SyncResult, error)
	GetHistory(ctx context.Context, unitID string) ([]domain.MonthlyGDRecord, error)
	GetPlant(ctx context.Context, unitID string) (*domain.GeneratorPlant, error)

	// Collections consumed by the dashboard rollups
	ListCompanies(ctx context.Context, operatorID string) ([]domain.Company, error)
	ListUnits(ctx context.Context, operatorID string) ([]domain.ConsumerUnit, error)
	ListInvoices(ctx context.Context, operatorID string) ([]domain.Invoice, error)

	// Invoice documents (batch download)
	DownloadInvoice(ctx context.Context, invoiceID string) ([]byte, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	// Touch extends an entry's TTL without replacing its value.
	Touch(key string)
	Delete(key string)
}
