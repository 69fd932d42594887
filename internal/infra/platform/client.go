// Package platform provides the client for the GD platform backend, which
// owns all persisted entities (companies, units, invoices, GD history).
// Requests carry a bearer token; a 401 triggers one coalesced token refresh
// and a single replay.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/enersol/gd-portal-bfa-go/internal/domain"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("platform")

// Client wraps HTTP calls to the platform backend REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     *tokenSource
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewClient creates a platform backend client.
func NewClient(httpClient *http.Client, baseURL, clientID, clientSecret string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		tokens:     newTokenSource(httpClient, baseURL, clientID, clientSecret, logger),
		cb:         cb,
		cfg:        cfg,
		logger:     logger,
	}
}

// doRequest executes an authenticated request. On a 401 it refreshes the
// token (coalesced across concurrent callers) and replays exactly once.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	body, status, err := c.send(ctx, method, path, data, c.tokens.Current())
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		token, refreshErr := c.tokens.Refresh(ctx)
		if refreshErr != nil {
			c.logger.Warn("platform: token refresh failed",
				zap.String("path", path),
				zap.Error(refreshErr),
			)
			return nil, &domain.ErrUnauthorized{Message: "Sessão expirada"}
		}
		body, status, err = c.send(ctx, method, path, data, token)
		if err != nil {
			return nil, err
		}
	}

	if status == http.StatusNotFound || status == http.StatusNoContent {
		return nil, nil // no data
	}
	if status < 200 || status >= 300 {
		c.logger.Warn("platform: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.String("body", string(body)),
		)
		return nil, fmt.Errorf("platform returned status %d: %s", status, string(body))
	}

	c.logger.Debug("platform: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
	)

	return body, nil
}

// send performs one HTTP exchange with the given token.
func (c *Client) send(ctx context.Context, method, path string, data []byte, token string) ([]byte, int, error) {
	url := fmt.Sprintf("%s%s", c.baseURL, path)

	var reader io.Reader
	if data != nil {
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("platform: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, 0, &domain.ErrExternalService{Service: "platform", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &domain.ErrExternalService{Service: "platform", Err: err}
	}
	return body, resp.StatusCode, nil
}

// --- Linking (implements part of port.PlatformStore) ---

type linkUnitResponse struct {
	ID string `json:"id"`
}

// LinkUnit registers a provider unit on the platform and returns the local
// unit identifier. Not retried: creation is not idempotent.
func (c *Client) LinkUnit(ctx context.Context, cpf string, unit domain.CandidateUnit) (string, error) {
	ctx, span := tracer.Start(ctx, "Platform.LinkUnit")
	defer span.End()

	cdc, verifier, provider := unit.Normalized()
	span.SetAttributes(attribute.Int("uc.cdc", cdc))

	body, err := c.doRequest(ctx, http.MethodPost, "/ucs/vincular", map[string]any{
		"cpf":                  cpf,
		"cdc":                  cdc,
		"digitoVerificador":    verifier,
		"codigoConcessionaria": provider,
		"titular":              unit.HolderName,
		"logradouro":           unit.Street,
		"bairro":               unit.Neighborhood,
		"municipio":            unit.Municipality,
		"geradora":             unit.IsGenerator(),
	})
	if err != nil {
		return "", &domain.ErrExternalService{Service: "platform/link", Err: err}
	}

	var out linkUnitResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode link response: %w", err)
	}
	if out.ID == "" {
		return "", &domain.ErrExternalService{Service: "platform/link", Err: fmt.Errorf("empty local id")}
	}
	return out.ID, nil
}

// SyncInvoices triggers invoice synchronization for a just-linked unit,
// using the normalized unit identity.
func (c *Client) SyncInvoices(ctx context.Context, localID string, cdc, verifierDigit int) error {
	ctx, span := tracer.Start(ctx, "Platform.SyncInvoices")
	defer span.End()
	span.SetAttributes(attribute.String("uc.id", localID))

	_, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/ucs/%s/sincronizar-faturas", localID), map[string]int{
		"cdc":               cdc,
		"digitoVerificador": verifierDigit,
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "platform/sync", Err: err}
	}
	return nil
}

// --- GD ---

// GetGDSummary fetches the consolidated GD summary for the operator.
func (c *Client) GetGDSummary(ctx context.Context, operatorID string) (*domain.GDSummary, error) {
	ctx, span := tracer.Start(ctx, "Platform.GetGDSummary")
	defer span.End()
	span.SetAttributes(attribute.String("operator.id", operatorID))

	var summary *domain.GDSummary

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/ucs/gd/resumo?operador=%s", operatorID), nil)
			if err != nil {
				return err
			}
			if body == nil {
				return &domain.ErrNotFound{Resource: "gd summary", ID: operatorID}
			}

			var s domain.GDSummary
			if err := json.Unmarshal(body, &s); err != nil {
				return fmt.Errorf("failed to decode gd summary: %w", err)
			}
			summary = &s
			return nil
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "platform/gd-resumo", Err: err}
	}
	return summary, nil
}

// TriggerGDSync asks the backend to refresh the operator's GD data.
func (c *Client) TriggerGDSync(ctx context.Context, operatorID string) (*domain.SyncResult, error) {
	ctx, span := tracer.Start(ctx, "Platform.TriggerGDSync")
	defer span.End()

	body, err := c.doRequest(ctx, http.MethodPost, "/sync/gd/minhas-ucs", map[string]string{"operador": operatorID})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "platform/gd-sync", Err: err}
	}

	var out domain.SyncResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode sync result: %w", err)
	}
	return &out, nil
}

// GetHistory fetches a unit's monthly GD records, newest first.
func (c *Client) GetHistory(ctx context.Context, unitID string) ([]domain.MonthlyGDRecord, error) {
	ctx, span := tracer.Start(ctx, "Platform.GetHistory")
	defer span.End()
	span.SetAttributes(attribute.String("uc.id", unitID))

	var history []domain.MonthlyGDRecord

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/ucs/%s/gd/historico", unitID), nil)
			if err != nil {
				return err
			}
			if body == nil {
				history = []domain.MonthlyGDRecord{}
				return nil
			}
			if err := json.Unmarshal(body, &history); err != nil {
				return fmt.Errorf("failed to decode gd history: %w", err)
			}
			return nil
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "platform/gd-historico", Err: err}
	}
	return history, nil
}

// GetPlant fetches a generator unit with its beneficiary tree.
func (c *Client) GetPlant(ctx context.Context, unitID string) (*domain.GeneratorPlant, error) {
	ctx, span := tracer.Start(ctx, "Platform.GetPlant")
	defer span.End()

	var plant *domain.GeneratorPlant

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/ucs/%s/usina", unitID), nil)
			if err != nil {
				return err
			}
			if body == nil {
				return &domain.ErrNotFound{Resource: "usina", ID: unitID}
			}

			var p domain.GeneratorPlant
			if err := json.Unmarshal(body, &p); err != nil {
				return fmt.Errorf("failed to decode usina: %w", err)
			}
			plant = &p
			return nil
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "platform/usina", Err: err}
	}
	return plant, nil
}

// --- Collections ---

// ListCompanies fetches the operator's companies.
func (c *Client) ListCompanies(ctx context.Context, operatorID string) ([]domain.Company, error) {
	ctx, span := tracer.Start(ctx, "Platform.ListCompanies")
	defer span.End()

	var companies []domain.Company
	if err := c.getJSON(ctx, fmt.Sprintf("/empresas?operador=%s", operatorID), "platform/empresas", &companies); err != nil {
		return nil, err
	}
	if companies == nil {
		companies = []domain.Company{}
	}
	return companies, nil
}

// ListUnits fetches the operator's consumer units.
func (c *Client) ListUnits(ctx context.Context, operatorID string) ([]domain.ConsumerUnit, error) {
	ctx, span := tracer.Start(ctx, "Platform.ListUnits")
	defer span.End()

	var units []domain.ConsumerUnit
	if err := c.getJSON(ctx, fmt.Sprintf("/ucs?operador=%s", operatorID), "platform/ucs", &units); err != nil {
		return nil, err
	}
	if units == nil {
		units = []domain.ConsumerUnit{}
	}
	return units, nil
}

// ListInvoices fetches all invoices across the operator's units.
func (c *Client) ListInvoices(ctx context.Context, operatorID string) ([]domain.Invoice, error) {
	ctx, span := tracer.Start(ctx, "Platform.ListInvoices")
	defer span.End()

	var invoices []domain.Invoice
	if err := c.getJSON(ctx, fmt.Sprintf("/faturas?operador=%s", operatorID), "platform/faturas", &invoices); err != nil {
		return nil, err
	}
	if invoices == nil {
		invoices = []domain.Invoice{}
	}
	return invoices, nil
}

// DownloadInvoice fetches one invoice document (PDF bytes).
func (c *Client) DownloadInvoice(ctx context.Context, invoiceID string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Platform.DownloadInvoice")
	defer span.End()
	span.SetAttributes(attribute.String("invoice.id", invoiceID))

	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/faturas/%s/pdf", invoiceID), nil)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "platform/fatura-pdf", Err: err}
	}
	if body == nil {
		return nil, &domain.ErrNotFound{Resource: "fatura", ID: invoiceID}
	}
	return body, nil
}

// getJSON runs an idempotent GET through retry + breaker and decodes into out.
func (c *Client) getJSON(ctx context.Context, path, service string, out any) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.doRequest(ctx, http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			if body == nil {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", service, err)
			}
			return nil
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: service, Err: err}
	}
	return nil
}
