// Package energisa provides the client for the utility provider's
// SMS-verified login and account enumeration API.
package energisa

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

var tracer = otel.Tracer("energisa")

// Client wraps HTTP calls to the utility provider API.
//
// The three login steps are never retried: the provider consumes the
// transaction state on each submission, and a replayed SMS code would be
// rejected. Only the unit enumeration is wrapped in retry + breaker.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewClient creates a utility provider client.
func NewClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
		logger:     logger,
	}
}

// providerError is the provider's error envelope. Either field may carry
// the human-readable detail.
type providerError struct {
	Mensagem string `json:"mensagem"`
	Message  string `json:"message"`
}

// doRequest executes a JSON POST against the provider and returns the body.
// Non-2xx responses are normalized to ErrProviderRejected, preferring the
// server-supplied detail over a generic transport message.
func (c *Client) doRequest(ctx context.Context, step, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		c.logger.Error("energisa: failed to create request",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("energisa: request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, &domain.ErrExternalService{Service: "energisa", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("energisa: failed to read response body",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, &domain.ErrExternalService{Service: "energisa", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("energisa: non-2xx response",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		var perr providerError
		_ = json.Unmarshal(body, &perr)
		msg := perr.Mensagem
		if msg == "" {
			msg = perr.Message
		}
		if msg == "" {
			msg = fmt.Sprintf("Falha na comunicação com a concessionária (status %d)", resp.StatusCode)
		}
		return nil, &domain.ErrProviderRejected{Step: step, Message: msg}
	}

	c.logger.Debug("energisa: request OK",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	return body, nil
}

// --- Login flow (implements part of port.UtilityProvider) ---

type startLoginResponse struct {
	TransactionID string `json:"transaction_id"`
	ListaTelefone []struct {
		Celular string `json:"celular"`
		Label   string `json:"descricao"`
	} `json:"listaTelefone"`
}

// StartLogin begins the SMS flow. Returns the provider transaction ID and
// candidate phones.
func (c *Client) StartLogin(ctx context.Context, cpf string) (string, []domain.CandidatePhone, error) {
	ctx, span := tracer.Start(ctx, "Energisa.StartLogin")
	defer span.End()

	body, err := c.doRequest(ctx, "start", "/energisa/login/start", map[string]string{"cpf": cpf})
	if err != nil {
		return "", nil, err
	}

	var out startLoginResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", nil, fmt.Errorf("failed to decode login start response: %w", err)
	}

	phones := make([]domain.CandidatePhone, 0, len(out.ListaTelefone))
	for _, p := range out.ListaTelefone {
		phones = append(phones, domain.CandidatePhone{Celular: p.Celular, Label: p.Label})
	}

	span.SetAttributes(attribute.Int("phones.count", len(phones)))
	return out.TransactionID, phones, nil
}

// SelectOption picks the phone that receives the SMS code.
func (c *Client) SelectOption(ctx context.Context, transactionID, phone string) error {
	ctx, span := tracer.Start(ctx, "Energisa.SelectOption")
	defer span.End()

	_, err := c.doRequest(ctx, "select-option", "/energisa/login/select-option", map[string]string{
		"transaction_id":    transactionID,
		"opcao_selecionada": phone,
	})
	return err
}

// FinishLogin submits the SMS code and completes provider auth.
func (c *Client) FinishLogin(ctx context.Context, transactionID, code string) error {
	ctx, span := tracer.Start(ctx, "Energisa.FinishLogin")
	defer span.End()

	_, err := c.doRequest(ctx, "finish", "/energisa/login/finish", map[string]string{
		"transaction_id": transactionID,
		"sms_code":       code,
	})
	return err
}

// --- Unit enumeration ---

type wireUnit struct {
	Cdc                  *int    `json:"cdc"`
	DigitoVerificador    *int    `json:"digitoVerificador"`
	CodigoConcessionaria *int    `json:"codigoConcessionaria"`
	Titular              string  `json:"titular"`
	Logradouro           string  `json:"logradouro"`
	Bairro               string  `json:"bairro"`
	Municipio            string  `json:"municipio"`
	Usina                *string `json:"usina"`
}

// ListUnits enumerates the account's consumer units. This call is
// idempotent, so it goes through retry + circuit breaker.
func (c *Client) ListUnits(ctx context.Context, cpf string) ([]domain.CandidateUnit, error) {
	ctx, span := tracer.Start(ctx, "Energisa.ListUnits")
	defer span.End()

	var units []domain.CandidateUnit

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.doRequest(ctx, "ucs", "/energisa/ucs", map[string]string{"cpf": cpf})
			if err != nil {
				return err
			}

			var rows []wireUnit
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode units: %w", err)
			}

			units = make([]domain.CandidateUnit, 0, len(rows))
			for _, r := range rows {
				units = append(units, domain.CandidateUnit{
					CDC:            r.Cdc,
					VerifierDigit:  r.DigitoVerificador,
					ProviderCode:   r.CodigoConcessionaria,
					HolderName:     r.Titular,
					Street:         r.Logradouro,
					Neighborhood:   r.Bairro,
					Municipality:   r.Municipio,
					GeneratorField: r.Usina,
				})
			}
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("units.count", len(units)))
	return units, nil
}
