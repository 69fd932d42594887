package energisa_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/enersol/gd-portal-bfa-go/internal/domain"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/energisa"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/resilience"

	"go.uber.org/zap"
)

func newTestClient(baseURL string) *energisa.Client {
	return energisa.NewClient(
		&http.Client{Timeout: 5 * time.Second},
		baseURL,
		resilience.NewCircuitBreaker("test"),
		resilience.Config{MaxRetries: 0, InitialBackoff: time.Millisecond},
		zap.NewNop(),
	)
}

func TestStartLogin_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/energisa/login/start" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["cpf"] != "52998224725" {
			t.Errorf("expected cpf in body, got %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"transaction_id": "tx-42",
			"listaTelefone": []map[string]string{
				{"celular": "(67) 99999-1111"},
				{"celular": "(67) 98888-2222"},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	txID, phones, err := c.StartLogin(context.Background(), "52998224725")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if txID != "tx-42" {
		t.Errorf("expected transaction 'tx-42', got '%s'", txID)
	}
	if len(phones) != 2 {
		t.Fatalf("expected 2 phones, got %d", len(phones))
	}
	if phones[0].Celular != "(67) 99999-1111" {
		t.Errorf("unexpected first phone: %s", phones[0].Celular)
	}
}

func TestStartLogin_SurfacesServerDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"mensagem": "CPF não encontrado na base da concessionária"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	_, _, err := c.StartLogin(context.Background(), "52998224725")
	if err == nil {
		t.Fatal("expected error")
	}
	var rejected *domain.ErrProviderRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("expected ErrProviderRejected, got %T", err)
	}
	if rejected.Message != "CPF não encontrado na base da concessionária" {
		t.Errorf("expected server detail to be preserved, got '%s'", rejected.Message)
	}
}

func TestStartLogin_GenericMessageWhenNoDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	_, _, err := c.StartLogin(context.Background(), "52998224725")
	var rejected *domain.ErrProviderRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("expected ErrProviderRejected, got %T", err)
	}
	if rejected.Message == "" {
		t.Error("expected a generic fallback message, got empty")
	}
}

func TestListUnits_MapsNullableFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"cdc": 1234, "digitoVerificador": 5, "codigoConcessionaria": 7, "titular": "MARIA", "usina": "GD-II"},
			{"cdc": null, "digitoVerificador": null, "codigoConcessionaria": null, "titular": "JOSE", "usina": null}
		]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	units, err := c.ListUnits(context.Background(), "52998224725")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}

	if !units[0].IsGenerator() {
		t.Error("expected first unit to be a generator")
	}
	cdc, verifier, provider := units[0].Normalized()
	if cdc != 1234 || verifier != 5 || provider != 7 {
		t.Errorf("unexpected normalized identity: %d %d %d", cdc, verifier, provider)
	}

	if units[1].IsGenerator() {
		t.Error("expected second unit not to be a generator")
	}
	cdc, verifier, provider = units[1].Normalized()
	if cdc != 0 || verifier != 0 || provider != domain.DefaultProviderCode {
		t.Errorf("expected defaults 0/0/6, got %d %d %d", cdc, verifier, provider)
	}
}
