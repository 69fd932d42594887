package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/enersol/gd-portal-bfa-go/internal/handler"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/observability"
	"github.com/enersol/gd-portal-bfa-go/internal/service"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newTestRouter(adminKeyHash string) (http.Handler, *service.AuthService) {
	authSvc := service.NewAuthService("test-secret", time.Minute)
	svcs := handler.Services{Auth: authSvc}
	return handler.NewRouter(svcs, observability.NewMetrics(), adminKeyHash, zap.NewNop()), authSvc
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter("")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	router, _ := newTestRouter("")

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router, _ := newTestRouter("")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	router, _ := newTestRouter("")

	for _, path := range []string{"/v1/dashboard/summary", "/v1/gd/summary", "/v1/invoices"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestProtectedRoutesRejectBadToken(t *testing.T) {
	router, _ := newTestRouter("")

	req := httptest.NewRequest(http.MethodGet, "/v1/gd/summary", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAdminRoutesDisabledWithoutKeyHash(t *testing.T) {
	router, _ := newTestRouter("")

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/metrics/linking", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 when admin area is disabled, got %d", rec.Code)
	}
}

func TestAdminKeyFlow(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("super-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	router, _ := newTestRouter(string(hash))

	// Wrong key rejected.
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/metrics/linking", nil)
	req.Header.Set("X-Admin-Key", "wrong")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong key, got %d", rec.Code)
	}

	// Correct key accepted.
	req = httptest.NewRequest(http.MethodGet, "/v1/admin/metrics/linking", nil)
	req.Header.Set("X-Admin-Key", "super-secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for correct key, got %d", rec.Code)
	}
}

func TestIssueTokenAndUseIt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("super-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	router, _ := newTestRouter(string(hash))

	body := strings.NewReader(`{"operator_id":"op-1","cpf":"12345678909"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/token", body)
	req.Header.Set("X-Admin-Key", "super-secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 issuing token, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding token response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("expected a token")
	}

	claims := mustValidate(t, resp.AccessToken)
	if claims.Sub != "op-1" {
		t.Errorf("expected sub op-1, got %q", claims.Sub)
	}
}

func mustValidate(t *testing.T, token string) *service.OperatorClaims {
	t.Helper()
	authSvc := service.NewAuthService("test-secret", time.Minute)
	claims, err := authSvc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("validating issued token: %v", err)
	}
	return claims
}
