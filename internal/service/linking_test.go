package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/enersol/gd-portal-bfa-go/internal/domain"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/cache"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/observability"

	"go.uber.org/zap"
)

// --- Mocks ---

type mockProvider struct {
	startLoginFunc  func(ctx context.Context, cpf string) (string, []domain.CandidatePhone, error)
	selectFunc      func(ctx context.Context, txID, phone string) error
	finishFunc      func(ctx context.Context, txID, code string) error
	listUnitsFunc   func(ctx context.Context, cpf string) ([]domain.CandidateUnit, error)
	startLoginCalls int
}

func (m *mockProvider) StartLogin(ctx context.Context, cpf string) (string, []domain.CandidatePhone, error) {
	m.startLoginCalls++
	if m.startLoginFunc != nil {
		return m.startLoginFunc(ctx, cpf)
	}
	return "tx-1", []domain.CandidatePhone{{Celular: "(**) *****-1234"}}, nil
}

func (m *mockProvider) SelectOption(ctx context.Context, txID, phone string) error {
	if m.selectFunc != nil {
		return m.selectFunc(ctx, txID, phone)
	}
	return nil
}

func (m *mockProvider) FinishLogin(ctx context.Context, txID, code string) error {
	if m.finishFunc != nil {
		return m.finishFunc(ctx, txID, code)
	}
	return nil
}

func (m *mockProvider) ListUnits(ctx context.Context, cpf string) ([]domain.CandidateUnit, error) {
	if m.listUnitsFunc != nil {
		return m.listUnitsFunc(ctx, cpf)
	}
	return nil, nil
}

type mockStore struct {
	mockPlatform
	linkFunc  func(ctx context.Context, cpf string, unit domain.CandidateUnit) (string, error)
	syncFunc  func(ctx context.Context, localID string, cdc, verifier int) error
	linkCalls []int
	syncCalls []string
}

func (m *mockStore) LinkUnit(ctx context.Context, cpf string, unit domain.CandidateUnit) (string, error) {
	cdc, _, _ := unit.Normalized()
	m.linkCalls = append(m.linkCalls, cdc)
	if m.linkFunc != nil {
		return m.linkFunc(ctx, cpf, unit)
	}
	return fmt.Sprintf("uc-%d", cdc), nil
}

func (m *mockStore) SyncInvoices(ctx context.Context, localID string, cdc, verifier int) error {
	m.syncCalls = append(m.syncCalls, localID)
	if m.syncFunc != nil {
		return m.syncFunc(ctx, localID, cdc, verifier)
	}
	return nil
}

// mockPlatform gives mockStore the inherited no-op PlatformStore surface the
// linking tests never touch.
type mockPlatform struct{}

func (mockPlatform) LinkUnit(context.Context, string, domain.CandidateUnit) (string, error) {
	return "", nil
}
func (mockPlatform) SyncInvoices(context.Context, string, int, int) error { return nil }
func (mockPlatform) GetGDSummary(context.Context, string) (*domain.GDSummary, error) {
	return nil, nil
}
func (mockPlatform) TriggerGDSync(context.Context, string) (*domain.SyncResult, error) {
	return nil, nil
}
func (mockPlatform) GetHistory(context.Context, string) ([]domain.MonthlyGDRecord, error) {
	return nil, nil
}
func (mockPlatform) GetPlant(context.Context, string) (*domain.GeneratorPlant, error) {
	return nil, nil
}
func (mockPlatform) ListCompanies(context.Context, string) ([]domain.Company, error) {
	return nil, nil
}
func (mockPlatform) ListUnits(context.Context, string) ([]domain.ConsumerUnit, error) {
	return nil, nil
}
func (mockPlatform) ListInvoices(context.Context, string) ([]domain.Invoice, error) {
	return nil, nil
}
func (mockPlatform) DownloadInvoice(context.Context, string) ([]byte, error) { return nil, nil }

func intPtr(v int) *int { return &v }

func newTestLinking(provider *mockProvider, store *mockStore) *LinkingService {
	sessions := cache.New[*domain.LinkingSession](time.Minute)
	return NewLinkingService(provider, store, sessions, observability.NewMetrics(), zap.NewNop())
}

// advanceToUnits walks a session through cpf, phone and sms so tests of the
// units step start from a valid state.
func advanceToUnits(t *testing.T, svc *LinkingService, candidates []domain.CandidateUnit) *domain.LinkingSession {
	t.Helper()
	sess := svc.StartSession()

	svc.provider.(*mockProvider).listUnitsFunc = func(context.Context, string) ([]domain.CandidateUnit, error) {
		return candidates, nil
	}

	if _, err := svc.SubmitCPF(context.Background(), sess.ID, "123.456.789-09"); err != nil {
		t.Fatalf("SubmitCPF: %v", err)
	}
	if _, err := svc.SelectPhone(sess.ID, "(**) *****-1234"); err != nil {
		t.Fatalf("SelectPhone: %v", err)
	}
	if _, err := svc.ConfirmPhone(context.Background(), sess.ID); err != nil {
		t.Fatalf("ConfirmPhone: %v", err)
	}
	if _, err := svc.SubmitSMSCode(context.Background(), sess.ID, "1234"); err != nil {
		t.Fatalf("SubmitSMSCode: %v", err)
	}
	return sess
}

// --- Tests ---

func TestGetSession_ReadKeepsSessionAlive(t *testing.T) {
	sessions := cache.New[*domain.LinkingSession](80 * time.Millisecond)
	svc := NewLinkingService(&mockProvider{}, &mockStore{}, sessions, observability.NewMetrics(), zap.NewNop())

	sess := svc.StartSession()
	// Poll past the TTL: each read refreshes it, so the session survives
	// an operator idling on one step.
	for i := 0; i < 3; i++ {
		time.Sleep(50 * time.Millisecond)
		if _, err := svc.GetSession(sess.ID); err != nil {
			t.Fatalf("read %d: session must stay alive while polled: %v", i, err)
		}
	}
}

func TestSubmitCPF_AdvancesOnlyOnSuccess(t *testing.T) {
	provider := &mockProvider{}
	svc := newTestLinking(provider, &mockStore{})
	sess := svc.StartSession()

	got, err := svc.SubmitCPF(context.Background(), sess.ID, "123.456.789-09")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got.Step != domain.StepPhone {
		t.Errorf("expected step phone, got %s", got.Step)
	}
	if got.CPF != "12345678909" {
		t.Errorf("expected sanitized cpf, got %s", got.CPF)
	}
	if got.TransactionID != "tx-1" {
		t.Errorf("expected transaction id recorded, got %q", got.TransactionID)
	}
}

func TestSubmitCPF_StaysOnFailure(t *testing.T) {
	provider := &mockProvider{
		startLoginFunc: func(context.Context, string) (string, []domain.CandidatePhone, error) {
			return "", nil, &domain.ErrProviderRejected{Step: "login", Message: "CPF não encontrado"}
		},
	}
	svc := newTestLinking(provider, &mockStore{})
	sess := svc.StartSession()

	_, err := svc.SubmitCPF(context.Background(), sess.ID, "12345678909")
	if err == nil {
		t.Fatal("expected error")
	}

	got, _ := svc.GetSession(sess.ID)
	if got.Step != domain.StepCPF {
		t.Errorf("session must stay at cpf on rejection, got %s", got.Step)
	}
	if got.TransactionID != "" {
		t.Errorf("transaction must not be set on rejection, got %q", got.TransactionID)
	}
	if got.LastError == "" {
		t.Error("expected provider message surfaced on session")
	}
}

func TestSubmitCPF_RejectsShortCPF(t *testing.T) {
	provider := &mockProvider{}
	svc := newTestLinking(provider, &mockStore{})
	sess := svc.StartSession()

	_, err := svc.SubmitCPF(context.Background(), sess.ID, "123")
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if provider.startLoginCalls != 0 {
		t.Error("provider must not be called for invalid cpf")
	}
}

func TestSelectPhone_ExclusiveReplacement(t *testing.T) {
	provider := &mockProvider{
		startLoginFunc: func(context.Context, string) (string, []domain.CandidatePhone, error) {
			return "tx-1", []domain.CandidatePhone{
				{Celular: "(**) *****-1111"},
				{Celular: "(**) *****-2222"},
			}, nil
		},
	}
	svc := newTestLinking(provider, &mockStore{})
	sess := svc.StartSession()
	if _, err := svc.SubmitCPF(context.Background(), sess.ID, "12345678909"); err != nil {
		t.Fatalf("SubmitCPF: %v", err)
	}

	if _, err := svc.SelectPhone(sess.ID, "(**) *****-1111"); err != nil {
		t.Fatalf("first selection: %v", err)
	}
	got, err := svc.SelectPhone(sess.ID, "(**) *****-2222")
	if err != nil {
		t.Fatalf("second selection: %v", err)
	}
	if got.SelectedPhone != "(**) *****-2222" {
		t.Errorf("selection must be exclusive, got %q", got.SelectedPhone)
	}
}

func TestSelectPhone_RejectsUnknownNumber(t *testing.T) {
	provider := &mockProvider{}
	svc := newTestLinking(provider, &mockStore{})
	sess := svc.StartSession()
	if _, err := svc.SubmitCPF(context.Background(), sess.ID, "12345678909"); err != nil {
		t.Fatalf("SubmitCPF: %v", err)
	}

	_, err := svc.SelectPhone(sess.ID, "(**) *****-9999")
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSanitizeSMSCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"12a3", "123"},
		{"123456", "123456"},
		{"1234567", "123456"},
		{" 1 2-3.4 ", "1234"},
		{"abc", ""},
	}
	for _, tc := range cases {
		if got := SanitizeSMSCode(tc.in); got != tc.want {
			t.Errorf("SanitizeSMSCode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSubmitSMSCode_InvalidCodeStaysAtSMS(t *testing.T) {
	provider := &mockProvider{
		finishFunc: func(context.Context, string, string) error {
			return &domain.ErrInvalidCode{}
		},
	}
	svc := newTestLinking(provider, &mockStore{})
	sess := svc.StartSession()
	if _, err := svc.SubmitCPF(context.Background(), sess.ID, "12345678909"); err != nil {
		t.Fatalf("SubmitCPF: %v", err)
	}
	if _, err := svc.SelectPhone(sess.ID, "(**) *****-1234"); err != nil {
		t.Fatalf("SelectPhone: %v", err)
	}
	if _, err := svc.ConfirmPhone(context.Background(), sess.ID); err != nil {
		t.Fatalf("ConfirmPhone: %v", err)
	}

	_, err := svc.SubmitSMSCode(context.Background(), sess.ID, "0000")
	var ic *domain.ErrInvalidCode
	if !errors.As(err, &ic) {
		t.Fatalf("expected invalid code error, got %v", err)
	}

	got, _ := svc.GetSession(sess.ID)
	if got.Step != domain.StepSMS {
		t.Errorf("session must stay at sms, got %s", got.Step)
	}
}

func TestSubmitSMSCode_EnumerationFailureStaysAtSMS(t *testing.T) {
	provider := &mockProvider{
		listUnitsFunc: func(context.Context, string) ([]domain.CandidateUnit, error) {
			return nil, &domain.ErrExternalService{Service: "energisa", Err: errors.New("timeout")}
		},
	}
	svc := newTestLinking(provider, &mockStore{})
	sess := svc.StartSession()
	if _, err := svc.SubmitCPF(context.Background(), sess.ID, "12345678909"); err != nil {
		t.Fatalf("SubmitCPF: %v", err)
	}
	if _, err := svc.SelectPhone(sess.ID, "(**) *****-1234"); err != nil {
		t.Fatalf("SelectPhone: %v", err)
	}
	if _, err := svc.ConfirmPhone(context.Background(), sess.ID); err != nil {
		t.Fatalf("ConfirmPhone: %v", err)
	}

	if _, err := svc.SubmitSMSCode(context.Background(), sess.ID, "1234"); err == nil {
		t.Fatal("expected error")
	}

	got, _ := svc.GetSession(sess.ID)
	if got.Step != domain.StepSMS {
		t.Errorf("enumeration failure must keep session at sms, got %s", got.Step)
	}
}

func TestToggleAll_DoubleToggleClearsSelection(t *testing.T) {
	candidates := []domain.CandidateUnit{
		{CDC: intPtr(100), VerifierDigit: intPtr(1)},
		{CDC: intPtr(200), VerifierDigit: intPtr(2)},
		{CDC: intPtr(300), VerifierDigit: intPtr(3)},
	}
	provider := &mockProvider{}
	svc := newTestLinking(provider, &mockStore{})
	sess := advanceToUnits(t, svc, candidates)

	got, err := svc.ToggleAll(sess.ID)
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if len(got.Selected) != 3 {
		t.Errorf("expected all selected, got %d", len(got.Selected))
	}

	got, err = svc.ToggleAll(sess.ID)
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if len(got.Selected) != 0 {
		t.Errorf("double toggle must clear selection, got %d", len(got.Selected))
	}
}

func TestToggleAll_FromPartialSelectsAll(t *testing.T) {
	candidates := []domain.CandidateUnit{
		{CDC: intPtr(100)},
		{CDC: intPtr(200)},
	}
	provider := &mockProvider{}
	svc := newTestLinking(provider, &mockStore{})
	sess := advanceToUnits(t, svc, candidates)

	if _, err := svc.ToggleUnit(sess.ID, 0); err != nil {
		t.Fatalf("ToggleUnit: %v", err)
	}
	got, err := svc.ToggleAll(sess.ID)
	if err != nil {
		t.Fatalf("ToggleAll: %v", err)
	}
	if len(got.Selected) != 2 {
		t.Errorf("partial selection must become full, got %d", len(got.Selected))
	}
}

func TestLinkSelected_PartialFailureNeverAborts(t *testing.T) {
	candidates := []domain.CandidateUnit{
		{CDC: intPtr(100), VerifierDigit: intPtr(1)},
		{CDC: intPtr(200), VerifierDigit: intPtr(2)},
		{CDC: intPtr(300), VerifierDigit: intPtr(3)},
	}
	store := &mockStore{
		linkFunc: func(_ context.Context, _ string, unit domain.CandidateUnit) (string, error) {
			cdc, _, _ := unit.Normalized()
			if cdc == 200 {
				return "", &domain.ErrConflict{Message: "UC já vinculada"}
			}
			return fmt.Sprintf("uc-%d", cdc), nil
		},
	}
	provider := &mockProvider{}
	svc := newTestLinking(provider, store)
	sess := advanceToUnits(t, svc, candidates)

	if _, err := svc.ToggleAll(sess.ID); err != nil {
		t.Fatalf("ToggleAll: %v", err)
	}

	got, outcome, err := svc.LinkSelected(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("loop must not abort on per-unit failure: %v", err)
	}
	if got.Step != domain.StepSuccess {
		t.Errorf("expected success step, got %s", got.Step)
	}
	if outcome.Attempted != 3 || outcome.Succeeded != 2 {
		t.Errorf("expected 2 of 3 succeeded, got %d of %d", outcome.Succeeded, outcome.Attempted)
	}
	if got.LinkedCount != 2 {
		t.Errorf("expected linked count 2, got %d", got.LinkedCount)
	}
	// All three link attempts were made, in ascending candidate order.
	if len(store.linkCalls) != 3 {
		t.Errorf("expected 3 link calls, got %d", len(store.linkCalls))
	}
}

func TestLinkSelected_SyncFailureCountsAsFailed(t *testing.T) {
	candidates := []domain.CandidateUnit{
		{CDC: intPtr(100)},
		{CDC: intPtr(200)},
	}
	store := &mockStore{
		syncFunc: func(_ context.Context, localID string, _, _ int) error {
			if localID == "uc-100" {
				return &domain.ErrExternalService{Service: "platform", Err: errors.New("500")}
			}
			return nil
		},
	}
	provider := &mockProvider{}
	svc := newTestLinking(provider, store)
	sess := advanceToUnits(t, svc, candidates)

	if _, err := svc.ToggleAll(sess.ID); err != nil {
		t.Fatalf("ToggleAll: %v", err)
	}

	_, outcome, err := svc.LinkSelected(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("LinkSelected: %v", err)
	}
	if outcome.Succeeded != 1 {
		t.Errorf("sync failure must not count as success, got %d", outcome.Succeeded)
	}
	if !outcome.Results[0].Linked || outcome.Results[0].Synced {
		t.Error("first unit should be linked but not synced")
	}
}

func TestLinkSelected_AppliesIdentityDefaults(t *testing.T) {
	gen := "UFV Central"
	candidates := []domain.CandidateUnit{
		{GeneratorField: &gen}, // every identity field absent
	}
	var seen []int
	store := &mockStore{
		linkFunc: func(_ context.Context, _ string, unit domain.CandidateUnit) (string, error) {
			cdc, verifier, provider := unit.Normalized()
			seen = []int{cdc, verifier, provider}
			return "uc-0", nil
		},
	}
	provider := &mockProvider{}
	svc := newTestLinking(provider, store)
	sess := advanceToUnits(t, svc, candidates)

	if _, err := svc.ToggleUnit(sess.ID, 0); err != nil {
		t.Fatalf("ToggleUnit: %v", err)
	}
	if _, _, err := svc.LinkSelected(context.Background(), sess.ID); err != nil {
		t.Fatalf("LinkSelected: %v", err)
	}
	if len(seen) != 3 || seen[0] != 0 || seen[1] != 0 || seen[2] != 6 {
		t.Errorf("expected defaults 0/0/6, got %v", seen)
	}
}

func TestLinkSelected_RequiresSelection(t *testing.T) {
	provider := &mockProvider{}
	svc := newTestLinking(provider, &mockStore{})
	sess := advanceToUnits(t, svc, []domain.CandidateUnit{{CDC: intPtr(100)}})

	_, _, err := svc.LinkSelected(context.Background(), sess.ID)
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBack_PhoneKeepsCPFAndTransaction(t *testing.T) {
	provider := &mockProvider{}
	svc := newTestLinking(provider, &mockStore{})
	sess := svc.StartSession()
	if _, err := svc.SubmitCPF(context.Background(), sess.ID, "12345678909"); err != nil {
		t.Fatalf("SubmitCPF: %v", err)
	}

	got, err := svc.Back(sess.ID)
	if err != nil {
		t.Fatalf("Back: %v", err)
	}
	if got.Step != domain.StepCPF {
		t.Errorf("expected cpf step, got %s", got.Step)
	}
	if got.CPF != "12345678909" || got.TransactionID != "tx-1" {
		t.Error("back must keep entered cpf and transaction")
	}
}

func TestBack_RejectedAtTerminalSteps(t *testing.T) {
	provider := &mockProvider{}
	svc := newTestLinking(provider, &mockStore{})
	sess := svc.StartSession()

	_, err := svc.Back(sess.ID)
	var it *domain.ErrInvalidTransition
	if !errors.As(err, &it) {
		t.Fatalf("expected invalid transition from cpf, got %v", err)
	}
}

func TestBusyGuard_RejectsConcurrentTransition(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	provider := &mockProvider{
		startLoginFunc: func(context.Context, string) (string, []domain.CandidatePhone, error) {
			close(started)
			<-release
			return "tx-1", nil, nil
		},
	}
	svc := newTestLinking(provider, &mockStore{})
	sess := svc.StartSession()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.SubmitCPF(context.Background(), sess.ID, "12345678909")
	}()
	<-started

	_, err := svc.Back(sess.ID)
	var busy *domain.ErrSessionBusy
	if !errors.As(err, &busy) {
		t.Fatalf("expected busy error during in-flight call, got %v", err)
	}

	close(release)
	<-done

	// After the call settles, back navigation works again.
	if _, err := svc.Back(sess.ID); err != nil {
		t.Fatalf("Back after release: %v", err)
	}
}

func TestRestart_ClearsEverything(t *testing.T) {
	provider := &mockProvider{}
	svc := newTestLinking(provider, &mockStore{})
	sess := advanceToUnits(t, svc, []domain.CandidateUnit{{CDC: intPtr(100)}})

	got, err := svc.Restart(sess.ID)
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if got.Step != domain.StepCPF {
		t.Errorf("expected cpf step, got %s", got.Step)
	}
	if got.CPF != "" || got.TransactionID != "" || len(got.Candidates) != 0 {
		t.Error("restart must clear all transient data")
	}
	if got.ID != sess.ID {
		t.Error("restart must keep the session id")
	}
}
