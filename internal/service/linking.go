package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/enersol/gd-portal-bfa-go/internal/domain"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/observability"
	"github.com/enersol/gd-portal-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var linkingTracer = otel.Tracer("service/linking")

const (
	cpfLength     = 11
	smsCodeMinLen = 4
	smsCodeMaxLen = 6
)

// LinkingService drives the five-step utility-account linking wizard:
// cpf → phone → sms → units → success.
//
// Sessions are transient and in-memory; they expire with the session store
// TTL and never survive a restart. All provider calls within one step are
// awaited before the next step begins, and the per-unit linking loop is
// strictly sequential to bound load on the provider and keep the
// partial-success count straightforward.
//
// Each session carries a busy flag, set for the duration of an outbound
// call. Any transition requested while the flag is up is rejected — this
// closes the back-navigation race instead of cancelling in-flight calls.
type LinkingService struct {
	provider port.UtilityProvider
	store    port.PlatformStore
	sessions port.Cache[*domain.LinkingSession]
	metrics  *observability.Metrics
	logger   *zap.Logger

	// mu guards all session mutations. It is NOT held across outbound
	// calls; the busy flag covers those windows.
	mu sync.Mutex
}

// NewLinkingService creates the linking workflow service.
func NewLinkingService(provider port.UtilityProvider, store port.PlatformStore, sessions port.Cache[*domain.LinkingSession], metrics *observability.Metrics, logger *zap.Logger) *LinkingService {
	return &LinkingService{
		provider: provider,
		store:    store,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
	}
}

// StartSession creates a fresh wizard session at the cpf step.
func (s *LinkingService) StartSession() *domain.LinkingSession {
	sess := &domain.LinkingSession{
		ID:       uuid.New().String(),
		Step:     domain.StepCPF,
		Selected: make(map[int]bool),
	}
	s.sessions.Set(sess.ID, sess)
	s.metrics.IncrSession("started")
	s.logger.Info("linking session started", zap.String("session_id", sess.ID))
	return sess
}

// GetSession returns a live session or ErrNotFound. Reading a session keeps
// it alive: the operator may sit on one wizard step longer than the TTL.
func (s *LinkingService) GetSession(id string) (*domain.LinkingSession, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "linking session", ID: id}
	}
	s.sessions.Touch(id)
	return sess, nil
}

// DiscardSession drops a session (operator cancelled or navigated away).
func (s *LinkingService) DiscardSession(id string) {
	s.sessions.Delete(id)
}

// SanitizeDigits strips every non-digit rune from the input.
func SanitizeDigits(raw string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
}

// SanitizeSMSCode strips non-digits and caps the code at its maximum
// length, mirroring the dashboard's live input filtering.
func SanitizeSMSCode(raw string) string {
	code := SanitizeDigits(raw)
	if len(code) > smsCodeMaxLen {
		code = code[:smsCodeMaxLen]
	}
	return code
}

// acquire takes the session for an outbound call: validates the step,
// rejects busy sessions and raises the busy flag.
func (s *LinkingService) acquire(id string, step domain.LinkingStep, op string) (*domain.LinkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "linking session", ID: id}
	}
	if sess.Step != step {
		return nil, &domain.ErrInvalidTransition{From: sess.Step, Operation: op}
	}
	if sess.Busy {
		return nil, &domain.ErrSessionBusy{SessionID: id}
	}
	sess.Busy = true
	return sess, nil
}

// release lowers the busy flag and refreshes the session TTL.
func (s *LinkingService) release(sess *domain.LinkingSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.Busy = false
	s.sessions.Set(sess.ID, sess)
}

// SubmitCPF validates the tax ID and starts the provider login. On success
// the session holds the transaction ID and candidate phones and moves to
// the phone step; on rejection it stays at cpf with the provider's message
// surfaced and the transaction unset.
func (s *LinkingService) SubmitCPF(ctx context.Context, id, rawCPF string) (*domain.LinkingSession, error) {
	ctx, span := linkingTracer.Start(ctx, "Linking.SubmitCPF")
	defer span.End()

	cpf := SanitizeDigits(rawCPF)
	if len(cpf) != cpfLength {
		return nil, &domain.ErrValidation{Field: "cpf", Message: "CPF deve ter 11 dígitos"}
	}

	sess, err := s.acquire(id, domain.StepCPF, "submit-cpf")
	if err != nil {
		return nil, err
	}
	defer s.release(sess)

	span.SetAttributes(attribute.String("session.id", id))

	txID, phones, err := s.provider.StartLogin(ctx, cpf)
	if err != nil {
		s.logger.Warn("linking: start login rejected",
			zap.String("session_id", id),
			zap.Error(err),
		)
		sess.CPF = cpf
		sess.LastError = err.Error()
		return nil, err
	}

	sess.CPF = cpf
	sess.TransactionID = txID
	sess.Phones = phones
	sess.LastError = ""
	sess.Step = domain.StepPhone

	s.logger.Info("linking: login started",
		zap.String("session_id", id),
		zap.Int("phones", len(phones)),
	)
	return sess, nil
}

// SelectPhone records the operator's phone choice. Selection is exclusive:
// a new choice replaces the prior one. No network call happens here.
func (s *LinkingService) SelectPhone(id, phone string) (*domain.LinkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "linking session", ID: id}
	}
	if sess.Step != domain.StepPhone {
		return nil, &domain.ErrInvalidTransition{From: sess.Step, Operation: "select-phone"}
	}
	if sess.Busy {
		return nil, &domain.ErrSessionBusy{SessionID: id}
	}

	for _, p := range sess.Phones {
		if p.Celular == phone {
			sess.SelectedPhone = phone
			s.sessions.Set(id, sess)
			return sess, nil
		}
	}
	return nil, &domain.ErrValidation{Field: "phone", Message: "Telefone não está entre as opções"}
}

// ConfirmPhone sends the selected phone to the provider, which dispatches
// the SMS code. Moves to the sms step on success.
func (s *LinkingService) ConfirmPhone(ctx context.Context, id string) (*domain.LinkingSession, error) {
	ctx, span := linkingTracer.Start(ctx, "Linking.ConfirmPhone")
	defer span.End()

	sess, err := s.acquire(id, domain.StepPhone, "confirm-phone")
	if err != nil {
		return nil, err
	}
	defer s.release(sess)

	if sess.SelectedPhone == "" {
		return nil, &domain.ErrValidation{Field: "phone", Message: "Selecione um telefone"}
	}

	if err := s.provider.SelectOption(ctx, sess.TransactionID, sess.SelectedPhone); err != nil {
		s.logger.Warn("linking: phone selection rejected",
			zap.String("session_id", id),
			zap.Error(err),
		)
		sess.LastError = err.Error()
		return nil, err
	}

	sess.LastError = ""
	sess.Step = domain.StepSMS
	return sess, nil
}

// SubmitSMSCode finishes the provider login with the SMS code and, on
// success, immediately enumerates the account's consumer units before
// moving to the units step. Any failure keeps the session at sms.
func (s *LinkingService) SubmitSMSCode(ctx context.Context, id, rawCode string) (*domain.LinkingSession, error) {
	ctx, span := linkingTracer.Start(ctx, "Linking.SubmitSMSCode")
	defer span.End()

	code := SanitizeSMSCode(rawCode)
	if len(code) < smsCodeMinLen {
		return nil, &domain.ErrValidation{Field: "sms_code", Message: "Código deve ter ao menos 4 dígitos"}
	}

	sess, err := s.acquire(id, domain.StepSMS, "submit-sms")
	if err != nil {
		return nil, err
	}
	defer s.release(sess)

	if err := s.provider.FinishLogin(ctx, sess.TransactionID, code); err != nil {
		s.logger.Warn("linking: sms code rejected",
			zap.String("session_id", id),
			zap.Error(err),
		)
		sess.SMSCode = ""
		sess.LastError = err.Error()
		return nil, err
	}

	units, err := s.provider.ListUnits(ctx, sess.CPF)
	if err != nil {
		s.logger.Error("linking: unit enumeration failed after login",
			zap.String("session_id", id),
			zap.Error(err),
		)
		sess.LastError = err.Error()
		return nil, err
	}

	sess.SMSCode = code
	sess.Candidates = units
	sess.Selected = make(map[int]bool)
	sess.LastError = ""
	sess.Step = domain.StepUnits

	s.logger.Info("linking: provider login complete",
		zap.String("session_id", id),
		zap.Int("candidates", len(units)),
	)
	return sess, nil
}

// ToggleUnit flips one candidate's selection (checkbox semantics).
func (s *LinkingService) ToggleUnit(id string, index int) (*domain.LinkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "linking session", ID: id}
	}
	if sess.Step != domain.StepUnits {
		return nil, &domain.ErrInvalidTransition{From: sess.Step, Operation: "toggle-unit"}
	}
	if sess.Busy {
		return nil, &domain.ErrSessionBusy{SessionID: id}
	}
	if index < 0 || index >= len(sess.Candidates) {
		return nil, &domain.ErrValidation{Field: "index", Message: fmt.Sprintf("índice %d fora do intervalo", index)}
	}

	if sess.Selected[index] {
		delete(sess.Selected, index)
	} else {
		sess.Selected[index] = true
	}
	s.sessions.Set(id, sess)
	return sess, nil
}

// ToggleAll selects every candidate unless all are already selected, in
// which case it clears the selection. Toggling twice always returns to
// the empty set.
func (s *LinkingService) ToggleAll(id string) (*domain.LinkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "linking session", ID: id}
	}
	if sess.Step != domain.StepUnits {
		return nil, &domain.ErrInvalidTransition{From: sess.Step, Operation: "toggle-all"}
	}
	if sess.Busy {
		return nil, &domain.ErrSessionBusy{SessionID: id}
	}

	if len(sess.Selected) == len(sess.Candidates) && len(sess.Candidates) > 0 {
		sess.Selected = make(map[int]bool)
	} else {
		for i := range sess.Candidates {
			sess.Selected[i] = true
		}
	}
	s.sessions.Set(id, sess)
	return sess, nil
}

// LinkSelected runs the sequential linking loop over the selected units.
// Each unit attempts two chained calls — link, then invoice sync — and a
// failure at either is recorded per-unit and skipped, never aborting the
// loop. The session always reaches success with the count of units that
// completed both calls. Only a pre-loop failure (validation, cancelled
// context) keeps the session at units.
func (s *LinkingService) LinkSelected(ctx context.Context, id string) (*domain.LinkingSession, *domain.LinkOutcome, error) {
	ctx, span := linkingTracer.Start(ctx, "Linking.LinkSelected")
	defer span.End()

	sess, err := s.acquire(id, domain.StepUnits, "link")
	if err != nil {
		return nil, nil, err
	}
	defer s.release(sess)

	if len(sess.Selected) == 0 {
		return nil, nil, &domain.ErrValidation{Field: "units", Message: "Selecione ao menos uma unidade"}
	}
	if err := ctx.Err(); err != nil {
		sess.LastError = err.Error()
		return nil, nil, err
	}

	indices := make([]int, 0, len(sess.Selected))
	for i := range sess.Selected {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	span.SetAttributes(attribute.Int("units.selected", len(indices)))

	outcome := &domain.LinkOutcome{Attempted: len(indices)}
	for _, i := range indices {
		unit := sess.Candidates[i]
		cdc, verifier, _ := unit.Normalized()
		result := domain.UnitLinkResult{CDC: cdc}

		localID, err := s.store.LinkUnit(ctx, sess.CPF, unit)
		if err != nil {
			s.logger.Warn("linking: unit link failed, continuing",
				zap.String("session_id", id),
				zap.Int("cdc", cdc),
				zap.Error(err),
			)
			s.metrics.IncrUnitLinked("link_failed")
			result.Error = err.Error()
			outcome.Results = append(outcome.Results, result)
			continue
		}
		result.Linked = true
		result.LocalID = localID

		if err := s.store.SyncInvoices(ctx, localID, cdc, verifier); err != nil {
			// The unit stays linked without synced invoices — accepted
			// partial state, not rolled back.
			s.logger.Warn("linking: invoice sync failed for linked unit",
				zap.String("session_id", id),
				zap.String("uc_id", localID),
				zap.Error(err),
			)
			s.metrics.IncrUnitLinked("sync_failed")
			result.Error = err.Error()
			outcome.Results = append(outcome.Results, result)
			continue
		}
		result.Synced = true

		s.metrics.IncrUnitLinked("linked")
		outcome.Succeeded++
		outcome.Results = append(outcome.Results, result)
	}

	sess.LinkedCount = outcome.Succeeded
	sess.LastError = ""
	sess.Step = domain.StepSuccess
	s.metrics.IncrSession("completed")

	s.logger.Info("linking: loop finished",
		zap.String("session_id", id),
		zap.Int("attempted", outcome.Attempted),
		zap.Int("succeeded", outcome.Succeeded),
	)
	return sess, outcome, nil
}

// Back moves the wizard one step backwards. From phone the session returns
// to cpf keeping the entered CPF and the transaction, clearing only the
// surfaced error. Back is rejected while a call is outstanding and at the
// terminal steps.
func (s *LinkingService) Back(id string) (*domain.LinkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "linking session", ID: id}
	}
	if sess.Busy {
		return nil, &domain.ErrSessionBusy{SessionID: id}
	}

	switch sess.Step {
	case domain.StepPhone:
		sess.Step = domain.StepCPF
		sess.LastError = ""
	case domain.StepSMS:
		sess.Step = domain.StepPhone
		sess.SMSCode = ""
		sess.LastError = ""
	case domain.StepUnits:
		sess.Step = domain.StepSMS
		sess.LastError = ""
	default:
		return nil, &domain.ErrInvalidTransition{From: sess.Step, Operation: "back"}
	}

	s.sessions.Set(id, sess)
	return sess, nil
}

// Restart clears every transient field and returns the session to cpf.
func (s *LinkingService) Restart(id string) (*domain.LinkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "linking session", ID: id}
	}
	if sess.Busy {
		return nil, &domain.ErrSessionBusy{SessionID: id}
	}

	*sess = domain.LinkingSession{
		ID:       sess.ID,
		Step:     domain.StepCPF,
		Selected: make(map[int]bool),
	}
	s.sessions.Set(id, sess)
	s.metrics.IncrSession("restarted")
	return sess, nil
}
