package domain

import "fmt"

// Error types for consistent error handling across the BFA.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrProviderRejected indicates the utility provider rejected a request.
// Message carries the server-supplied detail when present, so it can be
// surfaced to the operator verbatim.
type ErrProviderRejected struct {
	Step    string
	Message string
}

func (e *ErrProviderRejected) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("provider rejected request at step %s", e.Step)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrForbidden indicates the caller lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrConflict indicates a resource already exists (e.g. UC already linked).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrInvalidCode indicates an invalid or expired SMS verification code.
type ErrInvalidCode struct{}

func (e *ErrInvalidCode) Error() string {
	return "Código inválido ou expirado"
}

// ErrSessionBusy indicates a transition was requested while a call from the
// current step is still outstanding.
type ErrSessionBusy struct {
	SessionID string
}

func (e *ErrSessionBusy) Error() string {
	return "Aguarde a conclusão da operação em andamento"
}

// ErrInvalidTransition indicates an operation that is not valid for the
// session's current step.
type ErrInvalidTransition struct {
	From      LinkingStep
	Operation string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("operation %s not allowed in step %s", e.Operation, e.From)
}
