package domain

// Types for the utility-account linking workflow. A LinkingSession lives in
// memory for the duration of the wizard and is discarded on success, cancel
// or restart — it is never persisted.

// LinkingStep is the wizard's current step.
type LinkingStep string

const (
	StepCPF     LinkingStep = "cpf"
	StepPhone   LinkingStep = "phone"
	StepSMS     LinkingStep = "sms"
	StepUnits   LinkingStep = "units"
	StepSuccess LinkingStep = "success"
)

// CandidatePhone is one masked phone number offered by the provider for
// SMS delivery.
type CandidatePhone struct {
	Celular string `json:"celular"`
	Label   string `json:"label,omitempty"`
}

// CandidateUnit is one consumer unit enumerated from the provider account,
// before it is linked into the platform. Identity fields are pointers
// because the provider omits them for some accounts; Normalized applies
// the documented defaults at link time.
type CandidateUnit struct {
	CDC           *int   `json:"cdc"`
	VerifierDigit *int   `json:"digitoVerificador"`
	ProviderCode  *int   `json:"codigoConcessionaria"`
	HolderName    string `json:"titular,omitempty"`
	Street        string `json:"logradouro,omitempty"`
	Neighborhood  string `json:"bairro,omitempty"`
	Municipality  string `json:"municipio,omitempty"`
	// GeneratorField is nullable on the wire; non-nil signals a generator UC.
	GeneratorField *string `json:"usina,omitempty"`
}

// DefaultProviderCode is the concessionaria assumed when the provider
// omits the code. 6 is a valid code, not a missing-data sentinel.
const DefaultProviderCode = 6

// Normalized returns the unit identity with defaults applied: provider
// code 6, unit number and verifier digit 0 when absent.
func (c *CandidateUnit) Normalized() (cdc, verifierDigit, providerCode int) {
	if c.CDC != nil {
		cdc = *c.CDC
	}
	if c.VerifierDigit != nil {
		verifierDigit = *c.VerifierDigit
	}
	providerCode = DefaultProviderCode
	if c.ProviderCode != nil {
		providerCode = *c.ProviderCode
	}
	return cdc, verifierDigit, providerCode
}

// IsGenerator reports whether the provider flagged the unit as a usina.
func (c *CandidateUnit) IsGenerator() bool {
	return c.GeneratorField != nil
}

// LinkingSession is the transient state of one wizard run.
type LinkingSession struct {
	ID   string      `json:"id"`
	Step LinkingStep `json:"step"`

	CPF           string           `json:"cpf,omitempty"`
	TransactionID string           `json:"transactionId,omitempty"`
	Phones        []CandidatePhone `json:"phones,omitempty"`
	SelectedPhone string           `json:"selectedPhone,omitempty"`
	SMSCode       string           `json:"smsCode,omitempty"`

	Candidates []CandidateUnit `json:"candidates,omitempty"`
	// Selected holds the indices into Candidates chosen for linking.
	Selected map[int]bool `json:"selected,omitempty"`

	LinkedCount int    `json:"linkedCount"`
	LastError   string `json:"lastError,omitempty"`

	// Busy is set while a call for the current step is outstanding.
	// Transition requests while busy are rejected.
	Busy bool `json:"-"`
}

// UnitLinkResult is the per-unit outcome of the sequential linking loop.
// Only the aggregate count reaches the operator today, but the per-item
// errors are kept for diagnostics.
type UnitLinkResult struct {
	CDC     int    `json:"cdc"`
	LocalID string `json:"localId,omitempty"`
	Linked  bool   `json:"linked"`
	Synced  bool   `json:"synced"`
	Error   string `json:"error,omitempty"`
}

// LinkOutcome is the result of the full linking loop.
type LinkOutcome struct {
	Succeeded int              `json:"succeeded"`
	Attempted int              `json:"attempted"`
	Results   []UnitLinkResult `json:"results"`
}
