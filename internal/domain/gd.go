package domain

// Types for the distributed-generation (GD) monthly history and the
// aggregates derived from it. Field names mirror the provider's JSON
// (discriminacao/composicao) so the wire mapping stays obvious.

// MonthlyGDRecord is one row per (unit, month, year) of GD history.
type MonthlyGDRecord struct {
	UnitID           string  `json:"unitId"`
	Month            int     `json:"mes"`
	Year             int     `json:"ano"`
	PreviousBalance  float64 `json:"saldoAnterior"`
	Injected         float64 `json:"energiaInjetada"`
	Received         float64 `json:"energiaRecebida"`
	CompensatedSelf  float64 `json:"compensadoProprio"`
	CompensatedTrans float64 `json:"compensadoTransferido"`

	// Per-counterparty transferred amounts for the month.
	Discriminacao []InjectionBreakdown `json:"discriminacaoEnergiaInjetadas"`
	// Per-vintage balance composition for the month.
	Composicao []BalanceComposition `json:"composicaoEnergiaInjetadas"`
}

// InjectionBreakdown is one per-counterparty transferred amount inside a
// monthly record.
type InjectionBreakdown struct {
	CounterpartyID string  `json:"cdcBeneficiaria"`
	Amount         float64 `json:"quantidade"`
	Month          int     `json:"mesReferencia"`
	Year           int     `json:"anoReferencia"`
	Street         string  `json:"logradouro,omitempty"`
	Neighborhood   string  `json:"bairro,omitempty"`
	Municipality   string  `json:"municipio,omitempty"`
}

// BalanceComposition is one per-vintage slice of the unit's credit balance,
// tagged with the month the credit was generated.
type BalanceComposition struct {
	Month           int     `json:"mesReferencia"`
	Year            int     `json:"anoReferencia"`
	PreviousBalance float64 `json:"saldoAnterior"`
}

// CreditVintage is a derived view of a BalanceComposition entry with its
// expiry countdown. Credits expire 60 months after their reference month.
type CreditVintage struct {
	Month           int          `json:"mes"`
	Year            int          `json:"ano"`
	BalanceKWH      float64      `json:"saldo"`
	MonthsRemaining int          `json:"mesesRestantes"`
	Classification  VintageClass `json:"classificacao"`
}

// VintageClass classifies a credit vintage by how close it is to expiry.
type VintageClass string

const (
	VintageHealthy      VintageClass = "healthy"
	VintageExpiringSoon VintageClass = "expiring_soon"
	VintageExpired      VintageClass = "expired"
)

// GDTotals are the aggregate metrics over a unit's full GD history.
type GDTotals struct {
	Injected          float64 `json:"energiaInjetada"`
	Transferred       float64 `json:"energiaTransferida"`
	CompensatedSelf   float64 `json:"compensadoProprio"`
	EfficiencyPercent float64 `json:"eficiencia"`
	CurrentBalance    float64 `json:"saldoAtual"`
}

// ChartPoint is one bar of the 12-month injection/transfer chart.
// Heights are normalized against the max observed across both series.
type ChartPoint struct {
	Month             int     `json:"mes"`
	Year              int     `json:"ano"`
	Injected          float64 `json:"energiaInjetada"`
	Transferred       float64 `json:"energiaTransferida"`
	InjectedNormal    float64 `json:"energiaInjetadaNorm"`
	TransferredNormal float64 `json:"energiaTransferidaNorm"`
}

// CounterpartySummary is the accumulated transfer total toward one
// beneficiary UC, with the ordered per-month contributions retained.
type CounterpartySummary struct {
	CounterpartyID string               `json:"cdcBeneficiaria"`
	Total          float64              `json:"total"`
	Street         string               `json:"logradouro,omitempty"`
	Neighborhood   string               `json:"bairro,omitempty"`
	Municipality   string               `json:"municipio,omitempty"`
	Contributions  []InjectionBreakdown `json:"contribuicoes"`
}

// DashboardSummary is the cross-entity rollup shown on the landing screen.
type DashboardSummary struct {
	Companies          int     `json:"companies"`
	CompaniesConnected int     `json:"companiesConnected"`
	Units              int     `json:"units"`
	Generators         int     `json:"generators"`
	Invoices           int     `json:"invoices"`
	InvoicesPaid       int     `json:"invoicesPaid"`
	InvoicesPending    int     `json:"invoicesPending"`
	AmountPaid         float64 `json:"amountPaid"`
	AmountPending      float64 `json:"amountPending"`
	TotalBalanceKWH    float64 `json:"totalBalanceKwh"`
}

// GDSummary is the consolidated per-operator summary returned by the
// platform backend (GET /ucs/gd/resumo).
type GDSummary struct {
	Units      []ConsumerUnit    `json:"ucs"`
	History    []MonthlyGDRecord `json:"historico"`
	LastSyncAt string            `json:"ultimaSincronizacao,omitempty"`
}

// SyncResult is the platform backend's response to a triggered GD sync.
type SyncResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Stats   map[string]int `json:"stats,omitempty"`
}
