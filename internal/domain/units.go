package domain

// ConsumerUnit (UC) is a metered consumer or generator connection point
// registered with the utility provider and mirrored by the platform backend.
type ConsumerUnit struct {
	ID             string  `json:"id"`
	CDC            int     `json:"cdc"`            // provider-assigned unit code
	VerifierDigit  int     `json:"digitoVerificador"`
	ProviderCode   int     `json:"codigoConcessionaria"`
	CompanyID      string  `json:"companyId,omitempty"`
	Active         bool    `json:"active"`
	ContractActive bool    `json:"contractActive"`
	Generator      bool    `json:"generator"`
	BalanceKWH     float64 `json:"saldoAcumulado"` // accumulated GD credit (kWh)
	HolderName     string  `json:"titular,omitempty"`
	Street         string  `json:"logradouro,omitempty"`
	Neighborhood   string  `json:"bairro,omitempty"`
	Municipality   string  `json:"municipio,omitempty"`
	State          string  `json:"uf,omitempty"`
}

// EligibleForInvoices reports whether invoices can be fetched for the unit.
// Both activity flags must be set.
func (u *ConsumerUnit) EligibleForInvoices() bool {
	return u.Active && u.ContractActive
}

// Beneficiary is a UC receiving a rateio share of a generator's injected
// credit. Percentages are independently specified per beneficiary; the
// provider does not enforce that they sum to 100.
type Beneficiary struct {
	UnitID       string  `json:"unitId"`
	CDC          int     `json:"cdc"`
	Percentage   float64 `json:"percentualRateio"`
	Street       string  `json:"logradouro,omitempty"`
	Neighborhood string  `json:"bairro,omitempty"`
	Municipality string  `json:"municipio,omitempty"`
}

// GeneratorPlant (usina) is a generator-type UC plus its beneficiary tree.
type GeneratorPlant struct {
	Unit          ConsumerUnit  `json:"unit"`
	Beneficiaries []Beneficiary `json:"beneficiarias"`
}

// Company groups consumer units under one corporate registration.
type Company struct {
	ID               string `json:"id"`
	Name             string `json:"razaoSocial"`
	Document         string `json:"cnpj"`
	ConnectionStatus string `json:"connectionStatus"` // "connected", "pending", "error"
}
