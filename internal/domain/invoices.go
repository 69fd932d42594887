package domain

// Invoice is a provider invoice for one consumer unit.
type Invoice struct {
	ID        string  `json:"id"`
	UnitID    string  `json:"unitId"`
	Month     int     `json:"mes"`
	Year      int     `json:"ano"`
	DueDate   string  `json:"vencimento"` // ISO date, provider-supplied
	Amount    float64 `json:"valor"`
	RawStatus string  `json:"situacao"` // free text from the provider
	Barcode   string  `json:"codigoBarras,omitempty"`
	PixCopy   string  `json:"pixCopiaECola,omitempty"`
}

// Status returns the classified payment status of the invoice.
func (i *Invoice) Status() PaymentStatus {
	return ClassifyStatus(i.RawStatus)
}
