package domain

import "strings"

// PaymentStatus is the enumerated classification of an invoice's free-text
// status. The provider only exposes status as text ("Pago", "Pendente",
// "Fora do prazo", "Atrasado", ...), so classification happens here, at the
// boundary, and the rest of the code only sees the enum.
type PaymentStatus string

const (
	StatusPaid    PaymentStatus = "paid"
	StatusPending PaymentStatus = "pending"
	StatusOther   PaymentStatus = "other"
)

// pendingMarkers are the substrings the provider uses for not-yet-paid
// invoices. The contract is substring match on the lowercased text.
var pendingMarkers = []string{"pendente", "fora do prazo", "atrasado"}

// ClassifyStatus maps the provider's free-text invoice status to a
// PaymentStatus. "pago" is checked first, matching the original contract.
func ClassifyStatus(raw string) PaymentStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return StatusOther
	}
	if strings.Contains(s, "pago") {
		return StatusPaid
	}
	for _, m := range pendingMarkers {
		if strings.Contains(s, m) {
			return StatusPending
		}
	}
	return StatusOther
}
