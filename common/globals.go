package common

const (
	InvoiceStatusPending    = "pending"
	InvoiceStatusPaid       = "paid"
	InvoiceStatusInProgress = "in_progress"
	InvoiceStatusDelivered  = "delivered"
	InvoiceStatusFailed     = "failed"
	InvoiceStatusCancelled  = "cancelled"

	PaymentStatusPending   = "pending"
	PaymentStatusConfirmed = "confirmed"
	PaymentStatusFailed    = "failed"

	ServiceTypeResearch = "research"
	ServiceTypeScript   = "script"
	ServiceTypeLogo     = "logo"
)

// TerminalInvoiceStatus reports whether no further automatic transition can
// happen for an invoice in the given status.
func TerminalInvoiceStatus(status string) bool {
	return status == InvoiceStatusDelivered ||
		status == InvoiceStatusFailed ||
		status == InvoiceStatusCancelled
}
