package matching

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fleetify/api/internal/store"
)

const (
	PaymentsEntity = "payments"
	InvoicesEntity = "invoices"

	StatusUnpaid        = "unpaid"
	StatusPartiallyPaid = "partially_paid"
	StatusPaid          = "paid"
)

type Payment struct {
	ID            uuid.UUID
	Number        string
	Amount        decimal.Decimal
	Date          time.Time
	Reference     string
	Notes         string
	CustomerID    uuid.UUID
	InvoiceID     uuid.UUID
	AppliedAmount decimal.Decimal
}

type Invoice struct {
	ID          uuid.UUID
	Number      string
	Date        time.Time
	Description string
	Total       decimal.Decimal
	Paid        decimal.Decimal
	Status      string
	CustomerID  uuid.UUID
}

// Balance is the amount still open on the invoice.
func (i Invoice) Balance() decimal.Decimal {
	return i.Total.Sub(i.Paid)
}

func PaymentFromRecord(rec store.Record) Payment {
	p := Payment{
		ID:            rec.ID,
		Number:        rec.NaturalKey,
		Amount:        rec.Data.Decimal("amount"),
		Reference:     rec.Data.Text("reference_number"),
		Notes:         rec.Data.Text("notes"),
		AppliedAmount: rec.Data.Decimal("applied_amount"),
	}
	p.Date, _ = rec.Data.Date("payment_date")
	p.CustomerID, _ = rec.Data.UUID("customer_id")
	p.InvoiceID, _ = rec.Data.UUID("invoice_id")
	return p
}

func InvoiceFromRecord(rec store.Record) Invoice {
	inv := Invoice{
		ID:          rec.ID,
		Number:      rec.NaturalKey,
		Description: rec.Data.Text("description"),
		Total:       rec.Data.Decimal("total_amount"),
		Paid:        rec.Data.Decimal("paid_amount"),
		Status:      rec.Data.Text("status"),
	}
	inv.Date, _ = rec.Data.Date("invoice_date")
	inv.CustomerID, _ = rec.Data.UUID("customer_id")
	return inv
}

// invoiceStatus derives the status from what has been paid.
func invoiceStatus(total, paid decimal.Decimal) string {
	switch {
	case paid.IsPositive() && paid.GreaterThanOrEqual(total):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartiallyPaid
	default:
		return StatusUnpaid
	}
}
