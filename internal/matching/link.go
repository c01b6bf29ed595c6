package matching

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fleetify/api/internal/store"
)

var (
	ErrAlreadyLinked  = errors.New("payment is already linked to another invoice")
	ErrInvoiceSettled = errors.New("invoice has no open balance")
	ErrInvalidAmount  = errors.New("payment amount must be greater than zero")
)

type LinkResult struct {
	PaymentID         uuid.UUID       `json:"paymentId"`
	InvoiceID         uuid.UUID       `json:"invoiceId"`
	InvoiceNumber     string          `json:"invoiceNumber,omitempty"`
	PreviousInvoiceID *uuid.UUID      `json:"previousInvoiceId,omitempty"`
	Applied           decimal.Decimal `json:"appliedAmount"`
	InvoiceStatus     string          `json:"invoiceStatus"`
	InvoiceBalance    decimal.Decimal `json:"invoiceBalance"`
	Changed           bool            `json:"changed"`
}

// Linker applies a payment to an invoice in one transaction.
type Linker struct {
	store store.Store
}

func NewLinker(s store.Store) *Linker {
	return &Linker{store: s}
}

func (l *Linker) Link(ctx context.Context, tenantID, paymentID, invoiceID uuid.UUID, relink bool) (LinkResult, error) {
	var result LinkResult
	err := l.store.InTx(ctx, func(tx store.Store) error {
		var err error
		result, err = Link(ctx, tx, tenantID, paymentID, invoiceID, relink)
		return err
	})
	if err != nil {
		return LinkResult{}, err
	}
	return result, nil
}

// Link credits the invoice with min(payment amount, open balance) and
// records the invoice on the payment. The payment and invoice rows are
// locked for the rest of s's transaction, so s should be transactional.
//
// Linking to the invoice the payment already carries re-applies the
// payment against that invoice: it changes nothing unless the payment
// amount changed since the credit was taken. Moving to another invoice
// requires relink and first reverses the earlier credit.
func Link(ctx context.Context, s store.Store, tenantID, paymentID, invoiceID uuid.UUID, relink bool) (LinkResult, error) {
	paymentRec, err := s.GetForUpdate(ctx, tenantID, PaymentsEntity, paymentID)
	if err != nil {
		return LinkResult{}, fmt.Errorf("load payment: %w", err)
	}
	payment := PaymentFromRecord(paymentRec)

	previous := payment.InvoiceID
	moving := previous != uuid.Nil && previous != invoiceID
	if moving && relink && bytes.Compare(previous[:], invoiceID[:]) < 0 {
		// Invoices are locked in id order so crossing relinks cannot deadlock.
		if _, err := s.GetForUpdate(ctx, tenantID, InvoicesEntity, previous); err != nil && !errors.Is(err, store.ErrNotFound) {
			return LinkResult{}, fmt.Errorf("load previous invoice: %w", err)
		}
	}

	invoiceRec, err := s.GetForUpdate(ctx, tenantID, InvoicesEntity, invoiceID)
	if err != nil {
		return LinkResult{}, fmt.Errorf("load invoice: %w", err)
	}
	invoice := InvoiceFromRecord(invoiceRec)

	result := LinkResult{PaymentID: paymentID, InvoiceID: invoiceID, InvoiceNumber: invoice.Number}
	if previous == invoiceID {
		return reapply(ctx, s, tenantID, payment, invoice, result)
	}
	if moving && !relink {
		return LinkResult{}, fmt.Errorf("payment %s is linked to invoice %s: %w", paymentID, previous, ErrAlreadyLinked)
	}
	if !payment.Amount.IsPositive() {
		return LinkResult{}, ErrInvalidAmount
	}
	balance := invoice.Balance()
	if !balance.IsPositive() {
		return LinkResult{}, fmt.Errorf("invoice %s: %w", invoice.Number, ErrInvoiceSettled)
	}

	if moving {
		result.PreviousInvoiceID = &previous
		if err := reverse(ctx, s, tenantID, previous, payment.AppliedAmount); err != nil {
			return LinkResult{}, err
		}
	}

	applied := decimal.Min(payment.Amount, balance)
	if err := apply(ctx, s, tenantID, paymentID, invoice, invoice.Paid.Add(applied), applied, &result); err != nil {
		return LinkResult{}, err
	}
	return result, nil
}

// reapply brings the credit a linked payment holds on its invoice in line
// with the payment amount, capped at what the invoice can take back.
func reapply(ctx context.Context, s store.Store, tenantID uuid.UUID, payment Payment, invoice Invoice, result LinkResult) (LinkResult, error) {
	if !payment.Amount.IsPositive() {
		return LinkResult{}, ErrInvalidAmount
	}
	room := decimal.Max(decimal.Zero, invoice.Balance().Add(payment.AppliedAmount))
	applied := decimal.Min(payment.Amount, room)
	if applied.Equal(payment.AppliedAmount) {
		result.Applied = payment.AppliedAmount
		result.InvoiceStatus = invoice.Status
		result.InvoiceBalance = invoice.Balance()
		return result, nil
	}
	paid := invoice.Paid.Sub(payment.AppliedAmount).Add(applied)
	if err := apply(ctx, s, tenantID, payment.ID, invoice, paid, applied, &result); err != nil {
		return LinkResult{}, err
	}
	return result, nil
}

func apply(ctx context.Context, s store.Store, tenantID, paymentID uuid.UUID, invoice Invoice, paid, applied decimal.Decimal, result *LinkResult) error {
	status := invoiceStatus(invoice.Total, paid)
	if _, err := s.Update(ctx, tenantID, InvoicesEntity, invoice.ID, store.Data{
		"paid_amount": paid.String(),
		"status":      status,
	}); err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if _, err := s.Update(ctx, tenantID, PaymentsEntity, paymentID, store.Data{
		"invoice_id":     invoice.ID.String(),
		"applied_amount": applied.String(),
	}); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	result.Applied = applied
	result.InvoiceStatus = status
	result.InvoiceBalance = invoice.Total.Sub(paid)
	result.Changed = true
	return nil
}

// reverse takes a previously applied credit back off an invoice. A deleted
// invoice has nothing to reverse.
func reverse(ctx context.Context, s store.Store, tenantID, invoiceID uuid.UUID, applied decimal.Decimal) error {
	rec, err := s.GetForUpdate(ctx, tenantID, InvoicesEntity, invoiceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load previous invoice: %w", err)
	}
	inv := InvoiceFromRecord(rec)
	paid := decimal.Max(decimal.Zero, inv.Paid.Sub(applied))
	if _, err := s.Update(ctx, tenantID, InvoicesEntity, invoiceID, store.Data{
		"paid_amount": paid.String(),
		"status":      invoiceStatus(inv.Total, paid),
	}); err != nil {
		return fmt.Errorf("reverse previous invoice: %w", err)
	}
	return nil
}
