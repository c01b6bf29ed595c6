package matching

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fleetify/api/internal/store"
)

// Finder loads payments and candidate invoices for one tenant.
type Finder struct {
	store store.Store
	limit int
}

// NewFinder caps each open-invoice query at limit records; limit <= 0
// means no cap.
func NewFinder(s store.Store, limit int) *Finder {
	return &Finder{store: s, limit: limit}
}

func (f *Finder) Payment(ctx context.Context, tenantID, paymentID uuid.UUID) (Payment, error) {
	rec, err := f.store.Get(ctx, tenantID, PaymentsEntity, paymentID)
	if err != nil {
		return Payment{}, fmt.Errorf("load payment: %w", err)
	}
	return PaymentFromRecord(rec), nil
}

// OpenInvoices returns unpaid and partially paid invoices with a positive
// balance, restricted to customerID unless it is uuid.Nil.
func (f *Finder) OpenInvoices(ctx context.Context, tenantID, customerID uuid.UUID) ([]Invoice, error) {
	var out []Invoice
	for _, status := range []string{StatusUnpaid, StatusPartiallyPaid} {
		eq := map[string]string{"status": status}
		if customerID != uuid.Nil {
			eq["customer_id"] = customerID.String()
		}
		recs, err := f.store.Find(ctx, tenantID, InvoicesEntity, store.Filter{Eq: eq, Limit: f.limit})
		if err != nil {
			return nil, fmt.Errorf("load open invoices: %w", err)
		}
		for _, rec := range recs {
			inv := InvoiceFromRecord(rec)
			if inv.Balance().IsPositive() {
				out = append(out, inv)
			}
		}
	}
	return out, nil
}

// Matcher ranks open invoices for a persisted payment.
type Matcher struct {
	finder *Finder
	scorer *Scorer
}

func NewMatcher(finder *Finder, scorer *Scorer) *Matcher {
	return &Matcher{finder: finder, scorer: scorer}
}

// Suggest returns at most limit candidates at or above minConfidence.
// A payment already linked to an invoice still gets suggestions.
func (m *Matcher) Suggest(ctx context.Context, tenantID, paymentID uuid.UUID, limit int, minConfidence float64) ([]Candidate, error) {
	payment, err := m.finder.Payment(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	invoices, err := m.finder.OpenInvoices(ctx, tenantID, payment.CustomerID)
	if err != nil {
		return nil, err
	}
	ranked := m.scorer.Rank(payment, invoices)
	out := ranked[:0]
	for _, c := range ranked {
		if c.Confidence < minConfidence {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
