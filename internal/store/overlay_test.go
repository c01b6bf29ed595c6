package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestOverlayStore(t *testing.T) {
	exerciseStore(t, NewOverlay(NewMemory()), uuid.New(), uuid.New())
}

func TestOverlayLeavesBaseUntouched(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	tenantID := uuid.New()

	invoice, err := base.Create(ctx, tenantID, "invoices", Record{NaturalKey: "INV-0001", Data: Data{"balance": "250"}})
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	victim, err := base.Create(ctx, tenantID, "invoices", Record{NaturalKey: "INV-0002", Data: Data{"balance": "900"}})
	if err != nil {
		t.Fatalf("seed second invoice: %v", err)
	}

	overlay := NewOverlay(base)
	if _, err := overlay.Update(ctx, tenantID, "invoices", invoice.ID, Data{"balance": "0"}); err != nil {
		t.Fatalf("overlay update: %v", err)
	}
	if _, err := overlay.Create(ctx, tenantID, "invoices", Record{NaturalKey: "INV-0009", Data: Data{"balance": "10"}}); err != nil {
		t.Fatalf("overlay create: %v", err)
	}
	if err := overlay.Delete(ctx, tenantID, "invoices", victim.ID); err != nil {
		t.Fatalf("overlay delete: %v", err)
	}

	seen, err := overlay.Get(ctx, tenantID, "invoices", invoice.ID)
	if err != nil || seen.Data.Text("balance") != "0" {
		t.Fatalf("overlay should see its own update, got %v %+v", err, seen.Data)
	}
	if _, err := overlay.Get(ctx, tenantID, "invoices", victim.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("overlay should hide deleted record, got %v", err)
	}
	all, err := overlay.Find(ctx, tenantID, "invoices", Filter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 invoices through overlay, got %d (%v)", len(all), err)
	}
	open, err := overlay.Find(ctx, tenantID, "invoices", Filter{Eq: map[string]string{"balance": "250"}})
	if err != nil || len(open) != 0 {
		t.Fatalf("shadowed base value must not match, got %d (%v)", len(open), err)
	}
	if last, _ := overlay.LastSequence(ctx, tenantID, "invoices", "INV-"); last != 9 {
		t.Fatalf("expected overlay last sequence 9, got %d", last)
	}

	original, err := base.Get(ctx, tenantID, "invoices", invoice.ID)
	if err != nil || original.Data.Text("balance") != "250" {
		t.Fatalf("base record changed: %v %+v", err, original.Data)
	}
	if _, err := base.Get(ctx, tenantID, "invoices", victim.ID); err != nil {
		t.Fatalf("base record deleted: %v", err)
	}
	if _, err := base.FindByNaturalKey(ctx, tenantID, "invoices", "INV-0009"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("overlay create leaked to base: %v", err)
	}
	if last, _ := base.LastSequence(ctx, tenantID, "invoices", "INV-"); last != 2 {
		t.Fatalf("expected base last sequence 2, got %d", last)
	}
}

func TestOverlayRejectsBaseKeyConflict(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	tenantID := uuid.New()
	if _, err := base.Create(ctx, tenantID, "payments", Record{NaturalKey: "PAY-0001"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	overlay := NewOverlay(base)
	if _, err := overlay.Create(ctx, tenantID, "payments", Record{NaturalKey: "PAY-0001"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict against base key, got %v", err)
	}
}
