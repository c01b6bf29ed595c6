package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

// exerciseStore runs the behaviour every Store implementation shares.
func exerciseStore(t *testing.T, s Store, tenantA, tenantB uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	created, err := s.Create(ctx, tenantA, "customers", Record{NaturalKey: "CUS-0007", Data: Data{"name": "Ahmed Ali", "phone": "96555512345"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == uuid.Nil || created.TenantID != tenantA || created.Entity != "customers" {
		t.Fatalf("unexpected created record %+v", created)
	}

	if _, err := s.Create(ctx, tenantA, "customers", Record{NaturalKey: "CUS-0007", Data: Data{"name": "Other"}}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate key, got %v", err)
	}
	if _, err := s.Create(ctx, tenantB, "customers", Record{NaturalKey: "CUS-0007", Data: Data{"name": "Tenant B"}}); err != nil {
		t.Fatalf("same key in another tenant should be allowed: %v", err)
	}
	if _, err := s.Create(ctx, tenantA, "customers", Record{Data: Data{"name": "Ahmed Hassan"}}); err != nil {
		t.Fatalf("create without key: %v", err)
	}
	if _, err := s.Create(ctx, tenantA, "customers", Record{NaturalKey: "CUS-0012", Data: Data{"name": "Sara"}}); err != nil {
		t.Fatalf("create second keyed: %v", err)
	}
	if _, err := s.Create(ctx, tenantA, "customers", Record{NaturalKey: "CUS-LEGACY", Data: Data{"name": "Legacy"}}); err != nil {
		t.Fatalf("create non-numeric key: %v", err)
	}

	got, err := s.Get(ctx, tenantA, "customers", created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Data.Text("name") != "Ahmed Ali" {
		t.Fatalf("expected name Ahmed Ali, got %q", got.Data.Text("name"))
	}
	if _, err := s.Get(ctx, tenantB, "customers", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cross-tenant get to fail with ErrNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, tenantA, "vendors", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrong-entity get to fail with ErrNotFound, got %v", err)
	}

	byKey, err := s.FindByNaturalKey(ctx, tenantA, "customers", "CUS-0007")
	if err != nil || byKey.ID != created.ID {
		t.Fatalf("find by key: %v %+v", err, byKey)
	}
	if _, err := s.FindByNaturalKey(ctx, tenantA, "customers", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty key should not match, got %v", err)
	}

	ahmeds, err := s.Find(ctx, tenantA, "customers", Filter{Contains: map[string]string{"name": "ahmed"}})
	if err != nil {
		t.Fatalf("find contains: %v", err)
	}
	if len(ahmeds) != 2 {
		t.Fatalf("expected 2 ahmeds in tenant A, got %d", len(ahmeds))
	}
	limited, err := s.Find(ctx, tenantA, "customers", Filter{Contains: map[string]string{"name": "ahmed"}, Limit: 1})
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected limit 1, got %d (%v)", len(limited), err)
	}
	withPhone, err := s.Find(ctx, tenantA, "customers", Filter{
		Eq:       map[string]string{"phone": "96555512345"},
		Contains: map[string]string{"name": "ahmed"},
	})
	if err != nil || len(withPhone) != 1 || withPhone[0].ID != created.ID {
		t.Fatalf("expected phone-narrowed match, got %d (%v)", len(withPhone), err)
	}
	literal, err := s.Find(ctx, tenantA, "customers", Filter{Contains: map[string]string{"name": "%"}})
	if err != nil || len(literal) != 0 {
		t.Fatalf("expected %% to match literally, got %d (%v)", len(literal), err)
	}

	updated, err := s.Update(ctx, tenantA, "customers", created.ID, Data{"email": "ahmed@example.com"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Data.Text("name") != "Ahmed Ali" || updated.Data.Text("email") != "ahmed@example.com" {
		t.Fatalf("update should merge data, got %+v", updated.Data)
	}
	if _, err := s.Update(ctx, tenantB, "customers", created.ID, Data{"name": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cross-tenant update to fail, got %v", err)
	}

	last, err := s.LastSequence(ctx, tenantA, "customers", "CUS-")
	if err != nil {
		t.Fatalf("last sequence: %v", err)
	}
	if last != 12 {
		t.Fatalf("expected last sequence 12, got %d", last)
	}
	if last, _ := s.LastSequence(ctx, tenantA, "vendors", "VEN-"); last != 0 {
		t.Fatalf("expected 0 for empty entity, got %d", last)
	}

	failure := errors.New("boom")
	err = s.InTx(ctx, func(tx Store) error {
		if _, err := tx.Create(ctx, tenantA, "customers", Record{NaturalKey: "CUS-0099", Data: Data{"name": "Rolled back"}}); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected tx error, got %v", err)
	}
	if _, err := s.FindByNaturalKey(ctx, tenantA, "customers", "CUS-0099"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rolled back record should not exist, got %v", err)
	}

	if err := s.InTx(ctx, func(tx Store) error {
		_, err := tx.Create(ctx, tenantA, "customers", Record{NaturalKey: "CUS-0100", Data: Data{"name": "Committed"}})
		return err
	}); err != nil {
		t.Fatalf("commit tx: %v", err)
	}
	if _, err := s.FindByNaturalKey(ctx, tenantA, "customers", "CUS-0100"); err != nil {
		t.Fatalf("committed record should exist: %v", err)
	}

	err = s.InTx(ctx, func(tx Store) error {
		locked, err := tx.GetForUpdate(ctx, tenantA, "customers", created.ID)
		if err != nil {
			return err
		}
		if locked.Data.Text("name") != "Ahmed Ali" {
			t.Fatalf("locked read returned %+v", locked.Data)
		}
		if _, err := tx.GetForUpdate(ctx, tenantB, "customers", created.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected cross-tenant locked read to fail with ErrNotFound, got %v", err)
		}
		return tx.InTx(ctx, func(inner Store) error {
			_, err := inner.Create(ctx, tenantA, "customers", Record{NaturalKey: "CUS-0101", Data: Data{"name": "Nested"}})
			return err
		})
	})
	if err != nil {
		t.Fatalf("locked tx: %v", err)
	}
	if _, err := s.FindByNaturalKey(ctx, tenantA, "customers", "CUS-0101"); err != nil {
		t.Fatalf("nested tx record should exist: %v", err)
	}

	if err := s.Delete(ctx, tenantA, "customers", created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, tenantA, "customers", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}
	if _, err := s.Create(ctx, tenantA, "customers", Record{NaturalKey: "CUS-0007", Data: Data{"name": "Reused"}}); err != nil {
		t.Fatalf("key should be free after delete: %v", err)
	}
}

func TestDataAccessors(t *testing.T) {
	d := Data{
		"amount":  "1500.50",
		"count":   float64(3),
		"flag":    true,
		"date":    "2025-01-15",
		"bad":     "15/01/2025",
		"id":      "0b8f1c1e-9a7f-4a43-8d0e-6b1f1d2c3a4b",
		"nested":  map[string]any{"total": float64(2)},
		"missing": nil,
	}
	if got := d.Decimal("amount").String(); got != "1500.5" {
		t.Fatalf("expected 1500.5, got %s", got)
	}
	if got := d.Text("count"); got != "3" {
		t.Fatalf("expected 3, got %q", got)
	}
	if got := d.Text("flag"); got != "true" {
		t.Fatalf("expected true, got %q", got)
	}
	if got := d.Text("missing"); got != "" {
		t.Fatalf("expected empty text for nil, got %q", got)
	}
	if !d.Decimal("absent").IsZero() {
		t.Fatalf("expected zero decimal for absent key")
	}
	if date, ok := d.Date("date"); !ok || date.Day() != 15 {
		t.Fatalf("expected parsed date, got %v %v", date, ok)
	}
	if _, ok := d.Date("bad"); ok {
		t.Fatalf("expected non-ISO date to be rejected")
	}
	if _, ok := d.UUID("id"); !ok {
		t.Fatalf("expected uuid to parse")
	}
	var nested struct {
		Total int `json:"total"`
	}
	if err := d.Decode("nested", &nested); err != nil || nested.Total != 2 {
		t.Fatalf("decode nested: %v %+v", err, nested)
	}
	if err := d.Decode("absent", &nested); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound decoding absent key, got %v", err)
	}
}
