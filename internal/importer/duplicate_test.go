package importer

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/fleetify/api/internal/store"
)

func TestGuardCheck(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	tenantID := uuid.New()
	existing := seed(t, s, tenantID, "payments", "PAY-0001", store.Data{"amount": "10"})

	tests := []struct {
		name   string
		opts   Options
		tenant uuid.UUID
		key    string
		want   Disposition
	}{
		{name: "new key", key: "PAY-0002", tenant: tenantID, want: DispositionInsert},
		{name: "no key", key: "", tenant: tenantID, want: DispositionInsert},
		{name: "duplicate skipped", key: "PAY-0001", tenant: tenantID, want: DispositionSkip},
		{name: "duplicate upserted", key: "PAY-0001", tenant: tenantID, opts: Options{Upsert: true}, want: DispositionUpdate},
		{name: "other tenant", key: "PAY-0001", tenant: uuid.New(), want: DispositionInsert},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := NewGuard(s, tt.tenant, PolicyFor(tt.opts)).Check(ctx, "payments", tt.key)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if decision.Disposition != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, decision.Disposition)
			}
			if tt.want != DispositionInsert && (decision.Existing == nil || decision.Existing.ID != existing.ID) {
				t.Fatalf("expected the existing record, got %+v", decision.Existing)
			}
		})
	}
}

func TestPolicyFor(t *testing.T) {
	if PolicyFor(Options{}) != PolicySkipDuplicates {
		t.Fatalf("default policy should skip duplicates")
	}
	if PolicyFor(Options{Upsert: true}) != PolicyUpsert {
		t.Fatalf("upsert option should select upsert")
	}
}
