package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/fleetify/api/internal/config"
	"github.com/fleetify/api/internal/matching"
	"github.com/fleetify/api/internal/runs"
	"github.com/fleetify/api/internal/store"
)

type testCLI struct {
	store    *store.Memory
	tenantID uuid.UUID
	userID   uuid.UUID
	opened   int
}

func newTestCLI() *testCLI {
	return &testCLI{store: store.NewMemory(), tenantID: uuid.New(), userID: uuid.New()}
}

func (tc *testCLI) deps() Deps {
	return Deps{
		Config: config.Config{ImportMaxRows: 100, Currency: "USD", MatchPoolLimit: 100},
		OpenStore: func(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
			tc.opened++
			return tc.store, func() {}, nil
		},
	}
}

func (tc *testCLI) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(tc.deps())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestVersion(t *testing.T) {
	out, err := newTestCLI().run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "Version:    dev") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestKindsListsCatalog(t *testing.T) {
	tc := newTestCLI()
	out, err := tc.run(t, "kinds")
	if err != nil {
		t.Fatalf("kinds: %v", err)
	}
	for _, want := range []string{"KIND", "customers", "payments", "invoice_date, total_amount"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if tc.opened != 0 {
		t.Fatalf("kinds should not open the store")
	}
}

func TestTemplate(t *testing.T) {
	tc := newTestCLI()
	out, err := tc.run(t, "template", "customers", "--format", "csv", "-o", "-")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if !strings.HasPrefix(out, "customer_code,name,phone,email,national_id,address\n") {
		t.Fatalf("unexpected csv template %q", out)
	}

	path := filepath.Join(t.TempDir(), "payments.xlsx")
	if _, err := tc.run(t, "template", "payments", "-o", path); err != nil {
		t.Fatalf("xlsx template: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read template: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("PK")) {
		t.Fatalf("expected a zip container")
	}

	if _, err := tc.run(t, "template", "spaceships"); err == nil || !strings.Contains(err.Error(), "unknown import kind") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
	if _, err := tc.run(t, "template", "customers", "--format", "pdf", "-o", "-"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestImportFile(t *testing.T) {
	tc := newTestCLI()
	path := writeFile(t, "customers.csv", "Customer Name,Mobile\nAhmed Al-Sabah,55551234\nSara Al-Ali,\n")

	out, err := tc.run(t, "import", path, "--kind", "customers", "--tenant", tc.tenantID.String(), "--user", tc.userID.String())
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	if !strings.Contains(out, "total 2, successful 2, failed 0, skipped 0") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
	customers, err := tc.store.Find(context.Background(), tc.tenantID, "customers", store.Filter{})
	if err != nil {
		t.Fatalf("find customers: %v", err)
	}
	if len(customers) != 2 {
		t.Fatalf("expected 2 customers, got %d", len(customers))
	}
	recorded, err := tc.store.Find(context.Background(), tc.tenantID, runs.Entity, store.Filter{})
	if err != nil {
		t.Fatalf("find runs: %v", err)
	}
	if len(recorded) != 1 || recorded[0].Data.Text("status") != string(runs.StatusCompleted) {
		t.Fatalf("expected one completed run, got %+v", recorded)
	}
}

func TestImportDryRunWritesNothing(t *testing.T) {
	tc := newTestCLI()
	path := writeFile(t, "customers.csv", "name\nAhmed Al-Sabah\n")

	out, err := tc.run(t, "import", path, "-k", "customers", "--tenant", tc.tenantID.String(), "--user", tc.userID.String(), "--dry-run")
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	if !strings.Contains(out, "(dry_run)") {
		t.Fatalf("expected dry run mode in output:\n%s", out)
	}
	customers, _ := tc.store.Find(context.Background(), tc.tenantID, "customers", store.Filter{})
	if len(customers) != 0 {
		t.Fatalf("dry run wrote %d customers", len(customers))
	}
}

func TestImportReportsFailedRows(t *testing.T) {
	tc := newTestCLI()
	path := writeFile(t, "invoices.csv", "invoice_date,total_amount\n,100\n")
	report := filepath.Join(t.TempDir(), "errors.csv")

	out, err := tc.run(t, "import", path, "--kind", "invoices", "--tenant", tc.tenantID.String(), "--user", tc.userID.String(), "--errors", report)
	if err == nil || !strings.Contains(err.Error(), "1 of 1 rows failed") {
		t.Fatalf("expected failed rows error, got %v\n%s", err, out)
	}
	if !strings.Contains(out, "row 2:") {
		t.Fatalf("expected row 2 in output:\n%s", out)
	}
	raw, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "2,error,failed,normalize,invoice_date,") {
		t.Fatalf("unexpected report:\n%s", raw)
	}
}

func TestImportArgumentErrors(t *testing.T) {
	tc := newTestCLI()
	path := writeFile(t, "customers.csv", "name\nAhmed\n")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing kind", []string{"import", path, "--tenant", tc.tenantID.String(), "--user", tc.userID.String()}, "kind"},
		{"bad tenant", []string{"import", path, "--kind", "customers", "--tenant", "nope", "--user", tc.userID.String()}, "invalid tenant"},
		{"unknown kind", []string{"import", path, "--kind", "spaceships", "--tenant", tc.tenantID.String(), "--user", tc.userID.String()}, "unknown import kind"},
		{"missing file", []string{"import", filepath.Join(t.TempDir(), "absent.csv"), "--kind", "customers", "--tenant", tc.tenantID.String(), "--user", tc.userID.String()}, "absent.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tc.run(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestMatchAndLink(t *testing.T) {
	tc := newTestCLI()
	ctx := context.Background()
	customerID := uuid.New()
	invoice, err := tc.store.Create(ctx, tc.tenantID, matching.InvoicesEntity, store.Record{NaturalKey: "INV-0001", Data: store.Data{
		"invoice_date": "2025-02-28",
		"total_amount": "250",
		"paid_amount":  "0",
		"status":       matching.StatusUnpaid,
		"customer_id":  customerID.String(),
	}})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	payment, err := tc.store.Create(ctx, tc.tenantID, matching.PaymentsEntity, store.Record{NaturalKey: "PAY-0001", Data: store.Data{
		"amount":       "250",
		"payment_date": "2025-03-01",
		"customer_id":  customerID.String(),
	}})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	tenant := "--tenant=" + tc.tenantID.String()

	out, err := tc.run(t, "match", payment.ID.String(), tenant)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if !strings.Contains(out, "INV-0001") || !strings.Contains(out, "$250.00") {
		t.Fatalf("unexpected match output:\n%s", out)
	}

	if _, err := tc.run(t, "match", payment.ID.String(), tenant, "--limit", "0"); err == nil {
		t.Fatalf("expected limit error")
	}

	out, err = tc.run(t, "link", payment.ID.String(), invoice.ID.String(), tenant)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if !strings.Contains(out, "status paid, balance $0.00") {
		t.Fatalf("unexpected link output:\n%s", out)
	}

	out, err = tc.run(t, "link", payment.ID.String(), invoice.ID.String(), tenant)
	if err != nil || !strings.Contains(out, "already linked") {
		t.Fatalf("expected no-op relink, got %v\n%s", err, out)
	}

	if _, err := tc.run(t, "link", uuid.NewString(), invoice.ID.String(), tenant); err == nil {
		t.Fatalf("expected error for unknown payment")
	}
}
