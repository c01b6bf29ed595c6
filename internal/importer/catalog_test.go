package importer

import (
	"strings"
	"testing"
)

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return catalog
}

func TestDefaultCatalogKinds(t *testing.T) {
	catalog := mustCatalog(t)
	for _, name := range []string{"customers", "vendors", "vehicles", "invoices", "contracts", "payments"} {
		kind, ok := catalog.Kind(name)
		if !ok {
			t.Fatalf("missing kind %s", name)
		}
		if kind.Entity != name {
			t.Fatalf("kind %s should default its entity, got %q", name, kind.Entity)
		}
	}
	if _, ok := catalog.Kind(" Payments "); !ok {
		t.Fatalf("kind lookup should ignore case and spaces")
	}
	if catalog.DateOrder != DayFirst {
		t.Fatalf("expected day-first dates, got %s", catalog.DateOrder)
	}
}

func TestKindColumnMatchesAliases(t *testing.T) {
	kind, _ := mustCatalog(t).Kind("payments")
	tests := []struct {
		header string
		want   string
	}{
		{"payment_number", "payment_number"},
		{"Payment Number", "payment_number"},
		{"PAYMENT-NO", "payment_number"},
		{"رقم الدفعة", "payment_number"},
		{"المبلغ", "amount"},
		{"طريقة الدفع", "payment_method"},
		{"Invoice Number", "invoice_code"},
		{"رقم الفاتورة", "invoice_code"},
		{"Customer", "customer_name"},
		{"اسم العميل", "customer_name"},
		{"customer_id", "customer_id"},
		{"\ufeffAmount", "amount"},
	}
	for _, tt := range tests {
		got, ok := kind.Column(tt.header)
		if !ok || got != tt.want {
			t.Fatalf("Column(%q) = %q, %v; want %q", tt.header, got, ok, tt.want)
		}
	}
	if _, ok := kind.Column("unrelated"); ok {
		t.Fatalf("unknown header should not match")
	}
}

func TestReferenceColumnsFollowTarget(t *testing.T) {
	catalog := mustCatalog(t)
	payments, _ := catalog.Kind("payments")

	columns := map[string][]string{}
	for i := range payments.References {
		ref := &payments.References[i]
		columns[ref.Name] = ref.Columns()
	}
	if got := strings.Join(columns["customer"], ","); got != "customer_id,customer_code,customer_name,customer_phone" {
		t.Fatalf("unexpected customer columns %s", got)
	}
	if got := strings.Join(columns["invoice"], ","); got != "invoice_id,invoice_code" {
		t.Fatalf("invoices have no name field, got %s", got)
	}
}

func TestEnumMatchAndSuggest(t *testing.T) {
	catalog := mustCatalog(t)
	method, ok := catalog.Enum("payment_method")
	if !ok {
		t.Fatalf("missing payment_method enum")
	}
	tests := []struct {
		raw  string
		want string
	}{
		{"Cash", "cash"},
		{"نقدا", "cash"},
		{"نقداً", "cash"},
		{"Bank Transfer", "bank_transfer"},
		{"bank_transfer", "bank_transfer"},
		{"تحويل بنكي", "bank_transfer"},
		{"KNET", "card"},
		{"شيك", "cheque"},
	}
	for _, tt := range tests {
		got, ok := method.Match(tt.raw)
		if !ok || got != tt.want {
			t.Fatalf("Match(%q) = %q, %v; want %q", tt.raw, got, ok, tt.want)
		}
	}
	if _, ok := method.Match("bitcoin"); ok {
		t.Fatalf("unexpected match for bitcoin")
	}
	if got := method.Suggest("chequ"); got != "cheque" {
		t.Fatalf("expected cheque suggestion, got %q", got)
	}

	direction, _ := catalog.Enum("transaction_type")
	if got, _ := direction.Match("سند قبض"); got != "receipt" {
		t.Fatalf("expected receipt, got %q", got)
	}
	if got, _ := direction.Match("صرف"); got != "payment" {
		t.Fatalf("expected payment, got %q", got)
	}
}

func TestParseCatalogRejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field type",
			yaml: "kinds:\n  - name: a\n    fields:\n      - {name: x, type: blob}\n",
			want: "unknown type",
		},
		{
			name: "header collision",
			yaml: "kinds:\n  - name: a\n    fields:\n      - {name: x, type: text, aliases: [shared]}\n      - {name: y, type: text, aliases: [Shared]}\n",
			want: "maps to both",
		},
		{
			name: "unknown reference target",
			yaml: "kinds:\n  - name: a\n    references:\n      - {name: b, kind: missing}\n",
			want: "unknown kind",
		},
		{
			name: "auto-create without name field",
			yaml: "kinds:\n  - name: a\n  - name: b\n    references:\n      - {name: a, kind: a, auto_create: true}\n",
			want: "without a name field",
		},
		{
			name: "unknown enum",
			yaml: "kinds:\n  - name: a\n    fields:\n      - {name: x, type: enum, enum: nope}\n",
			want: "unknown enum",
		},
		{
			name: "bad date order",
			yaml: "date_order: ymd\n",
			want: "date_order",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
