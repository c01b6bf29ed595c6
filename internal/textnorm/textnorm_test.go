package textnorm

import "testing"

func TestFold(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "latin case and spaces", in: "  Bank   Transfer ", want: "bank transfer"},
		{name: "byte order mark", in: "\ufeffAmount", want: "amount"},
		{name: "alef variants", in: "إيجار", want: "ايجار"},
		{name: "diacritics and tatweel", in: "نَقْـدًا", want: "نقدا"},
		{name: "ta marbuta", in: "فاتورة", want: "فاتوره"},
		{name: "eastern digits", in: "رقم ١٢٣", want: "رقم 123"},
		{name: "empty", in: "   ", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Fold(tc.in); got != tc.want {
				t.Fatalf("Fold(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCompact(t *testing.T) {
	for _, in := range []string{"INV-0042", "inv 0042", "Inv_0042", "inv.0042"} {
		if got := Compact(in); got != "inv0042" {
			t.Fatalf("Compact(%q) = %q", in, got)
		}
	}
}

func TestDigitsAndASCIIDigits(t *testing.T) {
	if got := Digits("+965 ٥٥٥-١٢٣٤"); got != "9655551234" {
		t.Fatalf("Digits = %q", got)
	}
	if got := ASCIIDigits("١٬٥٠٠٫٧٥"); got != "1,500.75" {
		t.Fatalf("ASCIIDigits = %q", got)
	}
}
