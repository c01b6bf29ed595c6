package matching

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRankPrefersMatchingAmountAndDate(t *testing.T) {
	scorer := NewScorer("KWD")
	payment := Payment{ID: uuid.New(), Amount: amount("250.00"), Date: day("2025-03-01")}
	small := Invoice{ID: uuid.New(), Number: "INV-0002", Date: day("2025-02-28"), Total: amount("250.00")}
	large := Invoice{ID: uuid.New(), Number: "INV-0001", Date: day("2025-01-01"), Total: amount("5000.00")}

	ranked := scorer.Rank(payment, []Invoice{large, small})
	if len(ranked) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(ranked))
	}
	if ranked[0].InvoiceID != small.ID {
		t.Fatalf("expected the 250.00 invoice first, got %s", ranked[0].InvoiceNumber)
	}
	if ranked[0].Confidence-ranked[1].Confidence < 50 {
		t.Fatalf("expected a material confidence gap, got %.2f vs %.2f", ranked[0].Confidence, ranked[1].Confidence)
	}
	if ranked[0].AmountScore != 1 {
		t.Fatalf("expected exact amount score 1, got %v", ranked[0].AmountScore)
	}
	if !strings.Contains(ranked[0].Reason, "matches the open balance") || !strings.Contains(ranked[0].Reason, "1 day apart") {
		t.Fatalf("unexpected reason %q", ranked[0].Reason)
	}
}

func TestConfidenceNonIncreasingInAmountGap(t *testing.T) {
	scorer := NewScorer("KWD")
	payment := Payment{Amount: amount("1000"), Date: day("2025-03-01"), Reference: "transfer"}
	previous := 101.0
	for _, gap := range []string{"0", "1", "10", "50", "200", "500", "1000", "5000"} {
		inv := Invoice{Number: "INV-0001", Date: day("2025-02-20"), Total: amount("1000").Add(amount(gap)), Description: "rent"}
		c := scorer.Score(payment, inv)
		if c.Confidence > previous {
			t.Fatalf("confidence rose from %.2f to %.2f at gap %s", previous, c.Confidence, gap)
		}
		previous = c.Confidence
	}
}

func TestRankTieBreaksOnSmallerBalance(t *testing.T) {
	scorer := NewScorer("KWD")
	payment := Payment{Amount: amount("300"), Date: day("2025-03-01")}
	// Both balances are 100 away from the payment, so amount scores tie.
	bigger := Invoice{ID: uuid.New(), Number: "INV-0001", Date: day("2025-03-01"), Total: amount("400")}
	smaller := Invoice{ID: uuid.New(), Number: "INV-0002", Date: day("2025-03-01"), Total: amount("200")}

	ranked := scorer.Rank(payment, []Invoice{bigger, smaller})
	if ranked[0].Confidence != ranked[1].Confidence {
		t.Fatalf("expected equal confidence, got %.2f and %.2f", ranked[0].Confidence, ranked[1].Confidence)
	}
	if ranked[0].InvoiceID != smaller.ID {
		t.Fatalf("expected smaller balance first, got %s", ranked[0].InvoiceNumber)
	}
}

func TestRankSkipsSettledInvoices(t *testing.T) {
	scorer := NewScorer("KWD")
	payment := Payment{Amount: amount("100"), Date: day("2025-03-01")}
	settled := Invoice{ID: uuid.New(), Number: "INV-0001", Total: amount("100"), Paid: amount("100")}
	open := Invoice{ID: uuid.New(), Number: "INV-0002", Total: amount("100"), Paid: amount("40")}

	ranked := scorer.Rank(payment, []Invoice{settled, open})
	if len(ranked) != 1 || ranked[0].InvoiceID != open.ID {
		t.Fatalf("expected only the open invoice, got %+v", ranked)
	}
	if !ranked[0].Balance.Equal(amount("60")) {
		t.Fatalf("expected balance 60, got %s", ranked[0].Balance)
	}
}

func TestScoreStaysWithinBounds(t *testing.T) {
	scorer := NewScorer("KWD")
	scorer.Weights = Weights{Amount: 1, Date: 1, Text: 1}
	payment := Payment{Amount: amount("250"), Date: day("2025-03-01"), Reference: "INV-0007"}
	inv := Invoice{Number: "INV-0007", Date: day("2025-03-01"), Total: amount("250")}

	c := scorer.Score(payment, inv)
	if c.Confidence != 100 {
		t.Fatalf("expected confidence clamped to 100, got %.2f", c.Confidence)
	}
	if c.Level != LevelHigh {
		t.Fatalf("expected high level, got %s", c.Level)
	}

	zero := scorer.Score(Payment{}, Invoice{Total: amount("10")})
	if zero.Confidence != 0 || zero.Level != LevelLow {
		t.Fatalf("expected 0/low for an empty payment, got %.2f/%s", zero.Confidence, zero.Level)
	}
}

func TestTextScore(t *testing.T) {
	inv := Invoice{Number: "INV-0042", Description: "March rent Camry"}
	tests := []struct {
		name    string
		payment Payment
		min     float64
		max     float64
		hit     bool
	}{
		{name: "reference contains number", payment: Payment{Reference: "payment for inv 0042"}, min: 1, max: 1, hit: true},
		{name: "notes contain number", payment: Payment{Notes: "INV-0042 settled"}, min: 1, max: 1, hit: true},
		{name: "close reference", payment: Payment{Reference: "INV-0043"}, min: 0.7, max: 0.99},
		{name: "notes like description", payment: Payment{Notes: "march rent camry"}, min: 1, max: 1},
		{name: "nothing", payment: Payment{}, min: 0, max: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, hit := textScore(tt.payment, inv)
			if score < tt.min || score > tt.max {
				t.Fatalf("score %.3f outside [%.2f, %.2f]", score, tt.min, tt.max)
			}
			if hit != tt.hit {
				t.Fatalf("expected hit=%v, got %v", tt.hit, hit)
			}
		})
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		confidence float64
		want       Level
	}{
		{100, LevelHigh},
		{85, LevelHigh},
		{84.99, LevelMedium},
		{60, LevelMedium},
		{59.99, LevelLow},
		{0, LevelLow},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.confidence); got != tt.want {
			t.Fatalf("LevelFor(%v) = %s, want %s", tt.confidence, got, tt.want)
		}
	}
}

func TestReasonFormatsUnknownCurrency(t *testing.T) {
	scorer := NewScorer("XXX-NOT-A-CURRENCY")
	c := scorer.Score(Payment{Amount: amount("10")}, Invoice{Number: "INV-1", Total: amount("12.5")})
	if !strings.Contains(c.Reason, "10.00 vs open balance 12.50") {
		t.Fatalf("unexpected reason %q", c.Reason)
	}
	if !strings.Contains(c.Reason, "no date to compare") {
		t.Fatalf("expected missing date note, got %q", c.Reason)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount string
		code   string
		want   string
	}{
		{"12.5", "USD", "$12.50"},
		{"1234.567", "USD", "$1,234.57"},
		{"12.5", "NOPE", "12.50"},
	}
	for _, tt := range tests {
		if got := FormatAmount(amount(tt.amount), tt.code); got != tt.want {
			t.Fatalf("FormatAmount(%s, %s) = %q, want %q", tt.amount, tt.code, got, tt.want)
		}
	}
}
