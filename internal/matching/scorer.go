// Package matching scores persisted payments against open invoices and
// applies a chosen match.
package matching

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/fleetify/api/internal/textnorm"
)

type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

type Weights struct {
	Amount float64
	Date   float64
	Text   float64
}

// Scorer computes match confidence. Amount closeness decays as
// exp(-AmountDecay * |payment - balance| / payment) and date closeness
// halves every DateHalfLife days.
type Scorer struct {
	Weights      Weights
	AmountDecay  float64
	DateHalfLife float64
	Currency     string
}

func NewScorer(currency string) *Scorer {
	return &Scorer{
		Weights:      Weights{Amount: 0.60, Date: 0.25, Text: 0.15},
		AmountDecay:  5,
		DateHalfLife: 15,
		Currency:     currency,
	}
}

type Candidate struct {
	PaymentID     uuid.UUID       `json:"paymentId"`
	InvoiceID     uuid.UUID       `json:"invoiceId"`
	InvoiceNumber string          `json:"invoiceNumber"`
	Confidence    float64         `json:"confidence"`
	Level         Level           `json:"level"`
	Reason        string          `json:"reason"`
	AmountScore   float64         `json:"amountScore"`
	DateScore     float64         `json:"dateScore"`
	TextScore     float64         `json:"textScore"`
	Balance       decimal.Decimal `json:"balance"`
}

// Rank scores every invoice with an open balance and sorts the result by
// confidence, then smaller balance, then invoice number.
func (s *Scorer) Rank(p Payment, invoices []Invoice) []Candidate {
	out := make([]Candidate, 0, len(invoices))
	for _, inv := range invoices {
		if !inv.Balance().IsPositive() {
			continue
		}
		out = append(out, s.Score(p, inv))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if !a.Balance.Equal(b.Balance) {
			return a.Balance.LessThan(b.Balance)
		}
		if a.InvoiceNumber != b.InvoiceNumber {
			return a.InvoiceNumber < b.InvoiceNumber
		}
		return a.InvoiceID.String() < b.InvoiceID.String()
	})
	return out
}

func (s *Scorer) Score(p Payment, inv Invoice) Candidate {
	balance := inv.Balance()
	amountScore := s.amountScore(p.Amount, balance)
	dateScore, days := s.dateScore(p.Date, inv.Date)
	textScore, textHit := textScore(p, inv)

	raw := 100 * (s.Weights.Amount*amountScore + s.Weights.Date*dateScore + s.Weights.Text*textScore)
	confidence := math.Round(raw*100) / 100
	confidence = math.Max(0, math.Min(100, confidence))

	return Candidate{
		PaymentID:     p.ID,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		Confidence:    confidence,
		Level:         LevelFor(confidence),
		Reason:        s.reason(p.Amount, balance, days, inv.Number, textHit, textScore),
		AmountScore:   round4(amountScore),
		DateScore:     round4(dateScore),
		TextScore:     round4(textScore),
		Balance:       balance,
	}
}

func LevelFor(confidence float64) Level {
	switch {
	case confidence >= 85:
		return LevelHigh
	case confidence >= 60:
		return LevelMedium
	default:
		return LevelLow
	}
}

func (s *Scorer) amountScore(amount, balance decimal.Decimal) float64 {
	if !amount.IsPositive() {
		return 0
	}
	diff, _ := amount.Sub(balance).Abs().Div(amount).Float64()
	return math.Exp(-s.AmountDecay * diff)
}

// dateScore returns 0 and -1 days when either date is unknown.
func (s *Scorer) dateScore(paid, issued time.Time) (float64, int) {
	if paid.IsZero() || issued.IsZero() {
		return 0, -1
	}
	days := int(math.Abs(paid.Sub(issued).Hours()) / 24)
	return math.Pow(0.5, float64(days)/s.DateHalfLife), days
}

// textScore is 1 when the payment's reference or notes contain the invoice
// number, otherwise the best Levenshtein ratio of reference against number
// and of notes against description. The bool reports a containment hit.
func textScore(p Payment, inv Invoice) (float64, bool) {
	number := textnorm.Compact(inv.Number)
	ref := textnorm.Compact(p.Reference)
	notes := textnorm.Compact(p.Notes)
	if number != "" && (strings.Contains(ref, number) || strings.Contains(notes, number)) {
		return 1, true
	}

	best := ratio(ref, number)
	memo := textnorm.Fold(p.Notes)
	if memo == "" {
		memo = textnorm.Fold(p.Reference)
	}
	if r := ratio(memo, textnorm.Fold(inv.Description)); r > best {
		best = r
	}
	return best, false
}

func ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return levenshtein.RatioForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
}

func (s *Scorer) reason(amount, balance decimal.Decimal, days int, number string, textHit bool, text float64) string {
	parts := make([]string, 0, 3)
	if amount.Equal(balance) {
		parts = append(parts, fmt.Sprintf("amount %s matches the open balance", s.display(amount)))
	} else {
		parts = append(parts, fmt.Sprintf("amount %s vs open balance %s", s.display(amount), s.display(balance)))
	}
	switch {
	case days < 0:
		parts = append(parts, "no date to compare")
	case days == 0:
		parts = append(parts, "same day")
	case days == 1:
		parts = append(parts, "1 day apart")
	default:
		parts = append(parts, fmt.Sprintf("%d days apart", days))
	}
	switch {
	case textHit:
		parts = append(parts, fmt.Sprintf("reference mentions %s", number))
	case text >= 0.5:
		parts = append(parts, fmt.Sprintf("reference resembles %s (%.0f%%)", number, text*100))
	}
	return strings.Join(parts, "; ")
}

func (s *Scorer) display(amount decimal.Decimal) string {
	return FormatAmount(amount, s.Currency)
}

// FormatAmount renders amount in the given ISO currency, falling back to
// two decimals for codes go-money does not know.
func FormatAmount(amount decimal.Decimal, code string) string {
	currency := money.GetCurrency(code)
	if currency == nil {
		return amount.StringFixed(2)
	}
	minor := amount.Shift(int32(currency.Fraction)).Round(0).IntPart()
	return money.New(minor, currency.Code).Display()
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
