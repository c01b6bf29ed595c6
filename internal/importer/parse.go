package importer

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/fleetify/api/internal/textnorm"
)

var (
	errInvalidDate   = errors.New("invalid date")
	errInvalidNumber = errors.New("not a number")
	errInvalidPhone  = errors.New("phone must have 7 to 15 digits")
	errInvalidEmail  = errors.New("invalid email address")

	numericDate = regexp.MustCompile(`^(\d{1,4})[/\-.](\d{1,2})[/\-.](\d{1,4})$`)
	excelSerial = regexp.MustCompile(`^\d{5}(\.\d+)?$`)

	dateLayouts = []string{
		"2006-01-02",
		"2006/01/02",
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2 Jan 2006",
		"2 January 2006",
		"Jan 2, 2006",
		"January 2, 2006",
		"2-Jan-2006",
		"02-Jan-06",
	}
)

// ParseDate reads the date formats spreadsheets produce. Numeric dates are
// read day first or month first per order; ambiguous is true when both
// readings would have been valid.
func ParseDate(raw string, order DateOrder) (date time.Time, ambiguous bool, err error) {
	value := strings.TrimSpace(textnorm.ASCIIDigits(raw))
	if value == "" {
		return time.Time{}, false, errInvalidDate
	}

	if excelSerial.MatchString(value) {
		serial, perr := strconv.ParseFloat(value, 64)
		if perr == nil {
			parsed, xerr := excelize.ExcelDateToTime(serial, false)
			if xerr == nil {
				return civil(parsed.Year(), parsed.Month(), parsed.Day()), false, nil
			}
		}
	}

	for _, layout := range dateLayouts {
		if parsed, perr := time.Parse(layout, value); perr == nil {
			return civil(parsed.Year(), parsed.Month(), parsed.Day()), false, nil
		}
	}

	m := numericDate.FindStringSubmatch(value)
	if m == nil {
		return time.Time{}, false, errInvalidDate
	}
	first, _ := strconv.Atoi(m[1])
	second, _ := strconv.Atoi(m[2])
	third, _ := strconv.Atoi(m[3])

	if len(m[1]) == 4 {
		if d, ok := validDate(first, second, third); ok {
			return d, false, nil
		}
		return time.Time{}, false, errInvalidDate
	}
	if len(m[3]) == 3 || len(m[3]) == 1 {
		return time.Time{}, false, errInvalidDate
	}
	year := third
	if len(m[3]) == 2 {
		year += 2000
	}

	day, month := first, second
	if order == MonthFirst {
		day, month = second, first
	}
	if d, ok := validDate(year, month, day); ok {
		return d, first <= 12 && second <= 12 && first != second, nil
	}
	if d, ok := validDate(year, day, month); ok {
		return d, false, nil
	}
	return time.Time{}, false, errInvalidDate
}

func validDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := civil(year, time.Month(month), day)
	if d.Month() != time.Month(month) || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

func civil(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseNumber reads a number with either , or . as the decimal separator.
// One leading or trailing currency symbol or ISO code is allowed, and
// spaces may group digits. Anything else makes the value invalid. When only
// commas appear, a single comma followed by exactly three digits is a
// thousands separator.
func ParseNumber(raw string) (decimal.Decimal, error) {
	value := strings.TrimSpace(textnorm.ASCIIDigits(raw))
	value, negative := cutSign(value)
	value = trimCurrency(value)
	if !negative {
		value, negative = cutSign(value)
	}

	runes := []rune(value)
	var b strings.Builder
	for i, r := range runes {
		switch {
		case isDigit(r):
			b.WriteRune(r)
		case r == ',' || r == '.' || unicode.IsSpace(r):
			if i == 0 || i+1 == len(runes) || !isDigit(runes[i-1]) || !isDigit(runes[i+1]) {
				return decimal.Zero, errInvalidNumber
			}
			if !unicode.IsSpace(r) {
				b.WriteRune(r)
			}
		default:
			return decimal.Zero, errInvalidNumber
		}
	}

	s := b.String()
	if s == "" {
		return decimal.Zero, errInvalidNumber
	}
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
			if strings.Count(s, ",") > 0 {
				return decimal.Zero, errInvalidNumber
			}
		} else {
			s = strings.ReplaceAll(s, ",", "")
			if strings.Count(s, ".") > 1 {
				return decimal.Zero, errInvalidNumber
			}
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 || len(s)-lastComma-1 == 3 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	number, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errInvalidNumber
	}
	if negative {
		number = number.Neg()
	}
	return number, nil
}

// ParseAmount is ParseNumber restricted to values greater than zero.
func ParseAmount(raw string) (decimal.Decimal, error) {
	value, err := ParseNumber(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if !value.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be greater than zero")
	}
	return value, nil
}

// NormalizePhone keeps the digits of raw.
func NormalizePhone(raw string) (string, error) {
	digits := textnorm.Digits(raw)
	if len(digits) < 7 || len(digits) > 15 {
		return "", errInvalidPhone
	}
	return digits, nil
}

func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t,;") || !strings.Contains(email[at:], ".") {
		return "", errInvalidEmail
	}
	return email, nil
}

// currencySymbols are matched before ISO codes; longer forms come first.
var currencySymbols = []string{
	"د.ك", "د.إ", "ر.س", "ر.ق", "د.ب", "ر.ع", "ج.م",
	"US$", "$", "€", "£", "¥", "₹", "﷼",
}

func cutSign(value string) (string, bool) {
	for _, sign := range []string{"-", "\u2212"} {
		if rest, ok := strings.CutPrefix(value, sign); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return value, false
}

// trimCurrency drops one currency marker from each end of value.
func trimCurrency(value string) string {
	for _, sym := range currencySymbols {
		if rest, ok := strings.CutPrefix(value, sym); ok {
			value = strings.TrimSpace(rest)
			break
		}
	}
	for _, sym := range currencySymbols {
		if rest, ok := strings.CutSuffix(value, sym); ok {
			value = strings.TrimSpace(rest)
			break
		}
	}
	if n := leadingLetters(value); n == 3 && money.GetCurrency(value[:n]) != nil {
		value = strings.TrimSpace(value[n:])
	}
	if n := trailingLetters(value); n == 3 && money.GetCurrency(value[len(value)-n:]) != nil {
		value = strings.TrimSpace(value[:len(value)-n])
	}
	return value
}

func leadingLetters(s string) int {
	n := 0
	for n < len(s) && isASCIILetter(s[n]) {
		n++
	}
	return n
}

func trailingLetters(s string) int {
	n := 0
	for n < len(s) && isASCIILetter(s[len(s)-1-n]) {
		n++
	}
	return n
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
