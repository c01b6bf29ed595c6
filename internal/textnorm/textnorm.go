// Package textnorm folds Arabic and Latin text into comparable forms for
// header matching, synonym lookup and fuzzy comparison.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var arabicLetters = strings.NewReplacer(
	"أ", "ا",
	"إ", "ا",
	"آ", "ا",
	"ٱ", "ا",
	"ة", "ه",
	"ى", "ي",
	"ؤ", "و",
	"ئ", "ي",
)

// Fold returns s in NFKC form, case folded, with Arabic diacritics and
// tatweel removed, letter variants unified, Eastern digits converted to
// ASCII and whitespace collapsed.
func Fold(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "\ufeff")
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	s = arabicLetters.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case isArabicMark(r):
			continue
		case unicode.IsSpace(r):
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(asciiDigit(r))
	}
	return b.String()
}

// Compact folds s and keeps only letters and digits, so "INV-0042",
// "inv 0042" and "Inv_0042" compare equal.
func Compact(s string) string {
	folded := Fold(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ASCIIDigits converts Arabic-Indic and Persian digits and the Arabic
// decimal and thousands separators to their ASCII forms; everything else
// is kept.
func ASCIIDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\u066B':
			b.WriteByte('.')
		case '\u066C':
			b.WriteByte(',')
		default:
			b.WriteRune(asciiDigit(r))
		}
	}
	return b.String()
}

// Digits returns only the ASCII digits of s after Eastern digit conversion.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		r = asciiDigit(r)
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func asciiDigit(r rune) rune {
	switch {
	case r >= '\u0660' && r <= '\u0669':
		return '0' + (r - '\u0660')
	case r >= '\u06F0' && r <= '\u06F9':
		return '0' + (r - '\u06F0')
	}
	return r
}

func isArabicMark(r rune) bool {
	return (r >= '\u064B' && r <= '\u065F') || r == '\u0670' || r == '\u0640'
}
