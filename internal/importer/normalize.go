package importer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fleetify/api/internal/store"
)

// FieldError is a validation failure of one column.
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s (got %q)", e.Field, e.Reason, e.Value)
}

// RefInput is what a row says about one referenced record.
type RefInput struct {
	ID    string
	Code  string
	Name  string
	Phone string
}

func (r RefInput) Empty() bool {
	return r.ID == "" && r.Code == "" && r.Name == "" && r.Phone == ""
}

// Normalized is a row converted to typed values. Values holds string,
// decimal.Decimal or time.Time, keyed by field name; empty optional fields
// are absent.
type Normalized struct {
	Kind       *Kind
	Values     map[string]any
	Refs       map[string]RefInput
	NaturalKey string
	Warnings   []string
}

func (n *Normalized) Text(field string) string {
	s, _ := n.Values[field].(string)
	return s
}

func (n *Normalized) Decimal(field string) (decimal.Decimal, bool) {
	d, ok := n.Values[field].(decimal.Decimal)
	return d, ok
}

func (n *Normalized) Date(field string) (time.Time, bool) {
	d, ok := n.Values[field].(time.Time)
	return d, ok
}

// Data renders the values the way they are stored.
func (n *Normalized) Data() store.Data {
	data := make(store.Data, len(n.Values))
	for field, v := range n.Values {
		switch value := v.(type) {
		case decimal.Decimal:
			data[field] = value.String()
		case time.Time:
			data[field] = value.Format(store.DateLayout)
		default:
			data[field] = value
		}
	}
	return data
}

// Normalizer turns raw rows into Normalized records. It has no side effects.
type Normalizer struct {
	catalog *Catalog
	now     func() time.Time
}

func NewNormalizer(catalog *Catalog, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{catalog: catalog, now: now}
}

func (n *Normalizer) today() time.Time {
	now := n.now()
	return civil(now.Year(), now.Month(), now.Day())
}

func (n *Normalizer) Normalize(kind *Kind, row Row, opts Options) (*Normalized, error) {
	columns := n.columns(kind, row)
	out := &Normalized{
		Kind:   kind,
		Values: map[string]any{},
		Refs:   map[string]RefInput{},
	}

	for i := range kind.Fields {
		f := &kind.Fields[i]
		value, warning, err := n.field(f, columns[f.Name], opts)
		if err != nil {
			return nil, err
		}
		if warning != "" {
			out.Warnings = append(out.Warnings, warning)
		}
		if value != nil {
			out.Values[f.Name] = value
		}
	}
	if kind.NaturalKey != "" {
		out.NaturalKey = out.Text(kind.NaturalKey)
	}

	for i := range kind.References {
		ref := &kind.References[i]
		input := RefInput{
			ID:    columns[ref.IDColumn()],
			Code:  columns[ref.CodeColumn()],
			Name:  columns[ref.NameColumn()],
			Phone: columns[ref.PhoneColumn()],
		}
		if input.ID != "" {
			if _, err := uuid.Parse(input.ID); err != nil {
				return nil, &FieldError{Field: ref.IDColumn(), Value: input.ID, Reason: "not a valid id"}
			}
		}
		if input.Phone != "" {
			phone, err := NormalizePhone(input.Phone)
			if err != nil {
				return nil, &FieldError{Field: ref.PhoneColumn(), Value: input.Phone, Reason: err.Error()}
			}
			input.Phone = phone
		}
		if !input.Empty() {
			out.Refs[ref.Name] = input
		}
	}
	return out, nil
}

// columns maps the row's headers onto column names. When two headers land
// on the same column the first non-empty value in header order wins.
func (n *Normalizer) columns(kind *Kind, row Row) map[string]string {
	headers := make([]string, 0, len(row.Values))
	for header := range row.Values {
		headers = append(headers, header)
	}
	sort.Strings(headers)

	columns := make(map[string]string, len(headers))
	for _, header := range headers {
		col, ok := kind.Column(header)
		if !ok {
			continue
		}
		value := strings.TrimSpace(row.Values[header])
		if value == "" || columns[col] != "" {
			continue
		}
		columns[col] = value
	}
	return columns
}

func (n *Normalizer) field(f *Field, raw string, opts Options) (any, string, error) {
	if raw == "" {
		return n.empty(f, opts)
	}

	switch f.Type {
	case FieldText:
		return raw, "", nil
	case FieldEmail:
		email, err := NormalizeEmail(raw)
		if err != nil {
			return nil, "", &FieldError{Field: f.Name, Value: raw, Reason: err.Error()}
		}
		return email, "", nil
	case FieldPhone:
		phone, err := NormalizePhone(raw)
		if err != nil {
			return nil, "", &FieldError{Field: f.Name, Value: raw, Reason: err.Error()}
		}
		return phone, "", nil
	case FieldNumber:
		value, err := ParseNumber(raw)
		if err != nil {
			return nil, "", &FieldError{Field: f.Name, Value: raw, Reason: err.Error()}
		}
		return value, "", nil
	case FieldAmount:
		value, err := ParseAmount(raw)
		if err != nil {
			return nil, "", &FieldError{Field: f.Name, Value: raw, Reason: err.Error()}
		}
		return value, "", nil
	case FieldDate:
		date, ambiguous, err := ParseDate(raw, n.catalog.DateOrder)
		if err != nil {
			if opts.AutoCompleteDates {
				return n.today(), fmt.Sprintf("%s %q is not a date; used today", f.Name, raw), nil
			}
			return nil, "", &FieldError{Field: f.Name, Value: raw, Reason: err.Error()}
		}
		if ambiguous {
			return date, fmt.Sprintf("%s %q is ambiguous; read as %s", f.Name, raw, date.Format("2 January 2006")), nil
		}
		return date, "", nil
	case FieldEnum:
		enum, _ := n.catalog.Enum(f.Enum)
		if code, ok := enum.Match(raw); ok {
			return code, "", nil
		}
		if opts.AutoCompleteDefaults && enum.Default != "" {
			return enum.Default, fmt.Sprintf("%s %q is not recognised; used %s", f.Name, raw, enum.Default), nil
		}
		reason := "unknown value; expected one of " + strings.Join(enum.Codes(), ", ")
		if suggestion := enum.Suggest(raw); suggestion != "" {
			reason = fmt.Sprintf("unknown value; did you mean %q?", suggestion)
		}
		return nil, "", &FieldError{Field: f.Name, Value: raw, Reason: reason}
	}
	return nil, "", &FieldError{Field: f.Name, Value: raw, Reason: "unsupported field type " + string(f.Type)}
}

func (n *Normalizer) empty(f *Field, opts Options) (any, string, error) {
	switch f.Type {
	case FieldDate:
		if f.Required && opts.AutoCompleteDates {
			return n.today(), fmt.Sprintf("%s is empty; used today", f.Name), nil
		}
	case FieldEnum:
		enum, _ := n.catalog.Enum(f.Enum)
		if opts.AutoCompleteDefaults && enum.Default != "" {
			return enum.Default, fmt.Sprintf("%s is empty; used %s", f.Name, enum.Default), nil
		}
	}
	if f.Required {
		return nil, "", &FieldError{Field: f.Name, Reason: "is required"}
	}
	return nil, "", nil
}
