package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// Data is the JSON document of a record. Values written by the importer
// are strings or nil; run records also hold nested objects.
type Data map[string]any

// Text returns the text form of a value the way PostgreSQL's ->> renders it.
func (d Data) Text(key string) string {
	return textValue(d[key])
}

func (d Data) Decimal(key string) decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(d.Text(key)))
	if err != nil {
		return decimal.Zero
	}
	return v
}

func (d Data) Date(key string) (time.Time, bool) {
	raw := d.Text(key)
	if raw == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

func (d Data) UUID(key string) (uuid.UUID, bool) {
	raw := d.Text(key)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Decode re-marshals a nested value into v.
func (d Data) Decode(key string, v any) error {
	raw, ok := d[key]
	if !ok || raw == nil {
		return ErrNotFound
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := json.Unmarshal(encoded, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func textValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	case json.Number:
		return value.String()
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(encoded)
	}
}

// normalizeData gives d the shape it has after a JSONB round trip.
func normalizeData(d Data) (Data, error) {
	if d == nil {
		return Data{}, nil
	}
	encoded, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}
	out := Data{}
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	return out, nil
}
