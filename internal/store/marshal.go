package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// encodeDate renders a date column value (YYYY-MM-DD, UTC).
func encodeDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// decodeDate parses a date column value.
func decodeDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// encodeTime renders a timestamp column value (RFC 3339, UTC).
func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// decodeTime parses a timestamp column value.
func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// encodeNullDate renders an optional date.
func encodeNullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeDate(*t)
}

// decodeNullDate parses an optional date column.
func decodeNullDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := decodeDate(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// decodeNullTime parses an optional timestamp column.
func decodeNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := decodeTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// decodeDecimal parses an exact decimal column.
func decodeDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// decodeNullDecimal parses an optional exact decimal column.
func decodeNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := decodeDecimal(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// encodeNullDecimal renders an optional exact decimal.
func encodeNullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

// encodeJSON serializes v to a JSON column, nil for empty values.
func encodeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return string(b), nil
}

// decodeJSON deserializes a JSON column into out; empty columns leave
// out untouched.
func decodeJSON(s sql.NullString, out any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s.String), out); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}
