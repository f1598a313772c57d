package warehouse

import (
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// Row is one result row keyed by warehouse column name. NULL columns hold nil.
type Row map[string]any

// Int64 returns the column as an integer; NULL or missing columns read as 0.
func (r Row) Int64(column string) int64 {
	switch v := r[column].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case *big.Rat:
		f, _ := v.Float64()
		return int64(f)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// Float64 returns the column as a float; NULL or missing columns read as 0.
func (r Row) Float64(column string) float64 {
	switch v := r[column].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case *big.Rat:
		f, _ := v.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// String returns the column as text. DATE values render as YYYY-MM-DD.
func (r Row) String(column string) string {
	switch v := r[column].(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// StringOr returns the column as text, or fallback when it is NULL or blank.
func (r Row) StringOr(column, fallback string) string {
	if s := r.String(column); s != "" {
		return s
	}
	return fallback
}

// Time returns a TIMESTAMP column. ok is false for NULL or unparsable values.
func (r Row) Time(column string) (time.Time, bool) {
	switch v := r[column].(type) {
	case time.Time:
		return v.UTC(), !v.IsZero()
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	}
	return time.Time{}, false
}
