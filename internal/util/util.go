package util

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseRank reads an optional integer. "null", "-" and the empty string are absent.
func ParseRank(s string) (sql.NullInt64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "-", "null", "none":
		return sql.NullInt64{}, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return sql.NullInt64{}, fmt.Errorf("invalid rank %q: %w", s, err)
	}
	return sql.NullInt64{Int64: v, Valid: true}, nil
}

// ParseIDList reads a comma separated list of identifiers, e.g. "10,20,null,30".
// An empty string is an absent list and returns nil.
func ParseIDList(s string) ([]sql.NullInt64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]sql.NullInt64, 0, len(parts))
	for _, p := range parts {
		id, err := ParseRank(p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// FormatRank renders an optional integer, "-" when absent.
func FormatRank(r sql.NullInt64) string {
	if !r.Valid {
		return "-"
	}
	return strconv.FormatInt(r.Int64, 10)
}

// FormatScore renders an optional score with full precision, "NULL" when absent.
func FormatScore(s sql.NullFloat64) string {
	if !s.Valid {
		return "NULL"
	}
	return strconv.FormatFloat(s.Float64, 'g', -1, 64)
}

// NullablePtrs converts decoded JSON/YAML integers, where nil means absent.
func NullablePtrs(vals []*int64) []sql.NullInt64 {
	if vals == nil {
		return nil
	}
	ids := make([]sql.NullInt64, len(vals))
	for i, v := range vals {
		if v != nil {
			ids[i] = sql.NullInt64{Int64: *v, Valid: true}
		}
	}
	return ids
}

// FloatToInt converts an integral float such as a decoded JSON number.
// Fractional, infinite and out of range values are rejected.
func FloatToInt(x float64) (int64, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
		return 0, fmt.Errorf("expected an integer, got %v", x)
	}
	if x < math.MinInt64 || x >= -math.MinInt64 {
		return 0, fmt.Errorf("integer %v out of range", x)
	}
	return int64(x), nil
}
