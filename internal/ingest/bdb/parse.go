package bdb

import (
	"database/sql"
	"math"
	"strconv"
	"strings"
)

// naTokens are the cell values read as missing, in addition to "".
var naTokens = map[string]struct{}{
	"NA": {}, "N/A": {}, "n/a": {}, "NaN": {}, "nan": {}, "-NaN": {}, "-nan": {},
	"NULL": {}, "null": {}, "None": {}, "<NA>": {}, "#N/A": {},
}

func isNA(v string) bool {
	if v == "" {
		return true
	}
	_, ok := naTokens[v]
	return ok
}

func nullString(v string) sql.NullString {
	v = strings.TrimSpace(v)
	if isNA(v) {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullFloat(v string) sql.NullFloat64 {
	v = strings.TrimSpace(v)
	if isNA(v) {
		return sql.NullFloat64{}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

// nullInt also accepts integral floats such as "35472.0", which is how
// columns with missing values are often exported.
func nullInt(v string) sql.NullInt64 {
	v = strings.TrimSpace(v)
	if isNA(v) {
		return sql.NullInt64{}
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return sql.NullInt64{Int64: n, Valid: true}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(f), Valid: true}
}

// requiredInt parses a key column. ok is false when the value is missing or
// malformed.
func requiredInt(v string) (n int64, ok bool) {
	ni := nullInt(v)
	return ni.Int64, ni.Valid
}
