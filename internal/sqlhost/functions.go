package sqlhost

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/akhenakh/rrf/internal/output"
	"github.com/akhenakh/rrf/internal/rrf"
	"github.com/akhenakh/rrf/internal/util"

	"github.com/mattn/go-sqlite3"
)

// registerFunctions is the driver ConnectHook. SQLite resolves overloads by
// argument count, so rrf_fuse is registered twice.
func registerFunctions(conn *sqlite3.SQLiteConn) error {
	funcs := []struct {
		name string
		impl any
	}{
		{"rrf", scoreFunc},
		{"rrf3", score3Func},
		{"rrf_fuse", fuseDefaultFunc},
		{"rrf_fuse", fuseFunc},
	}
	for _, f := range funcs {
		if err := conn.RegisterFunc(f.name, f.impl, true); err != nil {
			return fmt.Errorf("registering %s: %w", f.name, err)
		}
	}
	return nil
}

// rrf(rank_a, rank_b, k)
func scoreFunc(a, b, k any) (any, error) {
	return sumFunc(k, a, b)
}

// rrf3(rank_a, rank_b, rank_c, k)
func score3Func(a, b, c, k any) (any, error) {
	return sumFunc(k, a, b, c)
}

func sumFunc(k any, args ...any) (any, error) {
	kv, err := constantArg(k)
	if err != nil {
		return nil, err
	}
	ranks := make([]sql.NullInt64, len(args))
	for i, a := range args {
		if ranks[i], err = rankArg(a); err != nil {
			return nil, err
		}
	}
	s, err := rrf.Sum(ranks, kv)
	if err != nil {
		return nil, err
	}
	if !s.Valid {
		return nil, nil
	}
	return s.Float64, nil
}

// rrf_fuse(ids_a, ids_b)
func fuseDefaultFunc(a, b any) (string, error) {
	return fuseFunc(a, b, int64(rrf.DefaultK))
}

// rrf_fuse(ids_a, ids_b, k) returns the rows as a JSON array for json_each.
func fuseFunc(a, b, k any) (string, error) {
	kv, err := constantArg(k)
	if err != nil {
		return "", err
	}
	idsA, err := listArg(a)
	if err != nil {
		return "", fmt.Errorf("ids_a: %w", err)
	}
	idsB, err := listArg(b)
	if err != nil {
		return "", fmt.Errorf("ids_b: %w", err)
	}

	rows, err := rrf.Fuse(idsA, idsB, kv)
	if err != nil {
		return "", err
	}
	util.Debug("sqlite rrf_fuse: %d+%d ids -> %d rows (k=%d)", len(idsA), len(idsB), len(rows), kv)

	data, err := output.MarshalRows(rows)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// The driver hands SQL NULL to interface arguments as a nil []byte.
func isNull(v any) bool {
	if v == nil {
		return true
	}
	b, ok := v.([]byte)
	return ok && b == nil
}

// integerArg accepts integers, integral reals and integer-valued TEXT, the
// form bound parameters take when they come from the command line.
func integerArg(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		return util.FloatToInt(x)
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("expected an integer, got %q", x)
		}
		return util.FloatToInt(f)
	}
	return 0, fmt.Errorf("expected an integer, got %T", v)
}

func rankArg(v any) (sql.NullInt64, error) {
	if isNull(v) {
		return rrf.Absent, nil
	}
	r, err := integerArg(v)
	if err != nil {
		return rrf.Absent, fmt.Errorf("rank must be an integer or NULL: %w", err)
	}
	return rrf.Ranked(r), nil
}

func constantArg(v any) (int64, error) {
	if isNull(v) {
		return 0, fmt.Errorf("%w (got NULL)", rrf.ErrInvalidConstant)
	}
	k, err := integerArg(v)
	if err != nil {
		return 0, fmt.Errorf("rrf k must be an integer: %w", err)
	}
	return k, nil
}

// listArg decodes a JSON array of identifiers. NULL is an absent list.
func listArg(v any) ([]sql.NullInt64, error) {
	var raw []byte
	switch x := v.(type) {
	case string:
		raw = []byte(x)
	case []byte:
		raw = x
	}
	if isNull(v) || (raw != nil && len(raw) == 0) {
		return nil, nil
	}
	if raw == nil {
		return nil, fmt.Errorf("id list must be a JSON array or NULL, got %T", v)
	}

	var vals []*int64
	if err := json.Unmarshal(raw, &vals); err != nil {
		return nil, fmt.Errorf("id list must be a JSON array of integers: %w", err)
	}
	return util.NullablePtrs(vals), nil
}

func encodeList(ids []sql.NullInt64) (any, error) {
	if ids == nil {
		return nil, nil
	}
	vals := make([]*int64, len(ids))
	for i, id := range ids {
		if id.Valid {
			v := id.Int64
			vals[i] = &v
		}
	}
	data, err := json.Marshal(vals)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
