// Package sqlhost exposes the rrf functions inside SQLite.
package sqlhost

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/akhenakh/rrf/internal/rrf"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver carrying the rrf functions.
const DriverName = "sqlite3_rrf"

var registerOnce sync.Once

type Host struct {
	DB  *sql.DB
	DSN string
}

// Open connects to dsn with rrf, rrf3 and rrf_fuse registered on every
// connection. loadVec also loads sqlite-vec for connections opened afterwards.
func Open(dsn string, loadVec bool) (*Host, error) {
	if loadVec {
		sqlite_vec.Auto() // Load sqlite-vec extension
	}
	registerOnce.Do(func() {
		sql.Register(DriverName, &sqlite3.SQLiteDriver{ConnectHook: registerFunctions})
	})

	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening %s: %w", dsn, err)
	}
	return &Host{DB: db, DSN: dsn}, nil
}

func (h *Host) Close() error {
	return h.DB.Close()
}

func (h *Host) Score(ctx context.Context, a, b sql.NullInt64, k int64) (sql.NullFloat64, error) {
	var s sql.NullFloat64
	err := h.DB.QueryRowContext(ctx, `SELECT rrf(?, ?, ?)`, a, b, k).Scan(&s)
	return s, err
}

func (h *Host) Score3(ctx context.Context, a, b, c sql.NullInt64, k int64) (sql.NullFloat64, error) {
	var s sql.NullFloat64
	err := h.DB.QueryRowContext(ctx, `SELECT rrf3(?, ?, ?, ?)`, a, b, c, k).Scan(&s)
	return s, err
}

const fuseQuery = `
	SELECT
		json_extract(j.value, '$.id'),
		json_extract(j.value, '$.score'),
		json_extract(j.value, '$.rank_a'),
		json_extract(j.value, '$.rank_b')
	FROM json_each(rrf_fuse(?, ?, ?)) AS j`

// Fuse runs rrf_fuse and unpacks its JSON rows with json_each.
func (h *Host) Fuse(ctx context.Context, idsA, idsB []sql.NullInt64, k int64) ([]rrf.Row, error) {
	a, err := encodeList(idsA)
	if err != nil {
		return nil, err
	}
	b, err := encodeList(idsB)
	if err != nil {
		return nil, err
	}

	rows, err := h.DB.QueryContext(ctx, fuseQuery, a, b, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rrf.Row
	for rows.Next() {
		var r rrf.Row
		if err := rows.Scan(&r.ID, &r.Score, &r.RankA, &r.RankB); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// VecVersion reports the loaded sqlite-vec version.
func (h *Host) VecVersion(ctx context.Context) (string, error) {
	var v string
	err := h.DB.QueryRowContext(ctx, `SELECT vec_version()`).Scan(&v)
	return v, err
}

// Query runs ad-hoc SQL and returns its columns and stringified cells.
func (h *Host) Query(ctx context.Context, query string, args ...any) ([]string, [][]string, error) {
	rows, err := h.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var cells [][]string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		line := make([]string, len(cols))
		for i, v := range vals {
			switch x := v.(type) {
			case nil:
				line[i] = "NULL"
			case []byte:
				line[i] = string(x)
			default:
				line[i] = fmt.Sprint(x)
			}
		}
		cells = append(cells, line)
	}
	return cols, cells, rows.Err()
}
