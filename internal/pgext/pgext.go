// Package pgext installs the rrf functions into PostgreSQL and calls them.
package pgext

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/akhenakh/rrf/internal/rrf"
	"github.com/akhenakh/rrf/internal/util"

	"github.com/lib/pq"
)

//go:embed rrf.sql
var installSQL string

// InstallSQL returns the function definitions executed by Install.
func InstallSQL() string {
	return installSQL
}

type Client struct {
	DB     *sql.DB
	Schema string
}

func Open(dsn, schema string) (*Client, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is empty (set postgres.dsn, --dsn or DATABASE_URL)")
	}
	if schema == "" {
		schema = "public"
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return &Client{DB: db, Schema: schema}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// Qualify returns the schema qualified, quoted name of fn.
func (c *Client) Qualify(fn string) string {
	return pq.QuoteIdentifier(c.Schema) + "." + pq.QuoteIdentifier(fn)
}

// Install creates the schema if needed and (re)defines the functions in one
// transaction.
func (c *Client) Install(ctx context.Context) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	schema := pq.QuoteIdentifier(c.Schema)
	if _, err := tx.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		return fmt.Errorf("creating schema %s: %w", c.Schema, err)
	}
	if _, err := tx.ExecContext(ctx, "SET LOCAL search_path TO "+schema); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, installSQL); err != nil {
		return fmt.Errorf("installing functions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	util.Debug("postgres: installed rrf functions into %s", c.Schema)
	return nil
}

func (c *Client) Score(ctx context.Context, a, b sql.NullInt64, k int64) (sql.NullFloat64, error) {
	var s sql.NullFloat64
	q := fmt.Sprintf("SELECT %s($1::bigint, $2::bigint, $3::bigint)", c.Qualify("rrf"))
	err := c.DB.QueryRowContext(ctx, q, a, b, k).Scan(&s)
	return s, err
}

func (c *Client) Score3(ctx context.Context, a, b, cc sql.NullInt64, k int64) (sql.NullFloat64, error) {
	var s sql.NullFloat64
	q := fmt.Sprintf("SELECT %s($1::bigint, $2::bigint, $3::bigint, $4::bigint)", c.Qualify("rrf3"))
	err := c.DB.QueryRowContext(ctx, q, a, b, cc, k).Scan(&s)
	return s, err
}

// Fuse calls rrf_fuse. A nil list is sent as NULL.
func (c *Client) Fuse(ctx context.Context, idsA, idsB []sql.NullInt64, k int64) ([]rrf.Row, error) {
	q := fmt.Sprintf("SELECT id, score, rank_a, rank_b FROM %s($1::bigint[], $2::bigint[], $3::bigint)", c.Qualify("rrf_fuse"))
	rows, err := c.DB.QueryContext(ctx, q, pq.Array(idsA), pq.Array(idsB), k)
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
