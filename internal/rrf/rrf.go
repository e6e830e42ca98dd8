// Package rrf implements Reciprocal Rank Fusion scoring over ranked lists.
package rrf

import (
	"database/sql"
	"errors"
	"fmt"
)

// DefaultK is the smoothing constant used when a caller does not supply one.
const DefaultK = 60

// ErrInvalidConstant is returned when k is not strictly positive.
var ErrInvalidConstant = errors.New("rrf k must be positive")

// Absent is the rank of an item a source did not return.
var Absent = sql.NullInt64{}

// Ranked wraps r as a present rank.
func Ranked(r int64) sql.NullInt64 {
	return sql.NullInt64{Int64: r, Valid: true}
}

func checkK(k int64) error {
	if k <= 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidConstant, k)
	}
	return nil
}

// Sum computes the Reciprocal Rank Fusion score of one item.
// Score = Sum(1 / (k + rank)) over the ranks that are present and positive.
// The result is NULL when no rank contributed.
func Sum(ranks []sql.NullInt64, k int64) (sql.NullFloat64, error) {
	if err := checkK(k); err != nil {
		return sql.NullFloat64{}, err
	}
	return sum(ranks, float64(k)), nil
}

// sum assumes k was validated. Slots are added in input order so the
// result is bit-identical across calls.
func sum(ranks []sql.NullInt64, k float64) sql.NullFloat64 {
	var total float64
	used := 0
	for _, r := range ranks {
		if !r.Valid || r.Int64 <= 0 {
			continue
		}
		total += 1.0 / (k + float64(r.Int64))
		used++
	}
	if used == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: total, Valid: true}
}

// Score is the two source form, exposed to hosts as rrf(rank_a, rank_b, k).
func Score(a, b sql.NullInt64, k int64) (sql.NullFloat64, error) {
	return Sum([]sql.NullInt64{a, b}, k)
}

// Score3 is the three source form, exposed to hosts as rrf3(rank_a, rank_b, rank_c, k).
func Score3(a, b, c sql.NullInt64, k int64) (sql.NullFloat64, error) {
	return Sum([]sql.NullInt64{a, b, c}, k)
}
