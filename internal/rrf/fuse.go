package rrf

import (
	"database/sql"
	"sort"
)

// Row is the fused result for one identifier.
type Row struct {
	ID    int64
	Score float64
	RankA sql.NullInt64
	RankB sql.NullInt64
}

// IDs builds a ranked list where every slot is present.
func IDs(ids ...int64) []sql.NullInt64 {
	list := make([]sql.NullInt64, len(ids))
	for i, id := range ids {
		list[i] = Ranked(id)
	}
	return list
}

// Fuse merges two ranked lists of identifiers into one row per identifier.
// A nil list contributes nothing. When an identifier is listed several
// times in the same list its best (smallest) position is kept.
//
// Rows come out in first-seen order, list A first. Callers must not rely
// on it; use SortByScore for a ranking.
func Fuse(idsA, idsB []sql.NullInt64, k int64) ([]Row, error) {
	if err := checkK(k); err != nil {
		return nil, err
	}
	kf := float64(k)

	ranksA, orderA := bestRanks(idsA)
	ranksB, orderB := bestRanks(idsB)

	rows := make([]Row, 0, len(orderA)+len(orderB))
	emit := func(id int64) {
		ra, rb := lookup(ranksA, id), lookup(ranksB, id)
		var score float64
		if s := sum([]sql.NullInt64{ra, rb}, kf); s.Valid {
			score = s.Float64
		}
		rows = append(rows, Row{ID: id, Score: score, RankA: ra, RankB: rb})
	}

	for _, id := range orderA {
		emit(id)
	}
	for _, id := range orderB {
		if _, seen := ranksA[id]; seen {
			continue
		}
		emit(id)
	}
	return rows, nil
}

// bestRanks maps each present identifier to its smallest 1-based position
// and returns the identifiers in the order they were first seen.
func bestRanks(ids []sql.NullInt64) (map[int64]int64, []int64) {
	ranks := make(map[int64]int64, len(ids))
	order := make([]int64, 0, len(ids))
	for i, id := range ids {
		if !id.Valid {
			continue
		}
		rank := int64(i + 1)
		best, ok := ranks[id.Int64]
		if !ok {
			order = append(order, id.Int64)
		} else if best <= rank {
			continue
		}
		ranks[id.Int64] = rank
	}
	return ranks, order
}

func lookup(ranks map[int64]int64, id int64) sql.NullInt64 {
	if r, ok := ranks[id]; ok {
		return Ranked(r)
	}
	return Absent
}

// SortByScore orders rows by descending score, ties broken by ascending id.
func SortByScore(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].ID < rows[j].ID
	})
}

// Top returns at most n rows. n <= 0 keeps everything.
func Top(rows []Row, n int) []Row {
	if n <= 0 || n >= len(rows) {
		return rows
	}
	return rows[:n]
}
