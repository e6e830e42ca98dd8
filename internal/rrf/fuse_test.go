package rrf_test

import (
	"database/sql"
	"testing"

	"github.com/akhenakh/rrf/internal/rrf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// byID indexes rows so assertions do not depend on row order.
func byID(t *testing.T, rows []rrf.Row) map[int64]rrf.Row {
	t.Helper()
	m := make(map[int64]rrf.Row, len(rows))
	for _, r := range rows {
		_, dup := m[r.ID]
		require.False(t, dup, "identifier %d emitted twice", r.ID)
		m[r.ID] = r
	}
	return m
}

func TestFuse_Union(t *testing.T) {
	rows, err := rrf.Fuse(rrf.IDs(10, 20, 30), rrf.IDs(20, 40), 60)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	m := byID(t, rows)
	for _, id := range []int64{10, 20, 30, 40} {
		assert.Contains(t, m, id)
	}

	row20 := m[20]
	assert.Equal(t, rrf.Ranked(2), row20.RankA)
	assert.Equal(t, rrf.Ranked(1), row20.RankB)
	expected, err := rrf.Score(rrf.Ranked(2), rrf.Ranked(1), 60)
	require.NoError(t, err)
	assert.Equal(t, expected.Float64, row20.Score)

	row40 := m[40]
	assert.Equal(t, rrf.Absent, row40.RankA)
	assert.Equal(t, rrf.Ranked(2), row40.RankB)
	assert.InDelta(t, reciprocal(60, 2), row40.Score, 1e-12)

	row30 := m[30]
	assert.Equal(t, rrf.Ranked(3), row30.RankA)
	assert.False(t, row30.RankB.Valid)
}

func TestFuse_AbsentList(t *testing.T) {
	rows, err := rrf.Fuse(nil, rrf.IDs(1, 2), 60)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	m := byID(t, rows)
	assert.False(t, m[1].RankA.Valid)
	assert.Equal(t, rrf.Ranked(1), m[1].RankB)
	assert.InDelta(t, reciprocal(60, 1), m[1].Score, 1e-12)

	rows, err = rrf.Fuse(nil, nil, 60)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFuse_Duplicates(t *testing.T) {
	rows, err := rrf.Fuse(rrf.IDs(10, 20, 10), rrf.IDs(10), 60)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	m := byID(t, rows)
	assert.Equal(t, rrf.Ranked(1), m[10].RankA)
	assert.Equal(t, rrf.Ranked(1), m[10].RankB)
	assert.Equal(t, rrf.Ranked(2), m[20].RankA)
}

func TestFuse_DuplicateKeepsMinimum(t *testing.T) {
	// 5 first appears at position 3, then again at 4 and 6.
	ids := rrf.IDs(1, 2, 5, 5, 3, 5)
	rows, err := rrf.Fuse(nil, ids, 60)
	require.NoError(t, err)

	m := byID(t, rows)
	assert.Equal(t, rrf.Ranked(3), m[5].RankB)
	assert.Equal(t, rrf.Ranked(5), m[3].RankB)
}

func TestFuse_AbsentSlotsKeepPositions(t *testing.T) {
	ids := []sql.NullInt64{rrf.Absent, rrf.Ranked(7), rrf.Absent, rrf.Ranked(8)}
	rows, err := rrf.Fuse(ids, nil, 60)
	require.NoError(t, err)
	require.Len(t, rows, 2, "absent slots are skipped, not mapped to a placeholder")

	m := byID(t, rows)
	assert.Equal(t, rrf.Ranked(2), m[7].RankA)
	assert.Equal(t, rrf.Ranked(4), m[8].RankA)
}

func TestFuse_InvalidK(t *testing.T) {
	for _, k := range []int64{0, -1} {
		rows, err := rrf.Fuse(rrf.IDs(10, 20), rrf.IDs(20), k)
		require.Error(t, err)
		assert.ErrorIs(t, err, rrf.ErrInvalidConstant)
		assert.Empty(t, rows, "no partial output on invalid k")
	}
}

func TestFuse_EveryRowScored(t *testing.T) {
	rows, err := rrf.Fuse(rrf.IDs(4, 5, 6, 4), rrf.IDs(6, 7, 4), 10)
	require.NoError(t, err)
	for _, r := range rows {
		expected, err := rrf.Score(r.RankA, r.RankB, 10)
		require.NoError(t, err)
		require.True(t, expected.Valid)
		assert.Equal(t, expected.Float64, r.Score, "id %d", r.ID)
	}
}

func TestSortByScore(t *testing.T) {
	rows, err := rrf.Fuse(rrf.IDs(10, 20, 30), rrf.IDs(20, 40), 60)
	require.NoError(t, err)

	rrf.SortByScore(rows)
	require.Len(t, rows, 4)
	assert.Equal(t, int64(20), rows[0].ID, "listed by both sources")
	assert.Equal(t, int64(10), rows[1].ID)
	// 30 (rank 3 in A) and 40 (rank 2 in B) are not tied.
	assert.Equal(t, int64(40), rows[2].ID)
	assert.Equal(t, int64(30), rows[3].ID)

	tied := []rrf.Row{{ID: 9, Score: 0.5}, {ID: 3, Score: 0.5}, {ID: 1, Score: 0.1}}
	rrf.SortByScore(tied)
	assert.Equal(t, []int64{3, 9, 1}, []int64{tied[0].ID, tied[1].ID, tied[2].ID})
}

func TestTop(t *testing.T) {
	rows := []rrf.Row{{ID: 1}, {ID: 2}, {ID: 3}}
	assert.Len(t, rrf.Top(rows, 2), 2)
	assert.Len(t, rrf.Top(rows, 0), 3)
	assert.Len(t, rrf.Top(rows, 10), 3)
}
