package batch_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/akhenakh/rrf/internal/batch"
	"github.com/akhenakh/rrf/internal/rrf"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const requests = `name: hybrid
ids_a: [10, 20, 30]
ids_b: [20, 40]
---
k: 10
ids_b: [1, null, 2]
---
name: broken
k: 0
ids_a: [1]
`

func TestDecode(t *testing.T) {
	reqs, err := batch.Decode(strings.NewReader(requests))
	require.NoError(t, err)
	require.Len(t, reqs, 3)

	assert.Equal(t, "hybrid", reqs[0].Name)
	assert.Nil(t, reqs[0].K)
	assert.Len(t, reqs[0].IDsA, 3)

	assert.Equal(t, "#2", reqs[1].Name)
	assert.Nil(t, reqs[1].IDsA, "missing list stays absent")
	require.Len(t, reqs[1].IDsB, 3)
	assert.Nil(t, reqs[1].IDsB[1])
}

func TestDecode_Empty(t *testing.T) {
	reqs, err := batch.Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := batch.Decode(strings.NewReader("ids_a: [1, two]\n"))
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	reqs, err := batch.Decode(strings.NewReader(requests))
	require.NoError(t, err)

	results := batch.Run(reqs, rrf.DefaultK)
	require.Len(t, results, 3)

	hybrid := results[0]
	require.NoError(t, hybrid.Err)
	assert.Equal(t, int64(rrf.DefaultK), hybrid.K)
	assert.Len(t, hybrid.Rows, 4)

	second := results[1]
	require.NoError(t, second.Err)
	assert.Equal(t, int64(10), second.K)
	require.Len(t, second.Rows, 2)
	for _, r := range second.Rows {
		if r.ID == 2 {
			assert.Equal(t, rrf.Ranked(3), r.RankB)
			assert.InDelta(t, 1.0/13.0, r.Score, 1e-12)
		}
	}

	broken := results[2]
	assert.ErrorIs(t, broken.Err, rrf.ErrInvalidConstant)
	assert.Empty(t, broken.Rows)
}

func TestProcessFile_Zstd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requests.yaml.zst")

	f, err := os.Create(path)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write([]byte(requests))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	results, err := batch.ProcessFile(path, rrf.DefaultK)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "hybrid", results[0].Name)
}

func TestProcessFile_Plain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.yaml")
	require.NoError(t, os.WriteFile(path, []byte(requests), 0644))

	results, err := batch.ProcessFile(path, 30)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int64(30), results[0].K)

	_, err = batch.ProcessFile(filepath.Join(t.TempDir(), "missing.yaml"), 30)
	assert.Error(t, err)
}
