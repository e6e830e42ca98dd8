package pgext_test

import (
	"strings"
	"testing"

	"github.com/akhenakh/rrf/internal/pgext"
	"github.com/stretchr/testify/assert"
)

func TestInstallSQLDefinesFunctions(t *testing.T) {
	sql := pgext.InstallSQL()
	for _, fn := range []string{"rrf_sum", "rrf", "rrf3", "rrf_fuse"} {
		assert.Contains(t, sql, "CREATE OR REPLACE FUNCTION "+fn+"(")
	}
	assert.Contains(t, sql, "rrf k must be positive")
	assert.Contains(t, sql, "k bigint DEFAULT 60")
	assert.Equal(t, 4, strings.Count(sql, "SET search_path FROM CURRENT"))
}

func TestQualify(t *testing.T) {
	c := &pgext.Client{Schema: "search"}
	assert.Equal(t, `"search"."rrf_fuse"`, c.Qualify("rrf_fuse"))

	c = &pgext.Client{Schema: `odd"name`}
	assert.Equal(t, `"odd""name"."rrf"`, c.Qualify("rrf"))
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := pgext.Open("", "public")
	assert.Error(t, err)
}
