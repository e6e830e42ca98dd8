// Package conformance checks that a host of the rrf functions agrees with
// the in-process implementation.
package conformance

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/akhenakh/rrf/internal/rrf"
	"github.com/akhenakh/rrf/internal/util"
)

// Tolerance allows for hosts that move scores through text (JSON, SQL).
const Tolerance = 1e-12

// Scorer is implemented by every host: sqlhost.Host, pgext.Client and Core.
type Scorer interface {
	Score(ctx context.Context, a, b sql.NullInt64, k int64) (sql.NullFloat64, error)
	Score3(ctx context.Context, a, b, c sql.NullInt64, k int64) (sql.NullFloat64, error)
	Fuse(ctx context.Context, idsA, idsB []sql.NullInt64, k int64) ([]rrf.Row, error)
}

// Core runs the in-process implementation behind the Scorer interface.
type Core struct{}

func (Core) Score(_ context.Context, a, b sql.NullInt64, k int64) (sql.NullFloat64, error) {
	return rrf.Score(a, b, k)
}

func (Core) Score3(_ context.Context, a, b, c sql.NullInt64, k int64) (sql.NullFloat64, error) {
	return rrf.Score3(a, b, c, k)
}

func (Core) Fuse(_ context.Context, idsA, idsB []sql.NullInt64, k int64) ([]rrf.Row, error) {
	return rrf.Fuse(idsA, idsB, k)
}

type Failure struct {
	Case   string
	Reason string
}

type Report struct {
	Passed   int
	Failures []Failure
}

func (rep Report) OK() bool {
	return len(rep.Failures) == 0
}

func (rep *Report) record(name string, err error) {
	if err != nil {
		util.Debug("conformance %s: FAIL %v", name, err)
		rep.Failures = append(rep.Failures, Failure{Case: name, Reason: err.Error()})
		return
	}
	rep.Passed++
}

var (
	none = rrf.Absent
	r    = rrf.Ranked
)

type scoreCase struct {
	name  string
	ranks []sql.NullInt64
	k     int64
}

type fuseCase struct {
	name       string
	idsA, idsB []sql.NullInt64
	k          int64
}

func scoreCases() []scoreCase {
	return []scoreCase{
		{"rrf basic", []sql.NullInt64{r(1), r(2)}, 60},
		{"rrf one null", []sql.NullInt64{r(1), none}, 60},
		{"rrf all null", []sql.NullInt64{none, none}, 60},
		{"rrf zero rank", []sql.NullInt64{r(0), r(2)}, 60},
		{"rrf negative rank", []sql.NullInt64{r(-1), none}, 60},
		{"rrf small k", []sql.NullInt64{r(3), r(9)}, 1},
		{"rrf large ranks", []sql.NullInt64{r(100000), r(7)}, 1000},
		{"rrf k zero", []sql.NullInt64{r(1), r(2)}, 0},
		{"rrf k negative", []sql.NullInt64{none, none}, -1},
		{"rrf3 basic", []sql.NullInt64{r(1), r(2), r(3)}, 60},
		{"rrf3 sparse", []sql.NullInt64{none, r(4), r(0)}, 60},
		{"rrf3 all null", []sql.NullInt64{none, none, none}, 60},
		{"rrf3 k zero", []sql.NullInt64{r(1), r(2), r(3)}, 0},
	}
}

func fuseCases() []fuseCase {
	return []fuseCase{
		{"fuse union", rrf.IDs(10, 20, 30), rrf.IDs(20, 40), 60},
		{"fuse absent list", nil, rrf.IDs(1, 2), 60},
		{"fuse both absent", nil, nil, 60},
		{"fuse duplicates", rrf.IDs(10, 20, 10), rrf.IDs(10), 60},
		{"fuse null slots", []sql.NullInt64{none, r(7), none, r(8)}, []sql.NullInt64{r(8), none}, 60},
		{"fuse negative ids", rrf.IDs(-5, 0, 5), rrf.IDs(0), 10},
		{"fuse k zero", rrf.IDs(10, 20), rrf.IDs(20), 0},
	}
}

// Run executes every case against s and compares with the in-process result.
func Run(ctx context.Context, s Scorer) Report {
	var rep Report
	for _, c := range scoreCases() {
		rep.record(c.name, checkScore(ctx, s, c))
	}
	for _, c := range fuseCases() {
		rep.record(c.name, checkFuse(ctx, s, c))
	}
	return rep
}

func checkScore(ctx context.Context, s Scorer, c scoreCase) error {
	want, wantErr := rrf.Sum(c.ranks, c.k)

	var got sql.NullFloat64
	var err error
	switch len(c.ranks) {
	case 2:
		got, err = s.Score(ctx, c.ranks[0], c.ranks[1], c.k)
	case 3:
		got, err = s.Score3(ctx, c.ranks[0], c.ranks[1], c.ranks[2], c.k)
	default:
		return fmt.Errorf("unsupported arity %d", len(c.ranks))
	}

	if wantErr != nil {
		return expectInvalidConstant(err)
	}
	if err != nil {
		return fmt.Errorf("unexpected error: %w", err)
	}
	if got.Valid != want.Valid {
		return fmt.Errorf("score %s, want %s", util.FormatScore(got), util.FormatScore(want))
	}
	if want.Valid && math.Abs(got.Float64-want.Float64) > Tolerance {
		return fmt.Errorf("score %s, want %s", util.FormatScore(got), util.FormatScore(want))
	}
	return nil
}

func checkFuse(ctx context.Context, s Scorer, c fuseCase) error {
	want, wantErr := rrf.Fuse(c.idsA, c.idsB, c.k)
	got, err := s.Fuse(ctx, c.idsA, c.idsB, c.k)

	if wantErr != nil {
		if len(got) > 0 {
			return fmt.Errorf("got %d rows alongside an invalid k", len(got))
		}
		return expectInvalidConstant(err)
	}
	if err != nil {
		return fmt.Errorf("unexpected error: %w", err)
	}
	return compareRows(got, want)
}

// compareRows treats rows as a set keyed by identifier.
func compareRows(got, want []rrf.Row) error {
	if len(got) != len(want) {
		return fmt.Errorf("%d rows, want %d", len(got), len(want))
	}
	byID := make(map[int64]rrf.Row, len(got))
	for _, g := range got {
		if _, dup := byID[g.ID]; dup {
			return fmt.Errorf("id %d emitted twice", g.ID)
		}
		byID[g.ID] = g
	}
	for _, w := range want {
		g, ok := byID[w.ID]
		if !ok {
			return fmt.Errorf("missing id %d", w.ID)
		}
		if g.RankA != w.RankA || g.RankB != w.RankB {
			return fmt.Errorf("id %d ranks (%s, %s), want (%s, %s)", w.ID,
				util.FormatRank(g.RankA), util.FormatRank(g.RankB),
				util.FormatRank(w.RankA), util.FormatRank(w.RankB))
		}
		if math.Abs(g.Score-w.Score) > Tolerance {
			return fmt.Errorf("id %d score %v, want %v", w.ID, g.Score, w.Score)
		}
	}
	return nil
}

// Hosts report errors as text, so the message is what identifies the kind.
func expectInvalidConstant(err error) error {
	if err == nil {
		return fmt.Errorf("expected %q error, got none", rrf.ErrInvalidConstant)
	}
	if !strings.Contains(err.Error(), rrf.ErrInvalidConstant.Error()) {
		return fmt.Errorf("expected %q error, got %v", rrf.ErrInvalidConstant, err)
	}
	return nil
}
