package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/akhenakh/rrf/internal/rrf"
	"github.com/akhenakh/rrf/internal/util"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("5")).
			PaddingLeft(1).
			PaddingRight(1)

	cellStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			PaddingRight(1)

	// Dim gray
	borderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// RowJSON is the wire form of a fused row. Absent ranks encode as null.
type RowJSON struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
	RankA *int64  `json:"rank_a"`
	RankB *int64  `json:"rank_b"`
}

func ToJSON(rows []rrf.Row) []RowJSON {
	out := make([]RowJSON, len(rows))
	for i, r := range rows {
		out[i] = RowJSON{ID: r.ID, Score: r.Score}
		if r.RankA.Valid {
			v := r.RankA.Int64
			out[i].RankA = &v
		}
		if r.RankB.Valid {
			v := r.RankB.Int64
			out[i].RankB = &v
		}
	}
	return out
}

func FromJSON(rows []RowJSON) []rrf.Row {
	out := make([]rrf.Row, len(rows))
	for i, r := range rows {
		out[i] = rrf.Row{ID: r.ID, Score: r.Score}
		if r.RankA != nil {
			out[i].RankA = rrf.Ranked(*r.RankA)
		}
		if r.RankB != nil {
			out[i].RankB = rrf.Ranked(*r.RankB)
		}
	}
	return out
}

// MarshalRows encodes rows as a JSON array, never "null".
func MarshalRows(rows []rrf.Row) ([]byte, error) {
	return json.Marshal(ToJSON(rows))
}

// WriteJSON writes rows as an indented JSON array.
func WriteJSON(w io.Writer, rows []rrf.Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ToJSON(rows))
}

// RowsTable renders fused rows with one line per identifier.
func RowsTable(rows []rrf.Row) string {
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = []string{
			strconv.FormatInt(r.ID, 10),
			fmt.Sprintf("%.6f", r.Score),
			util.FormatRank(r.RankA),
			util.FormatRank(r.RankB),
		}
	}
	return Grid([]string{"ID", "SCORE", "RANK A", "RANK B"}, cells)
}

// Grid renders arbitrary string cells, used for ad-hoc SQL results.
func Grid(headers []string, cells [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, c := range cells {
		t.Row(c...)
	}
	return t.String()
}
