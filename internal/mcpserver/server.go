package mcpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/akhenakh/rrf/internal/output"
	"github.com/akhenakh/rrf/internal/rrf"
	"github.com/akhenakh/rrf/internal/util"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type Server struct {
	mcp      *server.MCPServer
	defaultK int64
	limit    int
}

// Internal structure for JSON responses
type scoreJSON struct {
	Score *float64 `json:"score"`
}

func NewServer(defaultK int64, limit int) *Server {
	mcpServer := server.NewMCPServer(
		"rrf",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	srv := &Server{
		mcp:      mcpServer,
		defaultK: defaultK,
		limit:    limit,
	}

	srv.registerTools()
	return srv
}

func (s *Server) Start() error {
	// Serve via Stdio by default for local agent integration
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	rankItems := map[string]any{"type": []string{"integer", "null"}}

	rrfTool := mcp.NewTool("rrf",
		mcp.WithDescription("Reciprocal Rank Fusion score of one item ranked by two sources: 1/(k+rank_a) + 1/(k+rank_b). Missing or non-positive ranks are ignored; returns {\"score\": null} when neither source ranked the item."),
		mcp.WithNumber("rank_a", mcp.Description("1-based rank in the first source, omit if unranked")),
		mcp.WithNumber("rank_b", mcp.Description("1-based rank in the second source, omit if unranked")),
		mcp.WithNumber("k", mcp.Required(), mcp.Description("Smoothing constant, must be positive")),
	)
	s.mcp.AddTool(rrfTool, s.handleScore("rank_a", "rank_b"))

	rrf3Tool := mcp.NewTool("rrf3",
		mcp.WithDescription("Reciprocal Rank Fusion score of one item ranked by three sources."),
		mcp.WithNumber("rank_a", mcp.Description("1-based rank in the first source, omit if unranked")),
		mcp.WithNumber("rank_b", mcp.Description("1-based rank in the second source, omit if unranked")),
		mcp.WithNumber("rank_c", mcp.Description("1-based rank in the third source, omit if unranked")),
		mcp.WithNumber("k", mcp.Required(), mcp.Description("Smoothing constant, must be positive")),
	)
	s.mcp.AddTool(rrf3Tool, s.handleScore("rank_a", "rank_b", "rank_c"))

	fuseTool := mcp.NewTool("rrf_fuse",
		mcp.WithDescription("Fuse two ranked lists of integer ids (best first) with Reciprocal Rank Fusion. Returns a JSON list of {id, score, rank_a, rank_b} sorted by score."),
		mcp.WithArray("ids_a", mcp.Items(rankItems), mcp.Description("Ids ranked by the first source, e.g. lexical search")),
		mcp.WithArray("ids_b", mcp.Items(rankItems), mcp.Description("Ids ranked by the second source, e.g. vector search")),
		mcp.WithNumber("k", mcp.DefaultNumber(float64(s.defaultK)), mcp.Description("Smoothing constant, must be positive")),
		mcp.WithNumber("limit", mcp.DefaultNumber(float64(s.limit)), mcp.Description("Max number of rows to return, 0 for all")),
	)
	s.mcp.AddTool(fuseTool, s.handleFuse)
}

func (s *Server) handleScore(rankArgs ...string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		k, err := optionalInt(args["k"])
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("k: %v", err)), nil
		}
		if !k.Valid {
			return mcp.NewToolResultError("required argument \"k\" not found"), nil
		}

		ranks := make([]sql.NullInt64, len(rankArgs))
		for i, name := range rankArgs {
			if ranks[i], err = optionalInt(args[name]); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("%s: %v", name, err)), nil
			}
		}

		score, err := rrf.Sum(ranks, k.Int64)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Scoring failed: %v", err)), nil
		}

		var resp scoreJSON
		if score.Valid {
			resp.Score = &score.Float64
		}
		jsonBytes, err := json.Marshal(resp)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("JSON marshal failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}
}

func (s *Server) handleFuse(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	limit := request.GetInt("limit", s.limit)

	k := s.defaultK
	if v, err := optionalInt(args["k"]); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("k: %v", err)), nil
	} else if v.Valid {
		k = v.Int64
	}

	idsA, err := optionalList(args["ids_a"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ids_a: %v", err)), nil
	}
	idsB, err := optionalList(args["ids_b"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ids_b: %v", err)), nil
	}

	rows, err := rrf.Fuse(idsA, idsB, k)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Fusion failed: %v", err)), nil
	}
	rrf.SortByScore(rows)
	rows = rrf.Top(rows, limit)
	util.Debug("mcp rrf_fuse: %d+%d ids -> %d rows (k=%d)", len(idsA), len(idsB), len(rows), k)

	jsonBytes, err := output.MarshalRows(rows)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("JSON marshal failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// optionalInt accepts JSON numbers with an integral value in the int64
// range; nil is absent.
func optionalInt(v any) (sql.NullInt64, error) {
	switch x := v.(type) {
	case nil:
		return rrf.Absent, nil
	case float64:
		n, err := util.FloatToInt(x)
		if err != nil {
			return rrf.Absent, err
		}
		return rrf.Ranked(n), nil
	case int:
		return rrf.Ranked(int64(x)), nil
	case int64:
		return rrf.Ranked(x), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return rrf.Absent, fmt.Errorf("expected an integer, got %v", x)
		}
		return rrf.Ranked(n), nil
	default:
		return rrf.Absent, fmt.Errorf("expected an integer or null, got %T", v)
	}
}

func optionalList(v any) ([]sql.NullInt64, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array, got %T", v)
	}
	ids := make([]sql.NullInt64, len(items))
	for i, item := range items {
		id, err := optionalInt(item)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", i+1, err)
		}
		ids[i] = id
	}
	return ids, nil
}
