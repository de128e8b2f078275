package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
	"github.com/khoango6804/MLN-chatbot-debate/internal/export"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

func (s *Server) registerTools() {
	// debate_get_session: current or latest archived state of one team.
	s.mcpServer.AddTool(
		mcplib.NewTool("debate_get_session",
			mcplib.WithDescription(`Get the state of a team's debate.

Returns the active session when the team is mid-debate, otherwise the most
recent archived session. Team ids are matched case-insensitively.

Set full=true for the complete snapshot including both turn ledgers;
by default a compact summary is returned.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("team_id",
				mcplib.Description("Team identifier, e.g. TEAM001"),
				mcplib.Required(),
			),
			mcplib.WithBoolean("full",
				mcplib.Description("Return the complete snapshot instead of a summary"),
				mcplib.DefaultBool(false),
			),
		),
		s.handleGetSession,
	)

	// debate_export: full transcript in a downloadable format.
	s.mcpServer.AddTool(
		mcplib.NewTool("debate_export",
			mcplib.WithDescription(`Export a team's debate transcript.

Phase 2 (AI asks, students answer) and Phase 3 (students ask, AI answers)
are rendered as numbered question and answer pairs, followed by
conclusions and the score sheet when the debate has been evaluated.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("team_id",
				mcplib.Description("Team identifier"),
				mcplib.Required(),
			),
			mcplib.WithString("format",
				mcplib.Description("Output format"),
				mcplib.Enum(string(export.FormatMarkdown), string(export.FormatText), string(export.FormatJSON)),
				mcplib.DefaultString(string(export.FormatMarkdown)),
			),
		),
		s.handleExport,
	)

	// debate_leaderboard: ranking of evaluated debates.
	s.mcpServer.AddTool(
		mcplib.NewTool("debate_leaderboard",
			mcplib.WithDescription(`Rank every evaluated debate by total score.

Ties are broken by earlier completion. Statistics (team count, average and
highest score, rank distribution) cover all ranked teams, not only the
returned page.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum number of standings to return"),
				mcplib.Min(1),
				mcplib.Max(maxLeaderboardLimit),
				mcplib.DefaultNumber(defaultLeaderboardLimit),
			),
		),
		s.handleLeaderboard,
	)

	// debate_list_active: sessions currently in progress.
	s.mcpServer.AddTool(
		mcplib.NewTool("debate_list_active",
			mcplib.WithDescription("List every debate currently in progress, oldest first, as compact summaries."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleListActive,
	)
}

func (s *Server) handleGetSession(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	teamID := request.GetString("team_id", "")
	if teamID == "" {
		return errorResult("team_id is required"), nil
	}

	snap, err := s.engine.Snapshot(ctx, teamID)
	if err != nil {
		return s.engineErrorResult("get session", teamID, err), nil
	}

	if request.GetBool("full", false) {
		return jsonResult(snap)
	}
	return jsonResult(compactSession(snap))
}

func (s *Server) handleExport(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	teamID := request.GetString("team_id", "")
	if teamID == "" {
		return errorResult("team_id is required"), nil
	}
	format, err := export.ParseFormat(request.GetString("format", ""))
	if err != nil {
		return errorResult("format must be one of md, txt, json"), nil
	}

	snap, err := s.engine.Snapshot(ctx, teamID)
	if err != nil {
		return s.engineErrorResult("export", teamID, err), nil
	}

	report := export.Build(snap, s.rubric, s.clock.Now())
	var buf bytes.Buffer
	if err := export.Render(&buf, report, format); err != nil {
		s.logger.Error("mcp: export render failed", "team_id", teamID, "error", err)
		return errorResult("export failed"), nil
	}
	return mcplib.NewToolResultText(buf.String()), nil
}

func (s *Server) handleLeaderboard(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	limit := request.GetInt("limit", defaultLeaderboardLimit)
	limit = min(max(limit, 1), maxLeaderboardLimit)

	standings, stats, err := s.engine.Leaderboard(ctx, limit)
	if err != nil {
		s.logger.Error("mcp: leaderboard failed", "error", err)
		return errorResult("leaderboard unavailable"), nil
	}
	return jsonResult(map[string]any{
		"standings":  standings,
		"statistics": stats,
	})
}

func (s *Server) handleListActive(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	active, err := s.engine.ListActive(ctx)
	if err != nil {
		s.logger.Error("mcp: list active failed", "error", err)
		return errorResult("session list unavailable"), nil
	}
	sessions := make([]map[string]any, 0, len(active))
	for _, snap := range active {
		sessions = append(sessions, compactSession(snap))
	}
	return jsonResult(map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// engineErrorResult turns an engine error into a tool error. Unknown teams
// are reported as such; anything else is logged and hidden.
func (s *Server) engineErrorResult(op, teamID string, err error) *mcplib.CallToolResult {
	if errors.Is(err, debate.ErrSessionNotFound) {
		return errorResult(fmt.Sprintf("no debate session for team %q", teamID))
	}
	s.logger.Error("mcp: "+op+" failed", "team_id", teamID, "error", err)
	return errorResult(op + " failed")
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal result: %w", err)
	}
	return mcplib.NewToolResultText(string(data)), nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
