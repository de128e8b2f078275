package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
	"github.com/khoango6804/MLN-chatbot-debate/internal/evaluation"
	"github.com/khoango6804/MLN-chatbot-debate/internal/llm"
	"github.com/khoango6804/MLN-chatbot-debate/internal/storage"
)

type fixture struct {
	server *Server
	engine *debate.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))

	// Every model call fails, so the engine runs on fallback content and
	// evaluations come back zero-filled.
	model := llm.ClientFunc(func(context.Context, string) (string, error) {
		return "", errors.New("model offline")
	})
	topics, err := debate.NewTopicBank(nil, nil, logger, debate.WithTopicPicker(func(int) int { return 0 }))
	require.NoError(t, err)
	rubric := evaluation.DefaultRubric()

	engine, err := debate.New(debate.Config{
		Store:        storage.NewMemoryStore(),
		Archive:      storage.NewMemoryArchive(),
		Model:        model,
		Topics:       topics,
		Evaluator:    evaluation.NewAggregator(model, rubric, logger, clk),
		Logger:       logger,
		Clock:        clk,
		StancePicker: func() debate.Stance { return debate.StanceDisagree },
	})
	require.NoError(t, err)

	srv := New(Deps{Engine: engine, Topics: topics, Rubric: rubric, Logger: logger, Clock: clk, Version: "test"})
	return &fixture{server: srv, engine: engine}
}

func (f *fixture) startDebate(t *testing.T, team string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.engine.Start(ctx, debate.StartRequest{TeamID: team, CourseCode: "MLN111", Members: []string{"Lan", "Minh"}})
	require.NoError(t, err)
	_, err = f.engine.SubmitTeamArguments(ctx, team, []string{"Vật chất quyết định ý thức"})
	require.NoError(t, err)
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcplib.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func TestNewRegistersServer(t *testing.T) {
	f := newFixture(t)
	assert.NotNil(t, f.server.MCPServer())
}

func TestGetSessionCompact(t *testing.T) {
	f := newFixture(t)
	f.startDebate(t, "Alpha")

	result, err := f.server.handleGetSession(context.Background(), toolRequest("debate_get_session", map[string]any{
		"team_id": "ALPHA",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &got))
	assert.Equal(t, "Alpha", got["team_id"])
	assert.Equal(t, string(debate.PhaseAIQuestions), got["phase"])
	assert.EqualValues(t, 1, got["phase2_turns"])
	assert.NotContains(t, got, "phase2_ledger")
	latest, ok := got["latest_phase2_turn"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(debate.AskerAI), latest["asker"])
}

func TestGetSessionFull(t *testing.T) {
	f := newFixture(t)
	f.startDebate(t, "Beta")

	result, err := f.server.handleGetSession(context.Background(), toolRequest("debate_get_session", map[string]any{
		"team_id": "Beta",
		"full":    true,
	}))
	require.NoError(t, err)

	var snap debate.Snapshot
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &snap))
	assert.Equal(t, "Beta", snap.TeamID)
	require.Len(t, snap.Phase2Ledger, 1)
	assert.Equal(t, debate.DefaultFirstQuestion, snap.Phase2Ledger[0].Question)
}

func TestGetSessionErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.server.handleGetSession(ctx, toolRequest("debate_get_session", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "team_id is required")

	result, err = f.server.handleGetSession(ctx, toolRequest("debate_get_session", map[string]any{"team_id": "nobody"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "no debate session")
}

func TestExportTool(t *testing.T) {
	f := newFixture(t)
	f.startDebate(t, "Gamma")
	ctx := context.Background()

	result, err := f.server.handleExport(ctx, toolRequest("debate_export", map[string]any{"team_id": "Gamma"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	text := parseToolText(t, result)
	assert.Contains(t, text, "Vật chất quyết định ý thức")
	assert.Contains(t, text, debate.DefaultFirstQuestion)

	result, err = f.server.handleExport(ctx, toolRequest("debate_export", map[string]any{"team_id": "Gamma", "format": "json"}))
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &report))
	assert.Contains(t, report, "phase2_pairs")

	result, err = f.server.handleExport(ctx, toolRequest("debate_export", map[string]any{"team_id": "Gamma", "format": "docx"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestLeaderboardTool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, team := range []string{"One", "Two"} {
		f.startDebate(t, team)
		_, err := f.engine.Evaluate(ctx, team, "")
		require.NoError(t, err)
		_, err = f.engine.Complete(ctx, team)
		require.NoError(t, err)
	}

	result, err := f.server.handleLeaderboard(ctx, toolRequest("debate_leaderboard", map[string]any{"limit": 1}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var got struct {
		Standings  []evaluation.Standing       `json:"standings"`
		Statistics evaluation.LeaderboardStats `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &got))
	require.Len(t, got.Standings, 1)
	assert.Equal(t, 2, got.Statistics.TotalTeams)
	assert.Equal(t, 0, got.Standings[0].TotalScore)
}

func TestListActiveTool(t *testing.T) {
	f := newFixture(t)
	f.startDebate(t, "Delta")
	f.startDebate(t, "Epsilon")
	_, err := f.engine.End(context.Background(), "Epsilon", "")
	require.NoError(t, err)

	result, err := f.server.handleListActive(context.Background(), toolRequest("debate_list_active", nil))
	require.NoError(t, err)

	var got struct {
		Sessions []map[string]any `json:"sessions"`
		Total    int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &got))
	require.Equal(t, 1, got.Total)
	assert.Equal(t, "Delta", got.Sessions[0]["team_id"])
}

func TestResources(t *testing.T) {
	f := newFixture(t)
	f.startDebate(t, "Zeta 7")
	ctx := context.Background()

	contents, err := f.server.handleTopics(ctx, mcplib.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text := contents[0].(mcplib.TextResourceContents).Text
	assert.Contains(t, text, "MLN111")

	contents, err = f.server.handleRubric(ctx, mcplib.ReadResourceRequest{})
	require.NoError(t, err)
	assert.Contains(t, contents[0].(mcplib.TextResourceContents).Text, `"max_total": 73`)

	req := mcplib.ReadResourceRequest{}
	req.Params.URI = "debate://session/Zeta%207"
	contents, err = f.server.handleSessionResource(ctx, req)
	require.NoError(t, err)
	var snap debate.Snapshot
	require.NoError(t, json.Unmarshal([]byte(contents[0].(mcplib.TextResourceContents).Text), &snap))
	assert.Equal(t, "Zeta 7", snap.TeamID)
}

func TestParseSessionURI(t *testing.T) {
	tests := []struct {
		name      string
		uri       string
		wantID    string
		errSubstr string
	}{
		{name: "simple", uri: "debate://session/TEAM001", wantID: "TEAM001"},
		{name: "escaped space", uri: "debate://session/Team%20A", wantID: "Team A"},
		{name: "unicode", uri: "debate://session/Nh%C3%B3m1", wantID: "Nhóm1"},
		{name: "empty", uri: "debate://session/", errSubstr: "empty team_id"},
		{name: "blank", uri: "debate://session/%20", errSubstr: "empty team_id"},
		{name: "wrong prefix", uri: "other://session/x", errSubstr: "invalid session URI"},
		{name: "nested path", uri: "debate://session/a/b", errSubstr: "invalid session URI"},
		{name: "bad escape", uri: "debate://session/%zz", errSubstr: "invalid session URI"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := parseSessionURI(tt.uri)
			if tt.errSubstr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
				assert.Empty(t, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestPrompts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.server.handleReviewDebatePrompt(ctx, mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{
			Name:      "review-debate",
			Arguments: map[string]string{"team_id": "TEAM009"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Description, "TEAM009")
	require.NotEmpty(t, result.Messages)
	tc, ok := result.Messages[0].Content.(mcplib.TextContent)
	require.True(t, ok)
	assert.Contains(t, tc.Text, `debate_export with team_id="TEAM009"`)

	_, err = f.server.handleReviewDebatePrompt(ctx, mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{Name: "review-debate", Arguments: map[string]string{}},
	})
	require.Error(t, err)

	summary, err := f.server.handleClassSummaryPrompt(ctx, mcplib.GetPromptRequest{})
	require.NoError(t, err)
	tc, ok = summary.Messages[0].Content.(mcplib.TextContent)
	require.True(t, ok)
	assert.Contains(t, tc.Text, "debate_leaderboard")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.Equal(t, "Nhó...", truncate("Nhóm tranh luận", 3))
	assert.Len(t, []rune(truncate(strings.Repeat("ạ", 300), maxCompactText)), maxCompactText+3)
}
