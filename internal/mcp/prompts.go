package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// review-debate: walks an instructor through reviewing one team's debate.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("review-debate",
			mcplib.WithPromptDescription("Review a team's debate transcript and score sheet"),
			mcplib.WithArgument("team_id",
				mcplib.ArgumentDescription("The team whose debate should be reviewed"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleReviewDebatePrompt,
	)

	// class-summary: summarizes the leaderboard for a class.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("class-summary",
			mcplib.WithPromptDescription("Summarize the leaderboard and in-progress debates for the whole class"),
		),
		s.handleClassSummaryPrompt,
	)
}

func (s *Server) handleReviewDebatePrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	teamID := request.Params.Arguments["team_id"]
	if teamID == "" {
		return nil, fmt.Errorf("team_id argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Review the debate of team %s", teamID),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Review the debate of team %[1]s.

1. CALL debate_export with team_id="%[1]s" and format="md" to read the transcript.

2. For each phase, note:
   - Phase 1: whether the team's arguments are grounded in theory and evidence.
   - Phase 2: whether the students' answers address the AI's questions directly.
   - Phase 3: whether the students' questions probe the AI's position.
   - Phase 4: whether the conclusion answers the AI's counter-arguments.

3. If the debate has a score sheet, compare it with your reading and point out
   any criterion where the score looks inconsistent with the transcript.

4. Finish with three concrete suggestions the team can act on next time.`, teamID),
				},
			},
		},
	}, nil
}

func (s *Server) handleClassSummaryPrompt(_ context.Context, _ mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	return &mcplib.GetPromptResult{
		Description: "Summarize class debate results",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: `Summarize how the class is doing in its debates.

1. CALL debate_leaderboard to get the ranked standings and statistics.
2. CALL debate_list_active to see which teams are still debating.
3. Report the average and highest score, the rank distribution, and the
   top three teams. Mention teams still in progress and their current phase.
Keep the summary short enough to read aloud at the start of class.`,
				},
			},
		},
	}, nil
}
