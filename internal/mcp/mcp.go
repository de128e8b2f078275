// Package mcp implements the Model Context Protocol server for the debate
// engine.
//
// The MCP server exposes read-only views of the HTTP API through MCP tools,
// resources and prompts, so instructors can inspect debates from an
// MCP-compatible assistant. Nothing reachable over MCP mutates a session.
package mcp

import (
	"log/slog"

	"github.com/benbjohnson/clock"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
	"github.com/khoango6804/MLN-chatbot-debate/internal/evaluation"
)

const instructions = `Read-only access to classroom debates between student teams and an AI opponent.
Use debate_leaderboard for rankings, debate_get_session for one team's state,
and debate_export for a full transcript.`

// Server wraps the MCP server with the debate engine.
type Server struct {
	mcpServer *mcpserver.MCPServer
	engine    *debate.Engine
	topics    *debate.TopicBank
	rubric    evaluation.Rubric
	logger    *slog.Logger
	clock     clock.Clock
}

// Deps holds the collaborators of the MCP server. Clock is optional.
type Deps struct {
	Engine  *debate.Engine
	Topics  *debate.TopicBank
	Rubric  evaluation.Rubric
	Logger  *slog.Logger
	Clock   clock.Clock
	Version string
}

// New creates and configures a new MCP server with all resources, tools and prompts.
func New(d Deps) *Server {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	s := &Server{
		engine: d.Engine,
		topics: d.Topics,
		rubric: d.Rubric,
		logger: d.Logger,
		clock:  d.Clock,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"debated",
		d.Version,
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithInstructions(instructions),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}
