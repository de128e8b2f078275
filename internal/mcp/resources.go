package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
)

const (
	topicsURI         = "debate://topics"
	rubricURI         = "debate://rubric"
	sessionURIPrefix  = "debate://session/"
	sessionURIPattern = sessionURIPrefix + "{team_id}"
)

func (s *Server) registerResources() {
	// debate://topics: curated topics per course.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			topicsURI,
			"Curated Topics",
			mcplib.WithResourceDescription("Curated debate topics grouped by course code"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleTopics,
	)

	// debate://rubric: the scoring rubric.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			rubricURI,
			"Scoring Rubric",
			mcplib.WithResourceDescription("Phases and criteria used to score a debate, with maximum points"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRubric,
	)

	// debate://session/{team_id}: one team's session snapshot.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			sessionURIPattern,
			"Team Session",
			mcplib.WithTemplateDescription("Full snapshot of a team's active or latest archived debate"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleSessionResource,
	)
}

func (s *Server) handleTopics(_ context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	courses := make([]debate.Course, 0)
	for _, code := range s.topics.Courses() {
		if c, ok := s.topics.Course(code); ok {
			courses = append(courses, c)
		}
	}
	return jsonResource(topicsURI, courses)
}

func (s *Server) handleRubric(_ context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	return jsonResource(rubricURI, map[string]any{
		"phases":    s.rubric.Phases,
		"max_total": s.rubric.MaxTotal(),
	})
}

func (s *Server) handleSessionResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	teamID, err := parseSessionURI(uri)
	if err != nil {
		return nil, err
	}
	snap, err := s.engine.Snapshot(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("mcp: session %q: %w", teamID, err)
	}
	return jsonResource(uri, snap)
}

// parseSessionURI extracts the team id from debate://session/{team_id}.
// The id may be percent-encoded.
func parseSessionURI(uri string) (string, error) {
	raw, ok := strings.CutPrefix(uri, sessionURIPrefix)
	if !ok || strings.Contains(raw, "/") {
		return "", fmt.Errorf("mcp: invalid session URI: %s", uri)
	}
	teamID, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("mcp: invalid session URI: %s: %w", uri, err)
	}
	if strings.TrimSpace(teamID) == "" {
		return "", fmt.Errorf("mcp: empty team_id in URI: %s", uri)
	}
	return teamID, nil
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
