package debate

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeTeamID returns the canonical session key for a team id:
// Unicode NFKC, surrounding whitespace trimmed, then case-folded.
// Every SessionStore call uses this key.
func NormalizeTeamID(teamID string) string {
	s := norm.NFKC.String(teamID)
	s = strings.TrimSpace(s)
	// A Caser is stateful, so each call gets its own.
	return cases.Fold().String(s)
}
