package domain

// MatchTier identifies the search strategy that produced a result.
// Lower tiers take priority when scores tie.
type MatchTier int

const (
	TierFilename MatchTier = 1
	TierContent  MatchTier = 2
	TierReports  MatchTier = 3
)

func (t MatchTier) String() string {
	switch t {
	case TierFilename:
		return "filename"
	case TierContent:
		return "content"
	case TierReports:
		return "reports"
	default:
		return "unknown"
	}
}

// SearchResult is a scored reference to a command, produced by a tier or by the engine.
type SearchResult struct {
	Command        CommandMetadata `json:"command"`
	RelevanceScore int             `json:"relevance_score"`
	MatchTier      MatchTier       `json:"match_tier"`
	MatchReason    string          `json:"match_reason"`
	Excerpt        string          `json:"excerpt,omitempty"`
}
