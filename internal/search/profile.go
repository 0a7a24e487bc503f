package search

import (
	"strings"

	"github.com/helicon-ai/inquiro/internal/research"
)

// Profile tunes searches for one strategy: an alternate query
// qualifier, a result cap, and filters applied after normalization.
type Profile struct {
	Qualifier      string
	MaxResults     int
	BlockedDomains []string
	MinRelevance   float64
}

// ProfileProvider resolves the active profile for a strategy, if any.
type ProfileProvider interface {
	ProfileFor(strategy research.SearchStrategy) (Profile, bool)
}

// applyProfile filters normalized sources against the profile.
func applyProfile(sources []research.Source, p Profile) []research.Source {
	out := sources[:0]
	for _, src := range sources {
		if src.RelevanceScore < p.MinRelevance {
			continue
		}
		if blockedDomain(src.URL, p.BlockedDomains) {
			continue
		}
		out = append(out, src)
	}
	return out
}

func blockedDomain(url string, blocked []string) bool {
	for _, domain := range blocked {
		if domain != "" && strings.Contains(url, domain) {
			return true
		}
	}
	return false
}
