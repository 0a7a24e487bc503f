package research

import "sort"

// RankSources orders sources by relevance score, highest first. The
// sort is stable: ties keep their input order and ranking an already
// ranked slice changes nothing.
func RankSources(sources []Source) []Source {
	ranked := make([]Source, len(sources))
	copy(ranked, sources)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelevanceScore > ranked[j].RelevanceScore
	})
	return ranked
}
