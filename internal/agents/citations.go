package agents

import "github.com/helicon-ai/inquiro/internal/research"

// FormatCitations renders sources as "Title - URL" lines. Sources
// without a title are listed as Untitled.
func FormatCitations(sources []research.Source) []string {
	citations := make([]string, 0, len(sources))
	for _, src := range sources {
		title := src.Title
		if title == "" {
			title = "Untitled"
		}
		citations = append(citations, title+" - "+src.URL)
	}
	return citations
}
