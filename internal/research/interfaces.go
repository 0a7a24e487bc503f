package research

import "context"

// Searcher runs a web search and returns normalized sources.
type Searcher interface {
	Search(ctx context.Context, query string, strategy SearchStrategy, maxResults int) ([]Source, error)
}

// SourceSink receives discovered sources for long-term storage.
type SourceSink interface {
	StoreSource(src Source)
}

// Completer produces a completion for a system/user prompt pair.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userContent string, maxTokens int) (string, error)
}
