package research

import (
	"context"
	"fmt"
	"sync"
)

// fakeSearcher returns scripted sources per query and can fail
// selected queries.
type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]Source
	failing map[string]bool
	calls   []string
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		results: make(map[string][]Source),
		failing: make(map[string]bool),
	}
}

func (f *fakeSearcher) Search(ctx context.Context, query string, strategy SearchStrategy, maxResults int) ([]Source, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	f.mu.Unlock()

	if f.failing[query] {
		return nil, fmt.Errorf("backend unavailable for %q", query)
	}
	return f.results[query], nil
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeCompleter replays scripted replies in order, then errors.
type fakeCompleter struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userContent string, maxTokens int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", fmt.Errorf("no scripted reply left")
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

// memSink collects stored sources.
type memSink struct {
	mu      sync.Mutex
	sources []Source
}

func (m *memSink) StoreSource(src Source) {
	m.mu.Lock()
	m.sources = append(m.sources, src)
	m.mu.Unlock()
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

func src(url string, score float64) Source {
	return Source{URL: url, Title: url, Content: "content of " + url, RelevanceScore: score}
}
