package research

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGapAnalyzerParsesReply(t *testing.T) {
	completer := &fakeCompleter{replies: []string{
		`Here you go: {"next_search":["solar storage costs"],"need_more":true}`,
	}}
	g := NewGapAnalyzer(completer, zap.NewNop())

	report := g.Analyze(context.Background(), []Source{src("a", 0.5)}, []SubQuestion{{Question: "q1"}})
	assert.True(t, report.NeedMore)
	assert.Equal(t, []string{"solar storage costs"}, report.NextSearch)
}

func TestGapAnalyzerMalformedReplyTerminates(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"i cannot answer in json today"}}
	g := NewGapAnalyzer(completer, zap.NewNop())

	report := g.Analyze(context.Background(), nil, nil)
	assert.False(t, report.NeedMore)
	assert.Empty(t, report.NextSearch)
}

func TestGapAnalyzerCallFailureTerminates(t *testing.T) {
	completer := &fakeCompleter{err: fmt.Errorf("model offline")}
	g := NewGapAnalyzer(completer, zap.NewNop())

	report := g.Analyze(context.Background(), []Source{src("a", 0.5)}, []SubQuestion{{Question: "q"}})
	assert.False(t, report.NeedMore)
	assert.NotNil(t, report.NextSearch)
	assert.Empty(t, report.NextSearch)
}
