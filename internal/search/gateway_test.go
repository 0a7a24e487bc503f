package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/research"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*Gateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g, err := NewGateway(Config{APIKey: "k", BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)
	return g, srv
}

func TestNewGatewayRequiresAPIKey(t *testing.T) {
	_, err := NewGateway(Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestQualifyQuery(t *testing.T) {
	assert.Equal(t, "climate change", QualifyQuery("climate change", research.StrategyGeneral))
	assert.Equal(t, "climate change site:news", QualifyQuery("climate change", research.StrategyNews))
	assert.Equal(t, "climate change filetype:pdf", QualifyQuery("climate change", research.StrategyAcademic))
	// Unknown strategies pass through unchanged.
	assert.Equal(t, "climate change", QualifyQuery("climate change", research.SearchStrategy("video")))
}

func TestSearchNormalization(t *testing.T) {
	score := 0.9
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "quantum computing", req["query"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"url": "https://a.example", "title": "A", "content": "full text", "score": score},
				{"url": "https://b.example", "title": "B", "snippet": "snippet only"},
			},
		})
	})

	sources, err := g.Search(context.Background(), "quantum computing", research.StrategyGeneral, 5)
	require.NoError(t, err)
	require.Len(t, sources, 2)

	assert.Equal(t, "full text", sources[0].Content)
	assert.Equal(t, 0.9, sources[0].RelevanceScore)

	// Snippet fills missing content; missing score defaults to 0.5.
	assert.Equal(t, "snippet only", sources[1].Content)
	assert.Equal(t, 0.5, sources[1].RelevanceScore)
}

func TestSearchAppendsStrategyQualifier(t *testing.T) {
	var gotQuery string
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		gotQuery = req["query"].(string)
		json.NewEncoder(w).Encode(map[string]interface{}{"results": []interface{}{}})
	})

	_, err := g.Search(context.Background(), "fusion energy", research.StrategyNews, 3)
	require.NoError(t, err)
	assert.Equal(t, "fusion energy site:news", gotQuery)
}

func TestSearchDepthPerStrategy(t *testing.T) {
	var gotDepth string
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		gotDepth = req["search_depth"].(string)
		json.NewEncoder(w).Encode(map[string]interface{}{"results": []interface{}{}})
	})

	_, err := g.Search(context.Background(), "x", research.StrategyGeneral, 3)
	require.NoError(t, err)
	assert.Equal(t, "advanced", gotDepth)

	_, err = g.Search(context.Background(), "x", research.StrategyNews, 3)
	require.NoError(t, err)
	assert.Equal(t, "basic", gotDepth)
}

func TestSearchBackendError(t *testing.T) {
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := g.Search(context.Background(), "x", research.StrategyGeneral, 3)
	assert.Error(t, err)
}

type staticProfiles struct {
	profile Profile
}

func (s staticProfiles) ProfileFor(research.SearchStrategy) (Profile, bool) {
	return s.profile, true
}

func TestSearchAppliesProfile(t *testing.T) {
	var gotQuery string
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		gotQuery = req["query"].(string)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"url": "https://keep.example/a", "title": "Keep", "content": "x", "score": 0.8},
				{"url": "https://spam.example/b", "title": "Blocked", "content": "y", "score": 0.9},
				{"url": "https://keep.example/c", "title": "TooWeak", "content": "z", "score": 0.1},
			},
		})
	})
	g.SetProfiles(staticProfiles{profile: Profile{
		Qualifier:      "site:gov",
		BlockedDomains: []string{"spam.example"},
		MinRelevance:   0.5,
	}})

	sources, err := g.Search(context.Background(), "policy", research.StrategyGeneral, 5)
	require.NoError(t, err)

	assert.Equal(t, "policy site:gov", gotQuery)
	require.Len(t, sources, 1)
	assert.Equal(t, "Keep", sources[0].Title)
}
