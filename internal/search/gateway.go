package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/helicon-ai/inquiro/internal/metrics"
	"github.com/helicon-ai/inquiro/internal/research"
	"github.com/helicon-ai/inquiro/internal/tracing"
)

const defaultBaseURL = "https://api.tavily.com"

// Config holds the search backend configuration.
type Config struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
	// RatePerSecond bounds outbound requests; zero disables limiting.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// Gateway performs web searches against a Tavily-compatible endpoint
// and normalizes results into research sources.
type Gateway struct {
	cfg      Config
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
	profiles ProfileProvider
}

// SetProfiles attaches a strategy profile provider. May be nil.
func (g *Gateway) SetProfiles(p ProfileProvider) { g.profiles = p }

// NewGateway validates the configuration and returns a ready gateway.
func NewGateway(cfg Config, logger *zap.Logger) (*Gateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("search: api key missing")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Gateway{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
	}, nil
}

type searchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type searchResponse struct {
	Results []struct {
		URL     string   `json:"url"`
		Title   string   `json:"title"`
		Content string   `json:"content"`
		Snippet string   `json:"snippet"`
		Score   *float64 `json:"score"`
	} `json:"results"`
}

// Search runs a query with the strategy's qualifier appended and returns
// normalized sources. Results missing a score default to 0.5.
func (g *Gateway) Search(ctx context.Context, query string, strategy research.SearchStrategy, maxResults int) ([]research.Source, error) {
	if maxResults <= 0 {
		maxResults = g.cfg.MaxResults
	}
	effective := QualifyQuery(query, strategy)

	var profile Profile
	var hasProfile bool
	if g.profiles != nil {
		if profile, hasProfile = g.profiles.ProfileFor(strategy); hasProfile {
			if profile.Qualifier != "" {
				effective = query + " " + profile.Qualifier
			}
			if profile.MaxResults > 0 && profile.MaxResults < maxResults {
				maxResults = profile.MaxResults
			}
		}
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("search: rate limit wait: %w", err)
		}
	}

	depth := "basic"
	if strategy == research.StrategyGeneral || strategy == "" {
		depth = "advanced"
	}

	url := fmt.Sprintf("%s/search", g.cfg.BaseURL)
	payload := searchRequest{
		APIKey:      g.cfg.APIKey,
		Query:       effective,
		MaxResults:  maxResults,
		SearchDepth: depth,
	}
	buf, _ := json.Marshal(payload)

	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := g.http.Do(req)
	if err != nil {
		metrics.SearchRequests.WithLabelValues(depth, "error").Inc()
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.SearchRequests.WithLabelValues(depth, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("search http status %d: %s", resp.StatusCode, string(body))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		metrics.SearchRequests.WithLabelValues(depth, "error").Inc()
		return nil, fmt.Errorf("search decode: %w", err)
	}

	sources := make([]research.Source, 0, len(sr.Results))
	for _, item := range sr.Results {
		content := item.Content
		if content == "" {
			content = item.Snippet
		}
		score := 0.5
		if item.Score != nil {
			score = *item.Score
		}
		sources = append(sources, research.Source{
			URL:            item.URL,
			Title:          item.Title,
			Content:        content,
			RelevanceScore: score,
		})
	}

	if hasProfile {
		sources = applyProfile(sources, profile)
	}

	metrics.SearchRequests.WithLabelValues(depth, "ok").Inc()
	metrics.SearchRequestDuration.Observe(time.Since(start).Seconds())
	g.logger.Debug("Search completed",
		zap.String("query", effective),
		zap.Int("results", len(sources)),
	)
	return sources, nil
}

// QualifyQuery appends the strategy's search qualifier to the query.
// General queries pass through unchanged.
func QualifyQuery(query string, strategy research.SearchStrategy) string {
	switch strategy {
	case research.StrategyNews:
		return query + " site:news"
	case research.StrategyAcademic:
		return query + " filetype:pdf"
	default:
		return query
	}
}
