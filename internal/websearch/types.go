package websearch

import (
	"context"
	"strings"
)

const (
	ProviderBrave    = "brave"
	ProviderDisabled = "disabled"
)

// Searcher runs one web search. Implementations do not retry.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) (SearchResult, error)
}

type SearchRequest struct {
	Query string
	Count int
	// Sites restricts results to these hosts.
	Sites []string
}

func (r SearchRequest) Normalize() SearchRequest {
	out := r
	out.Query = strings.TrimSpace(out.Query)
	if out.Count <= 0 {
		out.Count = 5
	}
	if out.Count > 10 {
		out.Count = 10
	}
	sites := make([]string, 0, len(out.Sites))
	for _, s := range out.Sites {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			sites = append(sites, s)
		}
	}
	out.Sites = sites
	return out
}

// QueryString renders the query with any site restriction applied.
func (r SearchRequest) QueryString() string {
	if len(r.Sites) == 0 {
		return r.Query
	}
	parts := make([]string, 0, len(r.Sites))
	for _, s := range r.Sites {
		parts = append(parts, "site:"+s)
	}
	return r.Query + " (" + strings.Join(parts, " OR ") + ")"
}

type ResultItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

type SearchResult struct {
	Provider string       `json:"provider"`
	Query    string       `json:"query"`
	Results  []ResultItem `json:"results"`
}
