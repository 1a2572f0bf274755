package websearch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Options struct {
	// Endpoint overrides the provider's API endpoint.
	Endpoint   string
	HTTPClient *http.Client
}

// New returns the Searcher for provider. A disabled provider yields
// (nil, nil) so callers skip web escalation.
func New(provider string, apiKey string, opts Options) (Searcher, error) {
	provider = strings.TrimSpace(strings.ToLower(provider))
	if provider == "" || provider == ProviderDisabled {
		return nil, nil
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("missing web search api key")
	}
	switch provider {
	case ProviderBrave:
		return newBraveSearcher(apiKey, opts), nil
	default:
		return nil, fmt.Errorf("unsupported web search provider %q", provider)
	}
}
