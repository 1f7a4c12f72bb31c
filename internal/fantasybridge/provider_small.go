//go:build connectchat_small

package fantasybridge

import (
	"fmt"

	"charm.land/fantasy"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
)

// newProvider builds an OpenAI-compatible provider whatever the API name,
// keeping the binary free of the vendor SDKs.
func newProvider(cfg Config) (fantasy.Provider, error) {
	opts := []fopenaicompat.Option{fopenaicompat.WithName(cfg.API)}
	if cfg.APIKey != "" {
		opts = append(opts, fopenaicompat.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, fopenaicompat.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, fopenaicompat.WithHTTPClient(cfg.HTTPClient))
	}
	provider, err := fopenaicompat.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("new fantasy %s provider: %w", cfg.API, err)
	}
	return provider, nil
}
