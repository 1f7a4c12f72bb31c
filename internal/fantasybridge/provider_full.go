//go:build !connectchat_small

package fantasybridge

import (
	"fmt"
	"strings"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/azure"
	"charm.land/fantasy/providers/bedrock"
	fgoogle "charm.land/fantasy/providers/google"
	fopenai "charm.land/fantasy/providers/openai"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
	"charm.land/fantasy/providers/openrouter"
	"charm.land/fantasy/providers/vercel"
)

type providerBuilder func(cfg Config) (fantasy.Provider, error)

var builders = map[string]providerBuilder{
	apiOpenAI:     openAIProvider,
	apiAnthropic:  anthropicProvider,
	apiGoogle:     googleProvider,
	apiAzure:      azureProvider,
	apiAzureAD:    azureProvider,
	apiOpenRouter: openRouterProvider,
	apiVercel:     vercelProvider,
	apiBedrock:    bedrockProvider,
}

func newProvider(cfg Config) (fantasy.Provider, error) {
	build, ok := builders[cfg.API]
	if !ok {
		build = compatProvider
	}
	provider, err := build(cfg)
	if err != nil {
		return nil, fmt.Errorf("new fantasy %s provider: %w", cfg.API, err)
	}
	return provider, nil
}

func openAIProvider(cfg Config) (fantasy.Provider, error) {
	opts := []fopenai.Option{fopenai.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, fopenai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, fopenai.WithHTTPClient(cfg.HTTPClient))
	}
	return fopenai.New(opts...) //nolint:wrapcheck
}

func anthropicProvider(cfg Config) (fantasy.Provider, error) {
	opts := []anthropic.Option{anthropic.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/v1")))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, anthropic.WithHTTPClient(cfg.HTTPClient))
	}
	return anthropic.New(opts...) //nolint:wrapcheck
}

func googleProvider(cfg Config) (fantasy.Provider, error) {
	opts := []fgoogle.Option{fgoogle.WithGeminiAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, fgoogle.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, fgoogle.WithHTTPClient(cfg.HTTPClient))
	}
	return fgoogle.New(opts...) //nolint:wrapcheck
}

func azureProvider(cfg Config) (fantasy.Provider, error) {
	opts := []azure.Option{azure.WithAPIKey(cfg.APIKey), azure.WithBaseURL(cfg.BaseURL)}
	if cfg.HTTPClient != nil {
		opts = append(opts, azure.WithHTTPClient(cfg.HTTPClient))
	}
	return azure.New(opts...) //nolint:wrapcheck
}

func openRouterProvider(cfg Config) (fantasy.Provider, error) {
	opts := []openrouter.Option{openrouter.WithAPIKey(cfg.APIKey)}
	if cfg.HTTPClient != nil {
		opts = append(opts, openrouter.WithHTTPClient(cfg.HTTPClient))
	}
	return openrouter.New(opts...) //nolint:wrapcheck
}

func vercelProvider(cfg Config) (fantasy.Provider, error) {
	opts := []vercel.Option{vercel.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, vercel.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, vercel.WithHTTPClient(cfg.HTTPClient))
	}
	return vercel.New(opts...) //nolint:wrapcheck
}

func bedrockProvider(cfg Config) (fantasy.Provider, error) {
	var opts []bedrock.Option
	if cfg.APIKey != "" {
		opts = append(opts, bedrock.WithAPIKey(cfg.APIKey))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, bedrock.WithHTTPClient(cfg.HTTPClient))
	}
	return bedrock.New(opts...) //nolint:wrapcheck
}

func compatProvider(cfg Config) (fantasy.Provider, error) {
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
	return fopenaicompat.New(opts...) //nolint:wrapcheck
}
