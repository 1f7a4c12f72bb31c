//go:build !connectchat_small

package fantasybridge

import (
	"charm.land/fantasy"
	fgoogle "charm.land/fantasy/providers/google"
	fopenai "charm.land/fantasy/providers/openai"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
	"github.com/dotcommander/connectchat/internal/proto"
)

func usesOpenAIOptions(api string) bool {
	switch api {
	case apiOpenAI, apiAzure, apiAzureAD:
		return true
	}
	return false
}

func usesCompatOptions(api string) bool {
	switch api {
	case apiAnthropic, apiGoogle, apiOpenRouter, apiVercel, apiBedrock:
		return false
	}
	return !usesOpenAIOptions(api)
}

// applyProviderOptions attaches the per-vendor settings that have no
// counterpart in fantasy.Call: the end-user identifier, OpenAI's completion
// token cap and Gemini's thinking budget.
func applyProviderOptions(call *fantasy.Call, api string, cfg Config, req proto.Request) {
	var openAIOpts *fopenai.ProviderOptions
	openAI := func() *fopenai.ProviderOptions {
		if openAIOpts == nil {
			openAIOpts = &fopenai.ProviderOptions{}
			call.ProviderOptions[fopenai.Name] = openAIOpts
		}
		return openAIOpts
	}

	if req.User != "" {
		user := req.User
		switch {
		case usesOpenAIOptions(api):
			openAI().User = &user
		case usesCompatOptions(api):
			call.ProviderOptions[fopenaicompat.Name] = &fopenaicompat.ProviderOptions{User: &user}
		}
	}

	if req.MaxCompletionTokens != nil && usesOpenAIOptions(api) {
		openAI().MaxCompletionTokens = req.MaxCompletionTokens
	}

	if api == apiGoogle && cfg.ThinkingBudget > 0 {
		call.ProviderOptions[fgoogle.Name] = &fgoogle.ProviderOptions{
			ThinkingConfig: &fgoogle.ThinkingConfig{
				ThinkingBudget: fantasy.Opt(int64(cfg.ThinkingBudget)),
			},
		}
	}
}
