package agent

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/go-shellwords"
	"github.com/charmbracelet/log"

	"github.com/dotcommander/connectchat/internal/config"
	"github.com/dotcommander/connectchat/internal/errs"
	"github.com/dotcommander/connectchat/internal/fantasybridge"
	"github.com/dotcommander/connectchat/internal/proto"
	"github.com/dotcommander/connectchat/internal/storage"
	"github.com/dotcommander/connectchat/internal/stream"
	"github.com/dotcommander/connectchat/internal/tool"
)

// ClientFactory builds the streaming model client for a resolved provider.
type ClientFactory func(fantasybridge.Config) (stream.Client, error)

// ConnectTools returns the tools of an external user's connected accounts,
// optionally narrowed to apps.
type ConnectTools func(externalUserID string, apps []string) tool.Provider

// Service runs chat turns: it resolves the model and the tools, drives Run and
// persists the conversation after every step.
//
// It is surface-agnostic and backs both the HTTP API and the chat command.
type Service struct {
	cfg           *config.Config
	store         *storage.Store
	mcp           tool.Provider
	connect       ConnectTools
	clientFactory ClientFactory
	logger        *log.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStore persists conversations into store.
func WithStore(store *storage.Store) ServiceOption {
	return func(s *Service) { s.store = store }
}

// WithMCP adds the tools of the locally configured MCP servers.
func WithMCP(p tool.Provider) ServiceOption {
	return func(s *Service) { s.mcp = p }
}

// WithConnect adds per-user tools from connected accounts.
func WithConnect(fn ConnectTools) ServiceOption {
	return func(s *Service) { s.connect = fn }
}

// WithClientFactory replaces the fantasy client factory.
func WithClientFactory(fn ClientFactory) ServiceOption {
	return func(s *Service) { s.clientFactory = fn }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// New creates an agent service.
func New(cfg *config.Config, opts ...ServiceOption) *Service {
	s := &Service{
		cfg:           cfg,
		clientFactory: NewFantasyClient,
		logger:        log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Turn is one user request against a conversation.
type Turn struct {
	// ConversationID names the stored conversation. Empty starts a new one.
	ConversationID string
	// Messages is the whole conversation so far, ending with the user's
	// message.
	Messages       []proto.Message
	Model          string
	API            string
	ExternalUserID string
	Apps           []string
	Title          string
}

// TurnResult is what a finished turn left behind.
type TurnResult struct {
	ConversationID string
	Messages       []proto.Message
	Model          config.Model
}

// Chat runs one turn, streaming its output into sink.
//
// A model missing upstream is retried once on its configured fallback when
// nothing was produced yet.
func (s *Service) Chat(ctx context.Context, turn Turn, sink stream.Sink) (TurnResult, error) {
	if len(turn.Messages) == 0 {
		return TurnResult{}, errs.Error{Reason: "No messages to send."}.WithStatus(http.StatusBadRequest)
	}

	api, mod, err := s.ResolveModel(turn.API, turn.Model)
	if err != nil {
		return TurnResult{}, err
	}

	system, err := config.LoadMsg(ctx, s.cfg.System)
	if err != nil {
		return TurnResult{}, errs.Error{Err: err, Reason: "Could not load the system prompt."}
	}

	result := TurnResult{
		ConversationID: cmp.Or(turn.ConversationID, storage.NewConversationID()),
		Messages:       slices.Clone(turn.Messages),
		Model:          mod,
	}
	tools := s.Tools(turn.ExternalUserID, turn.Apps)

	for {
		err = s.run(ctx, api, mod, system, turn, &result, tools, sink)
		if err == nil {
			return result, nil
		}
		fallback, ok := FallbackFor(err, mod)
		if !ok || len(result.Messages) != len(turn.Messages) {
			return result, s.ClassifyError(err, mod)
		}
		s.logger.Warn("model not found, using fallback", "model", mod.Name, "fallback", fallback)
		if api, mod, err = s.ResolveModel("", fallback); err != nil {
			return result, err
		}
		mod.Fallback = ""
		result.Model = mod
	}
}

func (s *Service) run(
	ctx context.Context,
	api config.API,
	mod config.Model,
	system string,
	turn Turn,
	result *TurnResult,
	tools tool.Provider,
	sink stream.Sink,
) error {
	providerCfg, err := prepareProviderConfig(ctx, mod, api)
	if err != nil {
		return err
	}
	if err := ApplyProxyConfig(s.cfg.HTTPProxy, &providerCfg); err != nil {
		return err
	}
	client, err := s.clientFactory(providerCfg)
	if err != nil {
		return err
	}

	req := s.request(api, mod, system)
	save := func(context.Context, proto.StepResult) error {
		return s.save(storage.Record{
			ID:             result.ConversationID,
			Title:          turn.Title,
			API:            mod.API,
			Model:          mod.Name,
			ExternalUserID: turn.ExternalUserID,
		}, result.Messages)
	}

	return Run(ctx, client, sink, &result.Messages, tools,
		WithStepLimit(s.cfg.MaxSteps),
		WithOnStepComplete(save),
		WithRequest(req),
		WithLogger(s.logger),
		WithSendReasoning(s.cfg.SendReasoning),
		WithSmoothing(s.cfg.Smoothing),
	)
}

func (s *Service) request(api config.API, mod config.Model, system string) proto.Request {
	cfg := s.cfg
	req := proto.Request{
		API:    mod.API,
		Model:  mod.Name,
		System: system,
		User:   cmp.Or(api.User, cfg.User),
	}
	if cfg.Temperature >= 0 {
		v := cfg.Temperature
		req.Temperature = &v
	}
	if cfg.TopP >= 0 {
		v := cfg.TopP
		req.TopP = &v
	}
	if cfg.TopK >= 0 {
		v := cfg.TopK
		req.TopK = &v
	}
	// o1 models do not accept max_tokens.
	if cfg.MaxTokens > 0 && !strings.HasPrefix(mod.Name, "o1") {
		v := cfg.MaxTokens
		req.MaxTokens = &v
	}
	if cfg.MaxCompletionTokens > 0 {
		v := cfg.MaxCompletionTokens
		req.MaxCompletionTokens = &v
	}
	return req
}

func (s *Service) save(rec storage.Record, msgs []proto.Message) error {
	if s.store == nil || s.cfg.NoCache {
		return nil
	}
	if err := s.store.Save(rec, msgs); err != nil {
		return fmt.Errorf("persist conversation: %w", err)
	}
	return nil
}

// Tools returns the tool provider for a turn: the configured MCP servers plus
// the user's connected accounts.
func (s *Service) Tools(externalUserID string, apps []string) tool.Provider {
	var providers []tool.Provider
	if s.mcp != nil {
		providers = append(providers, s.mcp)
	}
	if s.connect != nil && externalUserID != "" {
		providers = append(providers, s.connect(externalUserID, apps))
	}
	return tool.Merge(providers...)
}

// Models returns the chat model catalogue and the default model.
func (s *Service) Models() ([]config.ChatModel, string) {
	return s.cfg.ChatModels, s.cfg.Model
}

// History loads a stored conversation.
func (s *Service) History(id string) (storage.Record, []proto.Message, error) {
	if s.store == nil {
		return storage.Record{}, nil, errs.Error{Reason: "Conversation history is disabled."}.WithStatus(http.StatusNotFound)
	}
	rec, msgs, err := s.store.Load(id)
	if err != nil {
		return storage.Record{}, nil, errs.Wrap(err, "Could not load the conversation.").WithStatus(http.StatusNotFound)
	}
	return rec, msgs, nil
}

// ResolveModel finds a model by name or alias, within apiName when set.
// Empty names fall back to the configured defaults.
func (s *Service) ResolveModel(apiName, model string) (config.API, config.Model, error) {
	return resolveModel(s.cfg.APIs, cmp.Or(apiName, s.cfg.API), cmp.Or(model, s.cfg.Model))
}

func resolveModel(apis config.APIs, apiName, model string) (config.API, config.Model, error) {
	for _, api := range apis {
		if api.Name != apiName && apiName != "" {
			continue
		}
		name := model
		for mname, mod := range api.Models {
			if mname == model || slices.Contains(mod.Aliases, model) {
				name = mname
				break
			}
		}
		mod, ok := api.Models[name]
		if ok {
			mod.Name = name
			mod.API = api.Name
			return api, mod, nil
		}
		if apiName != "" {
			available := slices.Sorted(maps.Keys(api.Models))
			return config.API{}, config.Model{}, errs.Error{
				Err:    errs.UserErrorf("Available models are: %s", strings.Join(available, ", ")),
				Reason: fmt.Sprintf("The API endpoint %s does not contain the model %s", apiName, model),
				Status: http.StatusBadRequest,
			}
		}
	}

	return config.API{}, config.Model{}, errs.Error{
		Reason: fmt.Sprintf("Model %s is not in the settings file.", model),
		Err:    errs.UserErrorf("Please specify an API endpoint with --api or configure the model in the settings: connectchat config"),
		Status: http.StatusBadRequest,
	}
}

type keySpec struct {
	env     string
	docsURL string
	reason  string
}

var providerKeys = map[string]keySpec{
	"openrouter": {"OPENROUTER_API_KEY", "https://openrouter.ai/keys", "OpenRouter authentication failed"},
	"vercel":     {"VERCEL_API_KEY", "https://vercel.com/dashboard/tokens", "Vercel AI Gateway authentication failed"},
	"cohere":     {"COHERE_API_KEY", "https://dashboard.cohere.com/api-keys", "Cohere authentication failed"},
	"azure":      {"AZURE_OPENAI_KEY", "https://aka.ms/oai/access", "Azure authentication failed"},
	"azure-ad":   {"AZURE_OPENAI_KEY", "https://aka.ms/oai/access", "Azure authentication failed"},
	"anthropic":  {"ANTHROPIC_API_KEY", "https://console.anthropic.com/settings/keys", "Anthropic authentication failed"},
	"google":     {"GOOGLE_API_KEY", "https://aistudio.google.com/app/apikey", "Google authentication failed"},
	"openai":     {"OPENAI_API_KEY", "https://platform.openai.com/account/api-keys", "OpenAI authentication failed"},
}

func prepareProviderConfig(ctx context.Context, mod config.Model, api config.API) (fantasybridge.Config, error) {
	switch mod.API {
	case "bedrock":
		key, err := optionalKey(ctx, api)
		if err != nil {
			return fantasybridge.Config{}, errs.Error{Err: err, Reason: "Bedrock authentication failed"}
		}
		return fantasybridge.Config{API: mod.API, APIKey: key, BaseURL: api.BaseURL}, nil
	case "ollama":
		return fantasybridge.Config{API: mod.API, BaseURL: cmp.Or(api.BaseURL, "http://localhost:11434/v1")}, nil
	}

	spec, ok := providerKeys[mod.API]
	if !ok {
		spec = providerKeys["openai"]
	}
	key, err := ensureKey(ctx, api, spec.env, spec.docsURL)
	if err != nil {
		return fantasybridge.Config{}, errs.Error{Err: err, Reason: spec.reason}
	}

	providerCfg := fantasybridge.Config{API: mod.API, APIKey: key, BaseURL: api.BaseURL}
	switch mod.API {
	case "azure-ad":
		providerCfg.API = "azure"
	case "google":
		providerCfg.ThinkingBudget = mod.ThinkingBudget
	}
	return providerCfg, nil
}

// ApplyProxyConfig configures the provider HTTP client to use an HTTP proxy.
func ApplyProxyConfig(httpProxy string, providerCfg *fantasybridge.Config) error {
	if httpProxy == "" {
		return nil
	}
	proxyURL, err := url.Parse(httpProxy)
	if err != nil {
		return errs.Error{Err: err, Reason: "There was an error parsing your proxy URL."}
	}
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return errs.Error{Err: fmt.Errorf("default transport is not *http.Transport"), Reason: "Could not configure proxy."}
	}
	tr := base.Clone()
	tr.Proxy = http.ProxyURL(proxyURL)
	tr.DialContext = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ResponseHeaderTimeout = 30 * time.Second
	tr.IdleConnTimeout = 90 * time.Second
	tr.ExpectContinueTimeout = 1 * time.Second
	providerCfg.HTTPClient = &http.Client{Transport: tr}
	return nil
}

// NewFantasyClient creates the fantasy bridge client.
func NewFantasyClient(cfg fantasybridge.Config) (stream.Client, error) {
	if cfg.API == "" {
		return nil, errs.Error{Reason: "missing fantasy provider configuration"}
	}
	client, err := fantasybridge.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("new fantasy bridge client: %w", err)
	}
	return client, nil
}

func ensureKey(ctx context.Context, api config.API, defaultEnv, docsURL string) (string, error) {
	key, err := optionalKey(ctx, api)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = os.Getenv(defaultEnv)
	}
	if key != "" {
		return key, nil
	}
	return "", errs.Error{
		Reason: fmt.Sprintf("%s required; set %s or update connectchat.yml through connectchat config.", defaultEnv, defaultEnv),
		Err:    errs.UserErrorf("You can grab one at %s", docsURL),
	}
}

func optionalKey(ctx context.Context, api config.API) (string, error) {
	key := api.APIKey
	if key == "" && api.APIKeyEnv != "" && api.APIKeyCmd == "" {
		key = os.Getenv(api.APIKeyEnv)
	}
	if key == "" && api.APIKeyCmd != "" {
		args, err := shellwords.Parse(api.APIKeyCmd)
		if err != nil {
			return "", errs.Error{Err: err, Reason: "Failed to parse api-key-cmd"}
		}
		// #nosec G204 -- api-key-cmd is explicitly configured by the local user.
		out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
		if err != nil {
			return "", errs.Error{Err: err, Reason: "Cannot exec api-key-cmd"}
		}
		key = strings.TrimSpace(string(out))
	}
	return key, nil
}
