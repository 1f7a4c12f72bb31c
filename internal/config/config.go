// Package config loads connectchat settings from the YAML settings file and
// CONNECTCHAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	_ "embed"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/connectchat/internal/errs"
)

//go:embed config_template.yml
var configTemplate string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONNECTCHAT_"

const (
	// DefaultChatModel is used when a request names no model.
	DefaultChatModel = "claude-sonnet-4-0"

	defaultAddr       = "127.0.0.1:8080"
	defaultMaxSteps   = 5
	defaultMCPTimeout = 15 * time.Second
	defaultSystem     = "You are a friendly assistant. Keep your responses concise and helpful. " +
		"Use the tools from the user's connected accounts when they help answer the request."
)

// Model represents the LLM model used in the API call.
type Model struct {
	Name           string
	API            string
	Aliases        []string `yaml:"aliases"`
	Fallback       string   `yaml:"fallback"`
	ThinkingBudget int      `yaml:"thinking-budget,omitempty"`
}

// API represents an API endpoint and its models.
type API struct {
	Name      string
	APIKey    string           `yaml:"api-key"`
	APIKeyEnv string           `yaml:"api-key-env"`
	APIKeyCmd string           `yaml:"api-key-cmd"`
	BaseURL   string           `yaml:"base-url"`
	Models    map[string]Model `yaml:"models"`
	User      string           `yaml:"user"`
}

// APIs keeps the order APIs appear in the settings file.
type APIs []API

// UnmarshalYAML implements sorted API YAML decoding.
func (apis *APIs) UnmarshalYAML(node *yaml.Node) error {
	for i := 0; i < len(node.Content); i += 2 {
		var api API
		if err := node.Content[i+1].Decode(&api); err != nil {
			return fmt.Errorf("error decoding YAML file: %s", err)
		}
		api.Name = node.Content[i].Value
		*apis = append(*apis, api)
	}
	return nil
}

// ChatModel is an entry of the model picker offered to chat clients.
type ChatModel struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// MCPServerConfig holds configuration for an MCP server.
type MCPServerConfig struct {
	Type    string   `yaml:"type"`
	Command string   `yaml:"command"`
	Env     []string `yaml:"env"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"`
}

// Settings holds persisted configuration loaded from the YAML settings file
// and environment variables.
type Settings struct {
	Addr          string      `yaml:"addr" env:"ADDR"`
	API           string      `yaml:"default-api" env:"API"`
	Model         string      `yaml:"default-model" env:"MODEL"`
	ChatModels    []ChatModel `yaml:"chat-models"`
	MaxSteps      int         `yaml:"max-steps" env:"MAX_STEPS"`
	SendReasoning bool        `yaml:"send-reasoning" env:"SEND_REASONING"`
	Smoothing     bool        `yaml:"smooth-stream" env:"SMOOTH_STREAM"`
	System        string      `yaml:"system" env:"SYSTEM"`

	MaxTokens           int64   `yaml:"max-tokens" env:"MAX_TOKENS"`
	MaxCompletionTokens int64   `yaml:"max-completion-tokens" env:"MAX_COMPLETION_TOKENS"`
	Temperature         float64 `yaml:"temp" env:"TEMP"`
	TopP                float64 `yaml:"topp" env:"TOPP"`
	TopK                int64   `yaml:"topk" env:"TOPK"`
	User                string  `yaml:"user" env:"USER"`

	LogLevel  string `yaml:"log-level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log-format" env:"LOG_FORMAT"`

	CachePath string `yaml:"cache-path" env:"CACHE_PATH"`
	NoCache   bool   `yaml:"no-cache" env:"NO_CACHE"`
	HTTPProxy string `yaml:"http-proxy" env:"HTTP_PROXY"`
	WordWrap  int    `yaml:"word-wrap" env:"WORD_WRAP"`
	APIs      APIs   `yaml:"apis"`

	ConnectDisable bool   `yaml:"connect-disable" env:"CONNECT_DISABLE"`
	ConnectMCPURL  string `yaml:"connect-mcp-url" env:"CONNECT_MCP_URL"`

	MCPServers map[string]MCPServerConfig `yaml:"mcp-servers"`
	MCPDisable []string                   `yaml:"mcp-disable" env:"MCP_DISABLE"`
	MCPTimeout time.Duration              `yaml:"mcp-timeout" env:"MCP_TIMEOUT"`
}

// Runtime holds options that never come from the settings file.
type Runtime struct {
	SettingsPath string
}

// Config is the application configuration (settings + runtime-only options).
type Config struct {
	Settings `yaml:",inline"`
	Runtime  `yaml:"-"`
}

// Ensure loads settings from disk and environment and applies defaults.
//
// It also creates the default settings file if it does not exist.
func Ensure() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errs.Error{Err: err, Reason: "Could not determine home directory."}
	}
	return Load(filepath.Join(home, ".config", "connectchat", "connectchat.yml"))
}

// Load reads the settings file at path, creating it from the template when
// missing, then applies environment overrides and defaults.
func Load(path string) (Config, error) {
	c := Default()
	c.SettingsPath = path

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not create config directory."}
	}
	if err := WriteConfigFile(path); err != nil {
		return c, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return c, errs.Error{Err: err, Reason: "Could not read settings file."}
	}
	if err := yaml.Unmarshal(content, &c); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse settings file."}
	}
	if err := env.ParseWithOptions(&c, env.Options{Prefix: EnvPrefix}); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse environment into settings file."}
	}

	c.applyDefaults(filepath.Dir(path))
	if !c.NoCache {
		if err := os.MkdirAll(c.CachePath, 0o700); err != nil {
			return c, errs.Error{Err: err, Reason: "Could not create cache directory."}
		}
	}
	return c, nil
}

func (c *Config) applyDefaults(dir string) {
	def := Default()
	if c.CachePath == "" {
		c.CachePath = filepath.Join(dir, "history")
	}
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.MaxSteps < 1 {
		c.MaxSteps = def.MaxSteps
	}
	if len(c.ChatModels) == 0 {
		c.ChatModels = def.ChatModels
	}
	if c.MCPTimeout == 0 {
		c.MCPTimeout = def.MCPTimeout
	}
	if c.WordWrap == 0 {
		c.WordWrap = def.WordWrap
	}
}

// ChatModel returns the catalogue entry for id.
func (c Config) ChatModel(id string) (ChatModel, bool) {
	for _, m := range c.ChatModels {
		if m.ID == id {
			return m, true
		}
	}
	return ChatModel{}, false
}

// WriteConfigFile creates the config file at path if it does not exist.
func WriteConfigFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return createConfigFile(path)
	} else if err != nil {
		return errs.Error{Err: err, Reason: "Could not stat path."}
	}
	return nil
}

func createConfigFile(path string) error {
	tmpl := template.Must(template.New("config").Parse(configTemplate))

	f, err := os.Create(path)
	if err != nil {
		return errs.Error{Err: err, Reason: "Could not create configuration file."}
	}
	defer func() { _ = f.Close() }()

	m := struct{ Config Config }{Config: Default()}
	if err := tmpl.Execute(f, m); err != nil {
		return errs.Error{Err: err, Reason: "Could not render template."}
	}
	return nil
}

// Default returns the default configuration values.
func Default() Config {
	return Config{
		Settings: Settings{
			Addr:          defaultAddr,
			Model:         DefaultChatModel,
			ChatModels:    DefaultChatModels(),
			MaxSteps:      defaultMaxSteps,
			SendReasoning: true,
			Smoothing:     true,
			System:        defaultSystem,
			Temperature:   -1,
			TopP:          -1,
			TopK:          -1,
			LogLevel:      "info",
			LogFormat:     "text",
			WordWrap:      80,
			MCPTimeout:    defaultMCPTimeout,
		},
	}
}

// DefaultChatModels is the built-in model picker catalogue.
func DefaultChatModels() []ChatModel {
	return []ChatModel{
		{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", Description: "High performance, low cost model"},
		{ID: "gpt-4o-mini", Name: "GPT-4o Mini", Description: "Small model for fast, lightweight tasks"},
		{ID: "gpt-4.1", Name: "GPT-4.1", Description: "Flagship model for complex tasks"},
		{ID: "claude-haiku-4-5", Name: "Claude Haiku 4.5", Description: "Fastest model with near-frontier intelligence"},
		{ID: "claude-sonnet-4-5", Name: "Claude Sonnet 4.5", Description: "Smartest model for complex agents and coding"},
	}
}
