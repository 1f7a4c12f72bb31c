package connect

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/connectchat/internal/mcp"
	"github.com/dotcommander/connectchat/internal/tool"
)

// Header names understood by the remote MCP endpoint.
const (
	HeaderProjectID      = "x-pd-project-id"
	HeaderEnvironment    = "x-pd-environment"
	HeaderExternalUserID = "x-pd-external-user-id"
	HeaderAppSlug        = "x-pd-app-slug"
)

// Client issues project access tokens and resolves per-user tools.
type Client struct {
	cfg     Config
	tokens  oauth2.TokenSource
	dial    mcp.Dialer
	timeout time.Duration
	logger  *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used to fetch access tokens.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.tokens = c.tokenSource(hc)
	}
}

// WithTimeout bounds each tool call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMCPURL overrides the remote MCP endpoint. Empty keeps the default.
func WithMCPURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.cfg.MCPURL = u
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client. Credentials are validated up front.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:    cfg.withDefaults(),
		dial:   mcp.Dial,
		logger: log.Default(),
	}
	c.tokens = c.tokenSource(nil)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) tokenSource(hc *http.Client) oauth2.TokenSource {
	cc := clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     c.cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx := context.Background()
	if hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	}
	return cc.TokenSource(ctx)
}

var (
	sharedMu sync.Mutex
	shared   *Client
)

// Shared returns the process-wide client built from the environment. The
// credentials are checked on every call; the client is built once.
func Shared(opts ...Option) (*Client, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		return shared, nil
	}
	c, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	shared = c
	return shared, nil
}

// AccessToken returns a valid project access token, refreshing it when
// expired.
func (c *Client) AccessToken() (string, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("connect access token: %w", err)
	}
	return tok.AccessToken, nil
}

// Headers returns the request headers scoping remote MCP calls to a project,
// an external user and, when app is not empty, a single app.
func (c *Client) Headers(externalUserID, app string) (map[string]string, error) {
	token, err := c.AccessToken()
	if err != nil {
		return nil, err
	}
	headers := map[string]string{
		"Authorization":      "Bearer " + token,
		HeaderProjectID:      c.cfg.ProjectID,
		HeaderEnvironment:    c.cfg.Environment,
		HeaderExternalUserID: externalUserID,
	}
	if app != "" {
		headers[HeaderAppSlug] = app
	}
	return headers, nil
}

// Provider returns a tool provider for the accounts externalUserID has
// connected. Each resolution lists tools anew, so accounts connected
// mid-conversation show up on the next step. With no apps the endpoint is
// queried without an app scope.
func (c *Client) Provider(externalUserID string, apps []string) tool.Provider {
	apps = slices.Compact(slices.Sorted(slices.Values(apps)))
	if len(apps) == 0 {
		apps = []string{""}
	}

	return tool.ProviderFunc(func(ctx context.Context) (tool.Set, error) {
		sets := make([]tool.Set, len(apps))
		g, gctx := errgroup.WithContext(ctx)
		for i, app := range apps {
			g.Go(func() error {
				set, err := c.appTools(gctx, externalUserID, app)
				if err != nil {
					return err
				}
				sets[i] = set
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("connect tools: %w", err)
		}

		result := tool.Set{}
		for _, set := range sets {
			for name, t := range set {
				if _, exists := result[name]; !exists {
					result[name] = t
				}
			}
		}
		c.logger.Debug("resolved connect tools", "user", externalUserID, "apps", apps, "tools", len(result))
		return result, nil
	})
}

func (c *Client) appTools(ctx context.Context, externalUserID, app string) (tool.Set, error) {
	headers, err := c.Headers(externalUserID, app)
	if err != nil {
		return nil, err
	}
	server := mcp.Server{
		Name:    "connect",
		Type:    "http",
		URL:     c.cfg.MCPURL,
		Headers: headers,
	}
	if app != "" {
		server.Name = "connect/" + app
	}

	tools, err := mcp.ListTools(ctx, c.dial, server)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return mcp.ToolSet(c.dial, server, "", tools, c.timeout), nil
}
