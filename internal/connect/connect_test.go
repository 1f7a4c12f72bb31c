package connect

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		t.Setenv("PIPEDREAM_CLIENT_ID", "id")
		t.Setenv("PIPEDREAM_CLIENT_SECRET", "")

		_, err := ConfigFromEnv()
		require.ErrorIs(t, err, ErrMissingCredentials)
		require.ErrorContains(t, err, "PIPEDREAM_CLIENT_ID and PIPEDREAM_CLIENT_SECRET")
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("PIPEDREAM_CLIENT_ID", "id")
		t.Setenv("PIPEDREAM_CLIENT_SECRET", "secret")
		t.Setenv("PIPEDREAM_PROJECT_ID", "proj_1")
		t.Setenv("PIPEDREAM_PROJECT_ENVIRONMENT", "")

		cfg, err := ConfigFromEnv()
		require.NoError(t, err)
		require.Equal(t, Config{
			ClientID:     "id",
			ClientSecret: "secret",
			ProjectID:    "proj_1",
			Environment:  DefaultEnvironment,
			TokenURL:     DefaultTokenURL,
			MCPURL:       DefaultMCPURL,
		}, cfg)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("PIPEDREAM_CLIENT_ID", "id")
		t.Setenv("PIPEDREAM_CLIENT_SECRET", "secret")
		t.Setenv("PIPEDREAM_PROJECT_ENVIRONMENT", "production")

		cfg, err := ConfigFromEnv()
		require.NoError(t, err)
		require.Equal(t, "production", cfg.Environment)
	})
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{ClientID: "id"})
	require.ErrorIs(t, err, ErrMissingCredentials)
}

type tokenServer struct {
	*httptest.Server
	requests atomic.Int32
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.Form.Get("grant_type") != "client_credentials" ||
			r.Form.Get("client_id") != "id" ||
			r.Form.Get("client_secret") != "secret" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer","expires_in":3600}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

type headerLog struct {
	mu      sync.Mutex
	headers []http.Header
}

func (h *headerLog) record(ctx context.Context, r *http.Request) context.Context {
	h.mu.Lock()
	h.headers = append(h.headers, r.Header.Clone())
	h.mu.Unlock()
	return ctx
}

func (h *headerLog) last() http.Header {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.headers[len(h.headers)-1]
}

func newMCPServer(t *testing.T, seen *headerLog) *httptest.Server {
	t.Helper()
	srv := server.NewMCPServer("connect-test", "1.0.0", server.WithToolCapabilities(false))
	srv.AddTool(
		mcp.NewTool("google_sheets-add-single-row",
			mcp.WithDescription("Add a single row of data to Google Sheets"),
			mcp.WithString("sheetId", mcp.Required()),
		),
		func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("sheetId")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText("added row to " + id), nil
		},
	)
	ts := server.NewTestStreamableHTTPServer(srv, server.WithHTTPContextFunc(seen.record))
	t.Cleanup(ts.Close)
	return ts
}

func testClient(t *testing.T, mcpURL string) (*Client, *tokenServer) {
	t.Helper()
	tokens := newTokenServer(t)
	c, err := New(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		ProjectID:    "proj_1",
		TokenURL:     tokens.URL,
		MCPURL:       mcpURL,
	}, WithHTTPClient(tokens.Client()), WithLogger(log.New(io.Discard)))
	require.NoError(t, err)
	return c, tokens
}

func TestHeaders(t *testing.T) {
	c, tokens := testClient(t, "")

	headers, err := c.Headers("user-1", "")
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"Authorization":      "Bearer tok-123",
		HeaderProjectID:      "proj_1",
		HeaderEnvironment:    DefaultEnvironment,
		HeaderExternalUserID: "user-1",
	}, headers)

	headers, err = c.Headers("user-1", "google_sheets")
	require.NoError(t, err)
	require.Equal(t, "google_sheets", headers[HeaderAppSlug])

	require.Equal(t, int32(1), tokens.requests.Load(), "token is reused until it expires")
}

func TestHeadersTokenFailure(t *testing.T) {
	c, err := New(Config{ClientID: "id", ClientSecret: "wrong"})
	require.NoError(t, err)
	tokens := newTokenServer(t)
	c.cfg.TokenURL = tokens.URL
	c.tokens = c.tokenSource(tokens.Client())

	_, err = c.Headers("user-1", "")
	require.ErrorContains(t, err, "connect access token")
}

func TestProvider(t *testing.T) {
	var seen headerLog
	mcpServer := newMCPServer(t, &seen)
	c, _ := testClient(t, mcpServer.URL)

	set, err := c.Provider("user-1", []string{"google_sheets", "google_sheets"}).Tools(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"google_sheets-add-single-row"}, set.Names())

	h := seen.last()
	require.Equal(t, "Bearer tok-123", h.Get("Authorization"))
	require.Equal(t, "proj_1", h.Get(HeaderProjectID))
	require.Equal(t, DefaultEnvironment, h.Get(HeaderEnvironment))
	require.Equal(t, "user-1", h.Get(HeaderExternalUserID))
	require.Equal(t, "google_sheets", h.Get(HeaderAppSlug))

	add := set["google_sheets-add-single-row"]
	require.Equal(t, "Add a single row of data to Google Sheets", add.Description)
	out, err := add.Execute(t.Context(), []byte(`{"sheetId":"abc"}`))
	require.NoError(t, err)
	require.Equal(t, "added row to abc", out)
	require.Equal(t, "user-1", seen.last().Get(HeaderExternalUserID))
}

func TestProviderWithoutApps(t *testing.T) {
	var seen headerLog
	mcpServer := newMCPServer(t, &seen)
	c, _ := testClient(t, mcpServer.URL)

	set, err := c.Provider("user-2", nil).Tools(t.Context())
	require.NoError(t, err)
	require.Len(t, set, 1)
	require.Empty(t, seen.last().Get(HeaderAppSlug))
	require.Equal(t, "user-2", seen.last().Get(HeaderExternalUserID))
}

func TestProviderUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	c, _ := testClient(t, dead.URL)

	_, err := c.Provider("user-1", []string{"slack"}).Tools(t.Context())
	require.ErrorContains(t, err, "connect tools")
}

func TestSharedChecksCredentials(t *testing.T) {
	t.Setenv("PIPEDREAM_CLIENT_ID", "")
	t.Setenv("PIPEDREAM_CLIENT_SECRET", "")

	_, err := Shared()
	require.ErrorIs(t, err, ErrMissingCredentials)
}

func TestWithMCPURL(t *testing.T) {
	cfg := Config{ClientID: "id", ClientSecret: "secret"}

	c, err := New(cfg, WithMCPURL("http://127.0.0.1:1/mcp"))
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:1/mcp", c.cfg.MCPURL)

	c, err = New(cfg, WithMCPURL(""))
	require.NoError(t, err)
	require.Equal(t, DefaultMCPURL, c.cfg.MCPURL)
}
