// Package mcp exposes the tools of Model Context Protocol servers as
// executable tools.
package mcp

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dotcommander/connectchat/internal/tool"
)

const clientName = "connectchat"

// Server describes how to reach one MCP server.
type Server struct {
	Name    string
	Type    string
	Command string
	Env     []string
	Args    []string
	URL     string
	Headers map[string]string
}

// Dialer opens an initialized client for a server.
type Dialer func(ctx context.Context, server Server) (*client.Client, error)

// Dial opens and initializes a client for server. Callers close it.
func Dial(ctx context.Context, server Server) (*client.Client, error) {
	var cli *client.Client
	var err error

	switch server.Type {
	case "", "stdio":
		cli, err = client.NewStdioMCPClient(
			server.Command,
			append(os.Environ(), server.Env...),
			server.Args...,
		)
	case "sse":
		cli, err = client.NewSSEMCPClient(server.URL, client.WithHeaders(server.Headers))
	case "http":
		cli, err = client.NewStreamableHttpClient(server.URL, transport.WithHTTPHeaders(server.Headers))
	default:
		return nil, fmt.Errorf("unsupported MCP server type: %q, supported types are: stdio, sse, http", server.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}
	return Initialize(ctx, cli)
}

// Initialize starts cli and performs the MCP handshake. cli is closed on
// failure.
func Initialize(ctx context.Context, cli *client.Client) (*client.Client, error) {
	if err := cli.Start(ctx); err != nil {
		cli.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName}
	if _, err := cli.Initialize(ctx, req); err != nil {
		cli.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}
	return cli, nil
}

// ListTools lists the tools a server exposes.
func ListTools(ctx context.Context, dial Dialer, server Server) ([]mcp.Tool, error) {
	cli, err := dial(ctx, server)
	if err != nil {
		return nil, fmt.Errorf("could not setup %s: %w", server.Name, err)
	}
	defer cli.Close() //nolint:errcheck

	tools, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("could not setup %s: %w", server.Name, err)
	}
	return tools.Tools, nil
}

// CallTool runs one tool on a fresh client. A result flagged as an error is
// returned as an error carrying the tool's text.
func CallTool(ctx context.Context, dial Dialer, server Server, name string, data []byte) (string, error) {
	var args map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &args); err != nil {
			return "", fmt.Errorf("mcp: %w: %s", err, string(data))
		}
	}

	cli, err := dial(ctx, server)
	if err != nil {
		return "", fmt.Errorf("mcp: %w", err)
	}
	defer cli.Close() //nolint:errcheck

	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = args
	result, err := cli.CallTool(ctx, request)
	if err != nil {
		return "", fmt.Errorf("mcp: %w", err)
	}

	var sb strings.Builder
	for _, content := range result.Content {
		switch content := content.(type) {
		case mcp.TextContent:
			sb.WriteString(content.Text)
		default:
			sb.WriteString("[Non-text content]")
		}
	}

	if result.IsError {
		return "", errors.New(sb.String())
	}
	return sb.String(), nil
}

// ToolSet turns listed tools into executable tools. Names are prefixed with
// prefix and an underscore when prefix is not empty. Each call dials the
// server anew and is bounded by timeout when positive.
func ToolSet(dial Dialer, server Server, prefix string, tools []mcp.Tool, timeout time.Duration) tool.Set {
	set := make(tool.Set, len(tools))
	for _, t := range tools {
		name := t.Name
		if prefix != "" {
			name = prefix + "_" + t.Name
		}
		set[name] = tool.Tool{
			Name:        name,
			Description: t.Description,
			InputSchema: InputSchema(t),
			Execute: func(ctx context.Context, input []byte) (string, error) {
				if timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				return CallTool(ctx, dial, server, t.Name, input)
			},
		}
	}
	return set
}

// InputSchema returns the JSON schema of a tool's arguments as a map.
func InputSchema(t mcp.Tool) map[string]any {
	if len(t.RawInputSchema) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(t.RawInputSchema, &raw); err == nil {
			return raw
		}
	}

	props := t.InputSchema.Properties
	if props == nil {
		props = map[string]any{}
	}
	schema := map[string]any{
		"type":       cmp.Or(t.InputSchema.Type, "object"),
		"properties": props,
	}
	if len(t.InputSchema.Required) > 0 {
		schema["required"] = t.InputSchema.Required
	}
	if len(t.InputSchema.Defs) > 0 {
		schema["$defs"] = t.InputSchema.Defs
	}
	return schema
}
