package mcp

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/connectchat/internal/config"
	"github.com/dotcommander/connectchat/internal/errs"
	"github.com/dotcommander/connectchat/internal/tool"
)

var _ tool.Provider = &Service{}

// Service exposes the tools of the MCP servers listed in the settings file.
type Service struct {
	servers map[string]config.MCPServerConfig
	disable []string
	timeout time.Duration
	dial    Dialer
}

// New creates a new MCP service.
func New(cfg *config.Config) *Service {
	return &Service{
		servers: cfg.MCPServers,
		disable: cfg.MCPDisable,
		timeout: cfg.MCPTimeout,
		dial:    Dial,
	}
}

// IsEnabled reports whether the named MCP server is enabled.
func (s *Service) IsEnabled(name string) bool {
	return !slices.Contains(s.disable, "*") &&
		!slices.Contains(s.disable, name)
}

// EnabledServers iterates enabled MCP servers in stable order.
func (s *Service) EnabledServers() iter.Seq2[string, config.MCPServerConfig] {
	return func(yield func(string, config.MCPServerConfig) bool) {
		for _, name := range slices.Sorted(maps.Keys(s.servers)) {
			if !s.IsEnabled(name) {
				continue
			}
			if !yield(name, s.servers[name]) {
				return
			}
		}
	}
}

// Tools lists every enabled server concurrently. Tools are named
// <server>_<tool>.
func (s *Service) Tools(ctx context.Context) (tool.Set, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var mu sync.Mutex
	var wg errgroup.Group
	result := tool.Set{}
	for sname, cfg := range s.EnabledServers() {
		server := Server{
			Name:    sname,
			Type:    cfg.Type,
			Command: cfg.Command,
			Env:     cfg.Env,
			Args:    cfg.Args,
			URL:     cfg.URL,
		}
		wg.Go(func() error {
			serverTools, err := ListTools(ctx, s.dial, server)
			if errors.Is(err, context.DeadlineExceeded) {
				return errs.Wrap(
					fmt.Errorf("timeout while listing tools for %q - make sure the configuration is correct. If your server requires a docker container, make sure it's running", sname),
					"Could not list tools",
				)
			}
			if err != nil {
				return errs.Wrap(err, "Could not list tools")
			}
			set := ToolSet(s.dial, server, sname, serverTools, s.timeout)
			mu.Lock()
			maps.Copy(result, set)
			mu.Unlock()
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, fmt.Errorf("mcp tools: %w", err)
	}
	return result, nil
}
