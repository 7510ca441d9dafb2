// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package upstream exposes the router's merged tool surface to the one
// upstream MCP client, over stdio.
package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	rlog "github.com/tombee/mcprouter/internal/log"
	"github.com/tombee/mcprouter/internal/router"
)

// Dispatcher is the subset of *router.Dispatcher the upstream server needs,
// narrowed to an interface for testability.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args map[string]any, identities map[string]string) *router.ToolCallResult
}

// IdentityLookup returns the per-endpoint identity map the dispatcher needs
// to forward into log context on auth failures. It is called once per
// call_tool; cmd/mcprouter's lookup returns a fixed map built from the
// startup mappings.
type IdentityLookup func() map[string]string

// Server wraps the mark3labs/mcp-go server and keeps its registered tool
// list in sync with the router's classification table.
type Server struct {
	mcpServer  *server.MCPServer
	dispatcher Dispatcher
	identities IdentityLookup
	logger     *slog.Logger
	calls      *rlog.CallLog

	mu         sync.Mutex
	registered []string
}

// Config configures a new Server.
type Config struct {
	Name       string
	Version    string
	Dispatcher Dispatcher
	Identities IdentityLookup
	Logger     *slog.Logger
}

// NewServer creates an upstream MCP server with no tools registered yet.
// Call SyncTools once the classifier has produced a table.
func NewServer(cfg Config) *Server {
	name := cfg.Name
	if name == "" {
		name = "mcprouter"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	identities := cfg.Identities
	if identities == nil {
		identities = func() map[string]string { return nil }
	}

	return &Server{
		mcpServer:  server.NewMCPServer(name, version),
		dispatcher: cfg.Dispatcher,
		identities: identities,
		logger:     logger,
		calls:      rlog.NewCallLog(logger),
	}
}

// SyncTools replaces the server's registered tool set with table's merged,
// already-rewritten tool list. Safe to call repeatedly as the router
// reconnects endpoints; since new endpoints are never discovered after
// startup, the tool set is typically stable after the first call.
func (s *Server) SyncTools(table *router.ClassificationTable) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.registered) > 0 {
		s.mcpServer.DeleteTools(s.registered...)
	}

	names := make([]string, 0, len(table.Merged))
	for _, tool := range table.Merged {
		mcpTool := mcp.Tool{
			Name:           tool.Name,
			Description:    tool.Description,
			RawInputSchema: tool.InputSchema,
		}
		s.mcpServer.AddTool(mcpTool, s.handle)
		names = append(names, tool.Name)
	}

	s.logger.Info("upstream tool surface synced", rlog.EventKey, "tools_synced", "count", len(names))
	s.registered = names
}

// handle is the single tool handler shared by every registered tool; it
// forwards into the Dispatcher, which re-derives the routing decision from
// the tool name it already classified. Every call is tagged with a fresh
// correlation ID so a route or fan-out can be traced across the resulting
// downstream log lines.
func (s *Server) handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	correlationID := uuid.New().String()
	s.calls.Received(correlationID, req.Params.Name)

	ctx = rlog.ContextWithCorrelationID(ctx, correlationID)
	result := s.dispatcher.Dispatch(ctx, req.Params.Name, req.GetArguments(), s.identities())

	s.calls.Completed(correlationID, req.Params.Name, result.IsError, time.Since(start))

	return toMCPResult(result), nil
}

// Run blocks serving the upstream protocol over stdio until the client
// disconnects or ctx's stdin-close detection (handled by the caller) ends
// the process.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting upstream MCP server")
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("upstream MCP server error: %w", err)
	}
	return nil
}

// toMCPResult converts a router.ToolCallResult into the mcp-go wire shape,
// the mirror image of the decoding client.go's CallTool performs on the way
// in from a downstream endpoint.
func toMCPResult(result *router.ToolCallResult) *mcp.CallToolResult {
	if result == nil {
		return mcp.NewToolResultError("router returned no result")
	}

	content := make([]mcp.Content, 0, len(result.Content))
	for _, item := range result.Content {
		switch item.Type {
		case "image":
			content = append(content, mcp.NewImageContent(item.Data, item.MimeType))
		default:
			content = append(content, mcp.NewTextContent(item.Text))
		}
	}

	return &mcp.CallToolResult{
		Content: content,
		IsError: result.IsError,
	}
}
