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

package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	rerrors "github.com/tombee/mcprouter/pkg/errors"
)

// Client wraps a downstream MCP server connection bound to one endpoint's
// child process.
type Client struct {
	endpointURL string
	client      *client.Client
	process     *ManagedProcess
	timeout     time.Duration
}

// ClientConfig configures a downstream MCP client connection.
type ClientConfig struct {
	// EndpointURL is the normalized endpoint this client is bound to.
	EndpointURL string

	// Command is the child executable to run.
	Command string

	// Args are the command-line arguments passed to Command.
	Args []string

	// Env are the environment variables passed to the child process.
	Env []string

	// CallTimeout bounds each tool call. Defaults to 30s.
	CallTimeout time.Duration
}

// NewClient spawns the configured child process and completes the MCP
// initialize handshake over its stdio.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.EndpointURL == "" {
		return nil, fmt.Errorf("endpoint URL is required")
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("command is required")
	}

	timeout := cfg.CallTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	mcpClient, err := client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	c := &Client{
		endpointURL: cfg.EndpointURL,
		client:      mcpClient,
		process:     extractProcess(mcpClient),
		timeout:     timeout,
	}

	if err := c.initialize(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize MCP server: %w", err)
	}

	return c, nil
}

// extractProcess reaches into the stdio transport via reflection to find the
// underlying *os.Process, so the supervisor can force-kill a child that
// doesn't exit cleanly. Returns nil (non-fatal) if the transport shape
// doesn't match what we expect.
func extractProcess(mcpClient *client.Client) *ManagedProcess {
	if mcpClient == nil {
		return nil
	}

	transport := mcpClient.GetTransport()
	if transport == nil {
		return nil
	}

	transportVal := reflect.ValueOf(transport)
	if transportVal.Kind() == reflect.Ptr {
		transportVal = transportVal.Elem()
	}

	cmdField := transportVal.FieldByName("Cmd")
	if !cmdField.IsValid() || cmdField.IsNil() {
		return nil
	}

	if cmdField.Kind() != reflect.Ptr {
		return nil
	}

	cmdVal := cmdField.Elem()
	processField := cmdVal.FieldByName("Process")
	if !processField.IsValid() || processField.IsNil() {
		return nil
	}

	proc, ok := processField.Interface().(*os.Process)
	if !ok {
		return nil
	}

	return &ManagedProcess{proc: proc}
}

// initialize sends the MCP initialize request and records server capabilities.
func (c *Client) initialize(ctx context.Context) error {
	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "mcprouter",
				Version: "0.1.0",
			},
		},
	}

	if _, err := c.client.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("initialize request failed: %w", err)
	}

	return nil
}

// ListTools retrieves the tool list reported by the downstream endpoint.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]ToolDefinition, len(result.Tools))
	for i, tool := range result.Tools {
		var schemaBytes []byte
		if len(tool.RawInputSchema) > 0 {
			schemaBytes = tool.RawInputSchema
		} else {
			toolBytes, err := tool.MarshalJSON()
			if err != nil {
				return nil, fmt.Errorf("failed to marshal tool %s: %w", tool.Name, err)
			}
			var toolMap map[string]any
			if err := json.Unmarshal(toolBytes, &toolMap); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool %s: %w", tool.Name, err)
			}
			if inputSchema, ok := toolMap["inputSchema"]; ok {
				schemaBytes, err = json.Marshal(inputSchema)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal input schema for %s: %w", tool.Name, err)
				}
			}
		}

		tools[i] = ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaBytes,
		}
	}

	return tools, nil
}

// CallTool executes a tool call against this endpoint, bounded by the
// client's configured call timeout.
func (c *Client) CallTool(ctx context.Context, req ToolCallRequest) (*ToolCallResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	mcpReq := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      req.Name,
			Arguments: req.Arguments,
		},
	}

	result, err := c.client.CallTool(ctx, mcpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, rerrors.Timeout("tool call "+req.Name, c.timeout, err)
		}
		return nil, fmt.Errorf("tool call %s failed: %w", req.Name, err)
	}

	out := &ToolCallResult{
		IsError: result.IsError,
		Content: make([]ContentItem, len(result.Content)),
	}

	for i, content := range result.Content {
		item := ContentItem{}

		if textContent, ok := mcp.AsTextContent(content); ok {
			item.Type = textContent.Type
			item.Text = textContent.Text
		} else if imageContent, ok := mcp.AsImageContent(content); ok {
			item.Type = imageContent.Type
			item.Data = imageContent.Data
			item.MimeType = imageContent.MIMEType
		} else {
			contentBytes, err := json.Marshal(content)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal content: %w", err)
			}
			var contentMap map[string]any
			if err := json.Unmarshal(contentBytes, &contentMap); err != nil {
				return nil, fmt.Errorf("failed to unmarshal content: %w", err)
			}
			if contentType, ok := contentMap["type"].(string); ok {
				item.Type = contentType
			}
			if text, ok := contentMap["text"].(string); ok {
				item.Text = text
			}
			if data, ok := contentMap["data"].(string); ok {
				item.Data = data
			}
			if mimeType, ok := contentMap["mimeType"].(string); ok {
				item.MimeType = mimeType
			}
		}

		out.Content[i] = item
	}

	return out, nil
}

// Ping checks whether the downstream endpoint is still responsive.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Process returns the underlying OS process handle, or nil if it could not
// be extracted from the transport.
func (c *Client) Process() *ManagedProcess {
	return c.process
}

// Close closes the client's connection to the downstream endpoint.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close MCP client: %w", err)
	}
	return nil
}

// ManagedProcess wraps the child OS process backing an endpoint's client so
// the supervisor can signal it during teardown without reaching into the
// mcp-go transport internals a second time.
type ManagedProcess struct {
	proc *os.Process
}

// Alive reports whether the process can still be signalled. This is a
// best-effort check: sending signal 0 fails once the process has exited and
// been reaped.
func (p *ManagedProcess) Alive() bool {
	if p == nil || p.proc == nil {
		return false
	}
	return p.proc.Signal(syscallSignalZero()) == nil
}

// Terminate sends a graceful termination signal to the process.
func (p *ManagedProcess) Terminate() error {
	if p == nil || p.proc == nil {
		return nil
	}
	return p.proc.Signal(terminateSignal())
}

// Kill sends an unconditional kill signal to the process.
func (p *ManagedProcess) Kill() error {
	if p == nil || p.proc == nil {
		return nil
	}
	return p.proc.Kill()
}
