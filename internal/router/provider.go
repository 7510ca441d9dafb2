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

import "context"

// DownstreamClient is the supervisor's view of a connection to one endpoint's
// child process. *Client implements this against a real mcp-go stdio
// transport; tests substitute a fake so the supervisor, classifier, dispatch
// router, and health loop never have to spawn a real subprocess.
type DownstreamClient interface {
	ListTools(ctx context.Context) ([]ToolDefinition, error)
	CallTool(ctx context.Context, req ToolCallRequest) (*ToolCallResult, error)
	Ping(ctx context.Context) error
	Close() error
	Process() *ManagedProcess
}

// ClientFactory spawns and initializes a DownstreamClient for one endpoint.
// Production code binds this to NewClient; tests bind it to a fake
// constructor that never execs a subprocess.
type ClientFactory func(ctx context.Context, cfg ClientConfig) (DownstreamClient, error)

// DefaultClientFactory is the production ClientFactory backed by the real
// mcp-go stdio transport.
func DefaultClientFactory(ctx context.Context, cfg ClientConfig) (DownstreamClient, error) {
	return NewClient(ctx, cfg)
}
