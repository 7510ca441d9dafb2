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

// Package routertesting provides a fake router.DownstreamClient so the
// supervisor, classifier, dispatcher, and health loop can be exercised in
// tests without spawning a real child process.
package routertesting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tombee/mcprouter/internal/router"
)

// FakeClient is an in-memory router.DownstreamClient. Zero value is usable;
// configure behavior with the With* setters before handing it to a
// router.ClientFactory.
type FakeClient struct {
	mu sync.Mutex

	tools []router.ToolDefinition

	callFunc  func(ctx context.Context, req router.ToolCallRequest) (*router.ToolCallResult, error)
	pingFunc  func(ctx context.Context) error
	closeFunc func() error
	callDelay time.Duration

	closed    bool
	closeErr  error
	pingCalls int
	calls     []router.ToolCallRequest
}

// NewFakeClient creates a FakeClient reporting tools as its discovered tool
// list.
func NewFakeClient(tools []router.ToolDefinition) *FakeClient {
	return &FakeClient{tools: tools}
}

// WithCallHandler overrides the default echo behavior of CallTool.
func (c *FakeClient) WithCallHandler(f func(ctx context.Context, req router.ToolCallRequest) (*router.ToolCallResult, error)) *FakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callFunc = f
	return c
}

// WithPingHandler overrides the default (always-succeeds) Ping behavior.
func (c *FakeClient) WithPingHandler(f func(ctx context.Context) error) *FakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingFunc = f
	return c
}

// WithCloseError makes Close return err.
func (c *FakeClient) WithCloseError(err error) *FakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeErr = err
	return c
}

// WithCallDelay makes every CallTool block for d before returning, honoring
// ctx cancellation.
func (c *FakeClient) WithCallDelay(d time.Duration) *FakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callDelay = d
	return c
}

// ListTools returns a copy of the configured tool list.
func (c *FakeClient) ListTools(ctx context.Context) ([]router.ToolDefinition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]router.ToolDefinition, len(c.tools))
	copy(out, c.tools)
	return out, nil
}

// CallTool records the call and delegates to the configured handler, or
// echoes a default textual result if none was configured.
func (c *FakeClient) CallTool(ctx context.Context, req router.ToolCallRequest) (*router.ToolCallResult, error) {
	c.mu.Lock()
	delay := c.callDelay
	handler := c.callFunc
	c.calls = append(c.calls, req)
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if handler != nil {
		return handler(ctx, req)
	}

	return router.TextResult(fmt.Sprintf("fake response for %s", req.Name), false), nil
}

// Ping records the call and delegates to the configured handler, or
// succeeds by default.
func (c *FakeClient) Ping(ctx context.Context) error {
	c.mu.Lock()
	c.pingCalls++
	handler := c.pingFunc
	c.mu.Unlock()

	if handler != nil {
		return handler(ctx)
	}
	return nil
}

// Close records the call and returns the configured error, if any.
func (c *FakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.closeErr
}

// Process always returns nil: fake clients have no real OS process, so the
// supervisor's child-exit watcher is inert for them.
func (c *FakeClient) Process() *router.ManagedProcess {
	return nil
}

// Closed reports whether Close has been called.
func (c *FakeClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// PingCalls returns how many times Ping has been invoked.
func (c *FakeClient) PingCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingCalls
}

// Calls returns every ToolCallRequest CallTool has received, in order.
func (c *FakeClient) Calls() []router.ToolCallRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]router.ToolCallRequest, len(c.calls))
	copy(out, c.calls)
	return out
}

// Factory is a router.ClientFactory backed by a registry of pre-built fake
// clients, keyed by endpoint URL. Endpoints not present in the registry
// fail to connect, simulating a downed child.
type Factory struct {
	mu      sync.Mutex
	clients map[string]*FakeClient
	errs    map[string]error
}

// NewFactory creates an empty Factory.
func NewFactory() *Factory {
	return &Factory{
		clients: make(map[string]*FakeClient),
		errs:    make(map[string]error),
	}
}

// Register associates url with client, so a connect attempt for that URL
// returns it.
func (f *Factory) Register(url string, client *FakeClient) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[url] = client
	return f
}

// FailConnect makes connect attempts for url return err instead of a
// client.
func (f *Factory) FailConnect(url string, err error) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
	return f
}

// ClientFactory returns a router.ClientFactory bound to this registry.
func (f *Factory) ClientFactory() router.ClientFactory {
	return func(ctx context.Context, cfg router.ClientConfig) (router.DownstreamClient, error) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if err, ok := f.errs[cfg.EndpointURL]; ok {
			return nil, err
		}
		client, ok := f.clients[cfg.EndpointURL]
		if !ok {
			return nil, fmt.Errorf("routertesting: no fake client registered for %s", cfg.EndpointURL)
		}
		return client, nil
	}
}
