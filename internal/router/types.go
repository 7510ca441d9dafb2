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

// Package router implements the multiplexing MCP protocol router: it
// supervises one downstream MCP child process per configured endpoint,
// merges and classifies their tool schemas, and dispatches incoming
// call_tool requests to one endpoint or fans them out to all of them.
package router

import (
	"encoding/json"
	"sync"
	"time"
)

// EndpointStatus is the lifecycle state of a supervised endpoint.
type EndpointStatus string

const (
	// StatusConnecting indicates a connection attempt is in flight.
	StatusConnecting EndpointStatus = "Connecting"
	// StatusConnected indicates the endpoint has a live child and client.
	StatusConnected EndpointStatus = "Connected"
	// StatusFailed indicates the most recent connect or ping attempt failed.
	StatusFailed EndpointStatus = "Failed"
	// StatusDisconnected indicates the child exited or ping failures crossed
	// the threshold; a reconnect will be scheduled.
	StatusDisconnected EndpointStatus = "Disconnected"
)

// PingFailureThreshold is the number of consecutive ping failures after
// which an endpoint transitions from Failed to Disconnected.
const PingFailureThreshold = 3

// TeardownGracePeriod bounds how long teardown waits for a child to exit
// after a terminate signal before sending a kill signal.
const TeardownGracePeriod = 5 * time.Second

// Mapping is an operator-supplied (url, identity) configuration pair.
type Mapping struct {
	URL      string
	Identity string
}

// ToolDefinition is an MCP tool as reported by a downstream endpoint or as
// rewritten for the merged upstream surface.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolCallRequest is a request to invoke a single tool on a single endpoint.
type ToolCallRequest struct {
	Name      string
	Arguments map[string]any
}

// ContentItem is one piece of content in a tool call result.
type ContentItem struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolCallResult is the outcome of invoking a tool, on one endpoint or
// aggregated across many.
type ToolCallResult struct {
	Content []ContentItem
	IsError bool
}

// TextResult builds a single-content-item textual result.
func TextResult(text string, isError bool) *ToolCallResult {
	return &ToolCallResult{
		Content: []ContentItem{{Type: "text", Text: text}},
		IsError: isError,
	}
}

// EndpointRecord is the supervisor's authoritative state for one endpoint.
// It is mutated only by the supervisor, under its per-endpoint lock
// discipline; readers outside the supervisor must go through its accessor
// methods, never touch the fields directly.
type EndpointRecord struct {
	URL      string
	Identity string

	Status EndpointStatus

	// child/client are either both present (Status == Connected) or both
	// absent.
	child  *ManagedProcess
	client DownstreamClient

	LastHeartbeat       time.Time
	ConsecutiveFailures int
	Tools               []ToolDefinition

	// Reconnecting guards against overlapping reconnect attempts for the
	// same endpoint.
	Reconnecting bool

	// mu serializes mutation of this record. The supervisor is the only
	// holder; operations on different endpoints proceed concurrently but
	// a single endpoint's connect/ping/call/teardown sequence is strictly
	// ordered.
	mu sync.Mutex
}

// Connected reports whether the record currently has a live client.
func (e *EndpointRecord) Connected() bool {
	return e.Status == StatusConnected && e.client != nil
}

// Snapshot is a read-only copy of an endpoint's state, safe to hand to
// callers outside the supervisor's lock (used by the health status
// endpoint and by tests).
type Snapshot struct {
	URL                 string
	Status              EndpointStatus
	LastHeartbeat       time.Time
	ConsecutiveFailures int
	ToolCount           int
}

// ClassificationTable is the schema merger's atomic snapshot of the
// current tool surface: which names route to a single endpoint, which
// fan out, and the merged tool list exposed upstream. A ClassificationTable
// is immutable once built; refresh produces a new one and swaps a pointer.
type ClassificationTable struct {
	Routable map[string]struct{}
	FanOut   map[string]struct{}
	Merged   []ToolDefinition
}

// IsRoutable reports whether name is classified as a routable tool.
func (c *ClassificationTable) IsRoutable(name string) bool {
	_, ok := c.Routable[name]
	return ok
}

// IsFanOut reports whether name is classified as a fan-out tool.
func (c *ClassificationTable) IsFanOut(name string) bool {
	_, ok := c.FanOut[name]
	return ok
}

// Known reports whether name appears in the merged tool list at all.
func (c *ClassificationTable) Known(name string) bool {
	return c.IsRoutable(name) || c.IsFanOut(name)
}

// ToolNames returns the names of every tool in the merged list, in order.
func (c *ClassificationTable) ToolNames() []string {
	names := make([]string, len(c.Merged))
	for i, t := range c.Merged {
		names[i] = t.Name
	}
	return names
}

func emptyClassificationTable() *ClassificationTable {
	return &ClassificationTable{
		Routable: map[string]struct{}{},
		FanOut:   map[string]struct{}{},
		Merged:   nil,
	}
}
