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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
)

// clusterProperty is the schema property name that signals a routable
// tool.
const clusterProperty = "cluster"

// SupervisorView is the subset of *Supervisor the classifier needs: the
// list of configured endpoints and each one's discovered tools. Narrowed to
// an interface so the classifier can be tested without a real Supervisor.
type SupervisorView interface {
	AllURLs() []string
	ConnectedURLs() []string
	Tools(url string) []ToolDefinition
}

// Classifier produces the merged, rewritten tool surface exposed upstream
// and the routable/fan-out classification table. Refresh
// swaps an atomic pointer so readers never observe a torn table.
type Classifier struct {
	supervisor SupervisorView
	logger     *slog.Logger
	table      atomic.Pointer[ClassificationTable]
}

// NewClassifier creates a Classifier with an empty table; call Refresh once
// endpoints have connected.
func NewClassifier(supervisor SupervisorView, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{supervisor: supervisor, logger: logger}
	c.table.Store(emptyClassificationTable())
	return c
}

// Table returns the current classification table. Safe to call
// concurrently with Refresh; callers see a consistent, never-torn snapshot.
func (c *Classifier) Table() *ClassificationTable {
	return c.table.Load()
}

// Refresh rebuilds the classification table from whichever connected
// endpoint's tool list is picked as the source of truth, then atomically swaps it in.
func (c *Classifier) Refresh() {
	source, sourceURL := c.pickSource()
	if source == nil {
		c.logger.Warn("schema refresh found no connected endpoint with a non-empty tool list")
		c.table.Store(emptyClassificationTable())
		return
	}

	endpoints := c.supervisor.AllURLs()

	table := &ClassificationTable{
		Routable: map[string]struct{}{},
		FanOut:   map[string]struct{}{},
	}

	merged := make([]ToolDefinition, 0, len(source))
	for _, tool := range source {
		routable, err := hasClusterProperty(tool.InputSchema)
		if err != nil {
			c.logger.Warn("failed to inspect tool schema during classification",
				"tool", tool.Name, "error", err)
			continue
		}

		var rewritten ToolDefinition
		if routable {
			table.Routable[tool.Name] = struct{}{}
			rewritten = rewriteRoutable(tool, endpoints)
		} else {
			table.FanOut[tool.Name] = struct{}{}
			rewritten = rewriteFanOut(tool, endpoints)
		}
		merged = append(merged, rewritten)
	}
	table.Merged = merged

	c.logger.Info("schema refresh complete",
		"source_endpoint", sourceURL,
		"routable", len(table.Routable),
		"fanout", len(table.FanOut),
	)

	c.table.Store(table)
}

// pickSource returns the tool list of the first Connected endpoint (in
// AllURLs order) whose tool list is non-empty. This
// assumes every endpoint exposes an identical tool set; heterogeneous tool
// sets are not reconciled.
func (c *Classifier) pickSource() ([]ToolDefinition, string) {
	connected := make(map[string]struct{})
	for _, url := range c.supervisor.ConnectedURLs() {
		connected[url] = struct{}{}
	}

	for _, url := range c.supervisor.AllURLs() {
		if _, ok := connected[url]; !ok {
			continue
		}
		tools := c.supervisor.Tools(url)
		if len(tools) > 0 {
			return tools, url
		}
	}
	return nil, ""
}

// hasClusterProperty reports whether schema declares a top-level "cluster"
// property under "properties".
func hasClusterProperty(schema json.RawMessage) (bool, error) {
	if len(schema) == 0 {
		return false, nil
	}

	var parsed struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schema, &parsed); err != nil {
		return false, fmt.Errorf("unmarshal input schema: %w", err)
	}

	_, ok := parsed.Properties[clusterProperty]
	return ok, nil
}

// rawSchema is a generic JSON-Schema-shaped object used for deep-copy
// rewriting, since downstream schemas arrive as opaque json.RawMessage.
type rawSchema map[string]any

// decodeSchema deep-copies schema into a generic map, defaulting to an
// empty object schema if the input is empty or malformed.
func decodeSchema(schema json.RawMessage) rawSchema {
	out := rawSchema{}
	if len(schema) == 0 {
		return out
	}
	if err := json.Unmarshal(schema, &out); err != nil {
		return rawSchema{}
	}
	return out
}

func (s rawSchema) properties() map[string]any {
	props, ok := s["properties"].(map[string]any)
	if !ok {
		props = map[string]any{}
		s["properties"] = props
	}
	return props
}

func (s rawSchema) requiredList() []string {
	raw, ok := s["required"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func (s rawSchema) encode() json.RawMessage {
	b, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// rewriteRoutable deep-copies a routable tool's schema and rewrites its
// cluster property.
func rewriteRoutable(tool ToolDefinition, endpoints []string) ToolDefinition {
	schema := decodeSchema(tool.InputSchema)
	props := schema.properties()

	props[clusterProperty] = map[string]any{
		"type":        "string",
		"enum":        endpoints,
		"description": clusterDescription(endpoints),
	}

	required := schema.requiredList()
	if !containsString(required, clusterProperty) {
		required = append(required, clusterProperty)
	}
	schema["required"] = toAnySlice(required)

	return ToolDefinition{
		Name:        tool.Name,
		Description: strings.TrimSpace(tool.Description) + " (Routed to the specified cluster)",
		InputSchema: schema.encode(),
	}
}

// rewriteFanOut deep-copies a fan-out tool's schema and adds an optional
// cluster property.
func rewriteFanOut(tool ToolDefinition, endpoints []string) ToolDefinition {
	schema := decodeSchema(tool.InputSchema)
	props := schema.properties()

	props[clusterProperty] = map[string]any{
		"type":        "string",
		"enum":        endpoints,
		"description": "Optional. Restrict the query to a single cluster; omitting this fans the call out to all connected clusters.",
	}

	// cluster is never required for fan-out tools; drop it from required
	// if the downstream schema happened to already list it.
	required := schema.requiredList()
	filtered := make([]string, 0, len(required))
	for _, r := range required {
		if r != clusterProperty {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) > 0 {
		schema["required"] = toAnySlice(filtered)
	} else {
		delete(schema, "required")
	}

	return ToolDefinition{
		Name:        tool.Name,
		Description: strings.TrimSpace(tool.Description) + " (Queries all available clusters unless a specific cluster is specified)",
		InputSchema: schema.encode(),
	}
}

func clusterDescription(endpoints []string) string {
	return fmt.Sprintf("The cluster to route this call to. Available: %s", strings.Join(endpoints, ", "))
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}

func toAnySlice(list []string) []any {
	out := make([]any, len(list))
	for i, s := range list {
		out[i] = s
	}
	return out
}
