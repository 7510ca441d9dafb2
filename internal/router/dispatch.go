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
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	rlog "github.com/tombee/mcprouter/internal/log"
)

// Dispatcher is the Dispatch Router: it turns one upstream
// call_tool(name, args) into one or many Supervisor calls using the
// Classifier's current classification table.
type Dispatcher struct {
	classifier *Classifier
	supervisor *Supervisor
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *Metrics
}

// NewDispatcher creates a Dispatcher bound to a Classifier and Supervisor.
func NewDispatcher(classifier *Classifier, supervisor *Supervisor, logger *slog.Logger, metrics *Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		classifier: classifier,
		supervisor: supervisor,
		logger:     logger,
		tracer:     otel.Tracer("github.com/tombee/mcprouter/internal/router"),
		metrics:    metrics,
	}
}

// Dispatch implements the routing decision table: route-to-one, fan-out,
// or a textual error, depending on the tool's classification and whether a
// cluster argument was supplied. identities maps endpoint URL to the
// mapping's opaque identity string, forwarded into log context on auth
// failures.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any, identities map[string]string) *ToolCallResult {
	ctx, span := d.tracer.Start(ctx, "router.dispatch", trace.WithAttributes(
		attribute.String("tool.name", name),
	))
	defer span.End()

	table := d.classifier.Table()
	_, hasCluster := clusterArg(args)

	var mode string
	var result *ToolCallResult

	switch {
	case table.IsRoutable(name):
		mode = "route"
		result = d.routeToOne(ctx, table, name, args, identities, true)

	case table.IsFanOut(name) && hasCluster:
		mode = "route"
		result = d.routeToOne(ctx, table, name, args, identities, false)

	case table.IsFanOut(name) && !hasCluster:
		mode = "fanout"
		d.logger.Debug("fanning out tool call", rlog.ToolKey, name)
		result = d.supervisor.CallOnAll(ctx, ToolCallRequest{Name: name, Arguments: stripCluster(args)}, identities)

	case hasCluster:
		// Unknown name with a cluster argument: optimistic passthrough.
		mode = "route"
		result = d.routeToOne(ctx, table, name, args, identities, true)

	default:
		mode = "unknown"
		result = TextResult(unknownToolMessage(name, table.ToolNames()), true)
	}

	d.metrics.ObserveCall(mode, result.IsError)
	return result
}

// routeToOne validates and normalizes the cluster argument, then delegates
// to the Supervisor.
// forwardCluster controls whether the cluster key is kept in the
// downstream arguments (true for routable tools, false for fan-out tools
// invoked with an explicit cluster).
func (d *Dispatcher) routeToOne(ctx context.Context, table *ClassificationTable, name string, args map[string]any, identities map[string]string, forwardCluster bool) *ToolCallResult {
	cluster, ok := clusterArg(args)
	if !ok || cluster == "" {
		return TextResult(missingClusterMessage(d.supervisor.AllURLs()), true)
	}

	normalized := NormalizeURL(cluster)
	if !containsString(d.supervisor.AllURLs(), normalized) {
		return TextResult(unknownClusterMessage(cluster, d.supervisor.AllURLs()), true)
	}

	forwarded := args
	if !forwardCluster {
		forwarded = stripCluster(args)
	}

	return d.supervisor.CallOnOne(ctx, normalized, ToolCallRequest{Name: name, Arguments: forwarded}, identities[normalized])
}

// clusterArg extracts the "cluster" argument as a string, if present.
func clusterArg(args map[string]any) (string, bool) {
	raw, ok := args["cluster"]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

// stripCluster returns a shallow copy of args with the "cluster" key
// removed, so the synthetic routing argument never reaches the downstream
// tool call.
func stripCluster(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if k == clusterProperty {
			continue
		}
		out[k] = v
	}
	return out
}
