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
	"fmt"
	"strings"
)

// ErrorCode categorizes a RouterError for callers that want to branch on it
// without string matching.
type ErrorCode string

const (
	// ErrorCodeConfig indicates a malformed --mapping or config file entry.
	ErrorCodeConfig ErrorCode = "CONFIG"
	// ErrorCodeConnect indicates a child spawn or MCP handshake failure.
	ErrorCodeConnect ErrorCode = "CONNECT"
	// ErrorCodePing indicates a ping request failed or timed out.
	ErrorCodePing ErrorCode = "PING"
	// ErrorCodeUnknownTool indicates the requested tool name is not in the
	// merged tool list.
	ErrorCodeUnknownTool ErrorCode = "UNKNOWN_TOOL"
	// ErrorCodeUnknownCluster indicates the requested cluster does not match
	// any configured endpoint.
	ErrorCodeUnknownCluster ErrorCode = "UNKNOWN_CLUSTER"
	// ErrorCodeNoEndpoints indicates no endpoint was connected when a
	// call-on-all or call-on-one was attempted.
	ErrorCodeNoEndpoints ErrorCode = "NO_ENDPOINTS"
)

// RouterError is an error with a category and optional remediation
// suggestions, surfaced either as a log field or (for dispatch failures)
// folded into a textual tool-call result.
type RouterError struct {
	Code        ErrorCode
	Message     string
	Detail      string
	Suggestions []string
	Cause       error
}

// Error implements the error interface.
func (e *RouterError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	return sb.String()
}

// Unwrap returns the underlying cause, if any.
func (e *RouterError) Unwrap() error {
	return e.Cause
}

// NewRouterError creates a RouterError with no detail or cause set.
func NewRouterError(code ErrorCode, message string) *RouterError {
	return &RouterError{Code: code, Message: message}
}

// WithDetail attaches additional context to the error.
func (e *RouterError) WithDetail(detail string) *RouterError {
	e.Detail = detail
	return e
}

// WithSuggestions attaches remediation suggestions to the error.
func (e *RouterError) WithSuggestions(suggestions ...string) *RouterError {
	e.Suggestions = suggestions
	return e
}

// WithCause attaches an underlying cause to the error.
func (e *RouterError) WithCause(cause error) *RouterError {
	e.Cause = cause
	return e
}

// isAuthFailure reports whether err looks like an authentication failure
// from a downstream call, matched against common HTTP auth-error markers.
func isAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	markers := []string{"401", "403", "Unauthorized", "Forbidden"}
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// unknownToolMessage renders the textual error for an unrecognized tool
// name, listing the tools currently exposed upstream.
func unknownToolMessage(name string, known []string) string {
	return fmt.Sprintf("Unknown tool %q. Available tools: %s", name, strings.Join(known, ", "))
}

// unknownClusterMessage renders the textual error for a cluster argument
// that doesn't match any configured endpoint.
func unknownClusterMessage(cluster string, endpoints []string) string {
	return fmt.Sprintf("cluster %q is not configured. Available endpoints: %s", cluster, strings.Join(endpoints, ", "))
}

// missingClusterMessage renders the textual error for a routable tool
// called without a cluster argument.
func missingClusterMessage(endpoints []string) string {
	return fmt.Sprintf("cluster parameter is required. Available endpoints: %s", strings.Join(endpoints, ", "))
}

// noEndpointsConnectedMessage renders the textual error for a fan-out call
// with zero connected endpoints.
func noEndpointsConnectedMessage() string {
	return "no endpoints connected"
}

// endpointUnavailableMessage renders the textual error for a call-on-one
// against an endpoint that is unknown or not currently Connected.
func endpointUnavailableMessage(url string, available []string) string {
	return fmt.Sprintf("endpoint %q is not connected. Available endpoints: %s", url, strings.Join(available, ", "))
}
