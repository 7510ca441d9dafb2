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

package log

import (
	"log/slog"
	"time"
)

// CallLog writes the upstream boundary's per-call records: one when a
// call_tool arrives, one when dispatch finishes. Both carry the call's
// correlation ID, the same ID the supervisor pulls from the request
// context for its downstream records, so a fan-out's per-endpoint lines
// can be joined back to the call that caused them.
type CallLog struct {
	logger *slog.Logger
}

// NewCallLog creates a CallLog writing through logger.
func NewCallLog(logger *slog.Logger) *CallLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallLog{logger: logger}
}

// Received records an incoming call_tool before it is dispatched.
func (l *CallLog) Received(correlationID, tool string) {
	l.logger.Info("tool call received",
		EventKey, "call_received",
		ToolKey, tool,
		CorrelationIDKey, correlationID,
	)
}

// Completed records the dispatch outcome. A result carrying isError is a
// tool-level failure encoded in the response rather than a router fault,
// so it logs at warn, never error.
func (l *CallLog) Completed(correlationID, tool string, isError bool, elapsed time.Duration) {
	attrs := []any{
		EventKey, "call_completed",
		ToolKey, tool,
		CorrelationIDKey, correlationID,
		DurationKey, elapsed.Milliseconds(),
		"is_error", isError,
	}

	if isError {
		l.logger.Warn("tool call completed with error result", attrs...)
		return
	}
	l.logger.Info("tool call completed", attrs...)
}
