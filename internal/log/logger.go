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

// Package log builds the router's structured slog loggers and defines the
// shared field keys its packages log under. Everything goes to stderr (or
// a mirror file); stdout belongs to the upstream stdio transport and must
// stay clean.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the handler encoding.
type Format string

const (
	// FormatJSON emits one JSON object per record, for machine parsing.
	FormatJSON Format = "json"
	// FormatText emits key=value text, for humans tailing stderr.
	FormatText Format = "text"
)

// Field keys shared across the router's packages, so one endpoint's story
// can be stitched together from supervisor, health-loop, and dispatch
// records without guessing at key spellings.
const (
	// EndpointKey carries a normalized downstream endpoint URL.
	EndpointKey = "endpoint"
	// ToolKey carries an MCP tool name.
	ToolKey = "tool"
	// EventKey tags a record with a machine-matchable event name.
	EventKey = "event"
	// DurationKey carries an elapsed time in milliseconds.
	DurationKey = "duration_ms"
	// CorrelationIDKey carries the per-call ID minted at the upstream
	// boundary and threaded through dispatch via the request context.
	CorrelationIDKey = "correlation_id"
)

// Config holds the logging configuration.
type Config struct {
	// Level is the minimum level emitted: debug, info, warn, or error.
	Level string

	// Format selects JSON or text encoding. Default: json.
	Format Format

	// Output receives every record. Default: os.Stderr. Never set this to
	// stdout; the upstream MCP transport owns that stream.
	Output io.Writer

	// AddSource includes the emitting file:line on each record.
	AddSource bool
}

// DefaultConfig returns the stderr/JSON/info configuration used when no
// environment or flags say otherwise.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// FromEnv derives a Config from the environment:
//
//	MCPROUTER_DEBUG      true/1 forces debug level plus source locations
//	MCPROUTER_LOG_LEVEL  debug|info|warn|error (wins over LOG_LEVEL)
//	LOG_LEVEL            debug|info|warn|error
//	LOG_FORMAT           json|text
//	LOG_SOURCE           1 to include source locations
func FromEnv() *Config {
	cfg := DefaultConfig()

	switch os.Getenv("MCPROUTER_DEBUG") {
	case "true", "1":
		cfg.Level = "debug"
		cfg.AddSource = true
	default:
		if level := firstNonEmpty(os.Getenv("MCPROUTER_LOG_LEVEL"), os.Getenv("LOG_LEVEL")); level != "" {
			cfg.Level = strings.ToLower(level)
		}
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Format = Format(strings.ToLower(format))
	}
	if os.Getenv("LOG_SOURCE") == "1" {
		cfg.AddSource = true
	}

	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// New builds a slog.Logger from cfg. A nil cfg gets DefaultConfig.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == FormatText {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	return slog.New(handler)
}

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// parseLevel maps a level name to its slog.Level, defaulting to info for
// anything unrecognized.
func parseLevel(name string) slog.Level {
	if level, ok := levelNames[strings.ToLower(name)]; ok {
		return level
	}
	return slog.LevelInfo
}

// WithComponent tags every record from logger with the subsystem emitting
// it (supervisor, health, dispatch, upstream), so one endpoint's records
// can be filtered by which loop produced them.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}
