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

package log_test

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcprouter/internal/log"
)

func TestDefaultConfig(t *testing.T) {
	cfg := log.DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, log.FormatJSON, cfg.Format)
	assert.Equal(t, os.Stderr, cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestFromEnv(t *testing.T) {
	t.Run("defaults when nothing set", func(t *testing.T) {
		for _, key := range []string{"MCPROUTER_DEBUG", "MCPROUTER_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE"} {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}

		cfg := log.FromEnv()
		assert.Equal(t, "info", cfg.Level)
		assert.Equal(t, log.FormatJSON, cfg.Format)
	})

	t.Run("MCPROUTER_DEBUG enables debug and source", func(t *testing.T) {
		t.Setenv("MCPROUTER_DEBUG", "1")
		cfg := log.FromEnv()
		assert.Equal(t, "debug", cfg.Level)
		assert.True(t, cfg.AddSource)
	})

	t.Run("MCPROUTER_LOG_LEVEL takes precedence over LOG_LEVEL", func(t *testing.T) {
		t.Setenv("MCPROUTER_LOG_LEVEL", "warn")
		t.Setenv("LOG_LEVEL", "error")
		cfg := log.FromEnv()
		assert.Equal(t, "warn", cfg.Level)
	})

	t.Run("LOG_FORMAT sets text format", func(t *testing.T) {
		t.Setenv("LOG_FORMAT", "TEXT")
		cfg := log.FromEnv()
		assert.Equal(t, log.Format("text"), cfg.Format)
	})

	t.Run("LOG_SOURCE enables source", func(t *testing.T) {
		t.Setenv("LOG_SOURCE", "1")
		cfg := log.FromEnv()
		assert.True(t, cfg.AddSource)
	})
}

func TestNew(t *testing.T) {
	t.Run("writes JSON by default", func(t *testing.T) {
		var buf bytes.Buffer
		logger := log.New(&log.Config{Level: "info", Format: log.FormatJSON, Output: &buf})
		logger.Info("endpoint connected", log.EndpointKey, "https://c1.example")

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "endpoint connected", decoded["msg"])
		assert.Equal(t, "https://c1.example", decoded[log.EndpointKey])
	})

	t.Run("writes text format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := log.New(&log.Config{Level: "info", Format: log.FormatText, Output: &buf})
		logger.Info("ping failed")

		assert.Contains(t, buf.String(), "ping failed")
		assert.NotContains(t, buf.String(), "{")
	})

	t.Run("nil config falls back to defaults", func(t *testing.T) {
		logger := log.New(nil)
		require.NotNil(t, logger)
	})

	t.Run("respects configured level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := log.New(&log.Config{Level: "warn", Format: log.FormatJSON, Output: &buf})
		logger.Info("should be filtered")
		logger.Warn("should appear")

		assert.NotContains(t, buf.String(), "should be filtered")
		assert.Contains(t, buf.String(), "should appear")
	})

	t.Run("unrecognized level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		logger := log.New(&log.Config{Level: "chatty", Format: log.FormatJSON, Output: &buf})
		logger.Debug("should be filtered")
		logger.Info("should appear")

		assert.NotContains(t, buf.String(), "should be filtered")
		assert.Contains(t, buf.String(), "should appear")
	})
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	base := log.New(&log.Config{Level: "info", Format: log.FormatJSON, Output: &buf})

	log.WithComponent(base, "supervisor").Info("starting")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "supervisor", decoded["component"])
}
