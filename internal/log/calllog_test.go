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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcprouter/internal/log"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &decoded))
		out = append(out, decoded)
	}
	return out
}

func TestCallLogReceived(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&log.Config{Level: "info", Format: log.FormatJSON, Output: &buf})

	log.NewCallLog(logger).Received("corr-1", "kusto_query")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "call_received", lines[0][log.EventKey])
	assert.Equal(t, "kusto_query", lines[0][log.ToolKey])
	assert.Equal(t, "corr-1", lines[0][log.CorrelationIDKey])
}

func TestCallLogCompleted(t *testing.T) {
	t.Run("success logs at info", func(t *testing.T) {
		var buf bytes.Buffer
		logger := log.New(&log.Config{Level: "info", Format: log.FormatJSON, Output: &buf})

		log.NewCallLog(logger).Completed("corr-1", "kusto_query", false, 42*time.Millisecond)

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "INFO", lines[0]["level"])
		assert.Equal(t, "call_completed", lines[0][log.EventKey])
		assert.Equal(t, false, lines[0]["is_error"])
		assert.Equal(t, float64(42), lines[0][log.DurationKey])
	})

	t.Run("error result logs at warn", func(t *testing.T) {
		var buf bytes.Buffer
		logger := log.New(&log.Config{Level: "info", Format: log.FormatJSON, Output: &buf})

		log.NewCallLog(logger).Completed("corr-2", "kusto_cluster_list", true, time.Millisecond)

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "WARN", lines[0]["level"])
		assert.Equal(t, true, lines[0]["is_error"])
		assert.Equal(t, "corr-2", lines[0][log.CorrelationIDKey])
	})
}
