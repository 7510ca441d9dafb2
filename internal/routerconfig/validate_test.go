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

package routerconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcprouter/internal/routerconfig"
)

func TestValidateCommand(t *testing.T) {
	t.Run("empty command", func(t *testing.T) {
		assert.Error(t, routerconfig.ValidateCommand(""))
	})

	t.Run("resolvable via PATH", func(t *testing.T) {
		assert.NoError(t, routerconfig.ValidateCommand("sh"))
	})

	t.Run("not found", func(t *testing.T) {
		assert.Error(t, routerconfig.ValidateCommand("definitely-not-a-real-command"))
	})

	t.Run("absolute executable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "child")
		require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
		assert.NoError(t, routerconfig.ValidateCommand(path))
	})

	t.Run("absolute non-executable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "child")
		require.NoError(t, os.WriteFile(path, []byte(""), 0o644))
		assert.Error(t, routerconfig.ValidateCommand(path))
	})

	t.Run("absolute directory", func(t *testing.T) {
		assert.Error(t, routerconfig.ValidateCommand(t.TempDir()))
	})
}

func TestValidateArg(t *testing.T) {
	assert.NoError(t, routerconfig.ValidateArg("--mapping"))
	assert.NoError(t, routerconfig.ValidateArg("https://c1.example"))

	for _, bad := range []string{"a;b", "a && b", "a | b", "`whoami`", "$(whoami)", "a\nb"} {
		assert.Error(t, routerconfig.ValidateArg(bad), "arg %q should be rejected", bad)
	}
}

func TestValidateEnv(t *testing.T) {
	assert.NoError(t, routerconfig.ValidateEnv("KEY=value"))
	assert.NoError(t, routerconfig.ValidateEnv("PATH_LIKE=${HOME}/bin"))

	assert.Error(t, routerconfig.ValidateEnv("NOEQUALS"))
	assert.Error(t, routerconfig.ValidateEnv("=value"))
	assert.Error(t, routerconfig.ValidateEnv("BAD-KEY=v"))
	assert.Error(t, routerconfig.ValidateEnv("KEY=v; rm -rf /"))
	assert.Error(t, routerconfig.ValidateEnv("KEY=`whoami`"))
}

func TestIsSensitiveEnvKey(t *testing.T) {
	for _, key := range []string{"API_SECRET", "AUTH_TOKEN", "azure_client_key", "DB_PASSWORD", "AZURE_TOKEN_CREDENTIALS", "IDENTITY_HEADER"} {
		assert.True(t, routerconfig.IsSensitiveEnvKey(key), "%q should be sensitive", key)
	}
	for _, key := range []string{"HOME", "LOG_LEVEL", "ENDPOINT_URL"} {
		assert.False(t, routerconfig.IsSensitiveEnvKey(key), "%q should not be sensitive", key)
	}
}

func TestRedactEnv(t *testing.T) {
	out := routerconfig.RedactEnv([]string{
		"API_TOKEN=supersecret",
		"LOG_LEVEL=debug",
		"MALFORMED",
	})

	assert.Equal(t, "API_TOKEN=[redacted]", out[0])
	assert.Equal(t, "LOG_LEVEL=debug", out[1])
	assert.Equal(t, "MALFORMED", out[2])
}
