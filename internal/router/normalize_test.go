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

package router_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcprouter/internal/router"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"mixed case with scheme", "https://MyCluster.Kusto.Windows.Net", "https://mycluster.kusto.windows.net"},
		{"trailing slash", "https://mycluster.kusto.windows.net/", "https://mycluster.kusto.windows.net"},
		{"no scheme", "mycluster.kusto.windows.net", "https://mycluster.kusto.windows.net"},
		{"whitespace padded", "  https://mycluster.kusto.windows.net  ", "https://mycluster.kusto.windows.net"},
		{"http scheme preserved", "http://x", "http://x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, router.NormalizeURL(tt.in))
		})
	}
}

func TestNormalizeURLIdempotent(t *testing.T) {
	inputs := []string{
		"https://MyCluster.Kusto.Windows.Net",
		"  mycluster.kusto.windows.net/  ",
		"http://x///",
	}

	for _, in := range inputs {
		once := router.NormalizeURL(in)
		twice := router.NormalizeURL(once)
		assert.Equal(t, once, twice, "normalize(normalize(%q)) should equal normalize(%q)", in, in)
	}
}

func TestParseMapping(t *testing.T) {
	t.Run("url and identity with embedded equals", func(t *testing.T) {
		m, err := router.ParseMapping("https://c.example=/sub/rg/id=with=equals")
		require.NoError(t, err)
		assert.Equal(t, "https://c.example", m.URL)
		assert.Equal(t, "/sub/rg/id=with=equals", m.Identity)
	})

	t.Run("bare url has empty identity", func(t *testing.T) {
		m, err := router.ParseMapping("https://c.example")
		require.NoError(t, err)
		assert.Equal(t, "https://c.example", m.URL)
		assert.Equal(t, "", m.Identity)
	})

	t.Run("empty url is an error", func(t *testing.T) {
		_, err := router.ParseMapping("=/some")
		assert.Error(t, err)
	})
}

func TestDedupeMappings(t *testing.T) {
	in := []router.Mapping{
		{URL: "https://c1.example", Identity: "a"},
		{URL: "https://c1.example", Identity: "b"},
		{URL: "https://c2.example", Identity: "c"},
	}

	kept, dropped := router.DedupeMappings(in)

	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].Identity, "first occurrence is kept")
	assert.Equal(t, "https://c2.example", kept[1].URL)

	require.Len(t, dropped, 1)
	assert.Equal(t, "b", dropped[0].Identity)
}
