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

	rerrors "github.com/tombee/mcprouter/pkg/errors"
)

// NormalizeURL applies the router's endpoint identifier normalization:
// trim whitespace, lower-case, strip trailing slashes, and prepend
// "https://" if neither scheme is present. Normalization is idempotent.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ToLower(s)
	s = strings.TrimRight(s, "/")

	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}

	return s
}

// ParseMapping parses a single --mapping value of the form "URL=IDENTITY" or
// bare "URL". It finds the first "=": everything before is
// the URL, everything after (including further "="s) is the identity.
func ParseMapping(raw string) (Mapping, error) {
	idx := strings.Index(raw, "=")

	var url, identity string
	if idx == -1 {
		url = raw
	} else {
		url = raw[:idx]
		identity = raw[idx+1:]
	}

	if url == "" {
		return Mapping{}, &rerrors.ValidationError{
			Field:      "mapping",
			Message:    fmt.Sprintf("mapping %q has an empty URL", raw),
			Suggestion: "use URL or URL=IDENTITY",
		}
	}

	return Mapping{URL: NormalizeURL(url), Identity: identity}, nil
}

// DedupeMappings drops mappings whose normalized URL has already been seen,
// keeping the first occurrence. Kept mappings carry the normalized URL, so
// the caller's endpoint map never has duplicate keys even when its input
// was built without going through ParseMapping. The second return value
// lists the dropped duplicates so the caller can log a warning for each.
func DedupeMappings(mappings []Mapping) (kept []Mapping, dropped []Mapping) {
	seen := make(map[string]struct{}, len(mappings))
	for _, m := range mappings {
		url := NormalizeURL(m.URL)
		if _, ok := seen[url]; ok {
			dropped = append(dropped, m)
			continue
		}
		seen[url] = struct{}{}
		kept = append(kept, Mapping{URL: url, Identity: m.Identity})
	}
	return kept, dropped
}

// EndpointURLs returns the normalized URLs of mappings, in order.
func EndpointURLs(mappings []Mapping) []string {
	urls := make([]string, len(mappings))
	for i, m := range mappings {
		urls[i] = m.URL
	}
	return urls
}
