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

package routerconfig

import (
	"github.com/tombee/mcprouter/internal/router"
	rerrors "github.com/tombee/mcprouter/pkg/errors"
)

// CLI holds the flags cmd/mcprouter parses before resolution.
type CLI struct {
	ConfigPath string
	Mappings   []string
	Command    string
	Args       []string
	Env        []string
}

// Resolved is the fully validated startup configuration: the shared child
// command (including its merged static environment) and the deduplicated
// endpoint mappings.
type Resolved struct {
	Child    router.ChildSpec
	Mappings []router.Mapping
}

// Resolve merges CLI flags with an optional --config YAML file into a
// Resolved configuration. CLI mappings are considered before file mappings
// so a duplicate URL in both places keeps the CLI entry. An explicit
// --command, together with the CLI's trailing arguments, replaces the
// file's command and args; without --command, the file's command and args
// are used and any CLI arguments are ignored.
func Resolve(cli CLI) (Resolved, error) {
	file, err := LoadFile(cli.ConfigPath)
	if err != nil {
		return Resolved{}, err
	}

	mappings, err := resolveMappings(cli.Mappings, file.Mappings)
	if err != nil {
		return Resolved{}, err
	}
	if len(mappings) == 0 {
		return Resolved{}, rerrors.Config("mappings", "no endpoint mappings configured (use --mapping or --config)")
	}

	command := cli.Command
	args := cli.Args
	if command == "" {
		command = file.Command
		args = file.Args
	}
	if err := ValidateCommand(command); err != nil {
		return Resolved{}, err
	}
	for _, a := range args {
		if err := ValidateArg(a); err != nil {
			return Resolved{}, err
		}
	}

	env := mergeEnv(cli.Env, file.Env)
	for _, e := range env {
		if err := ValidateEnv(e); err != nil {
			return Resolved{}, err
		}
	}

	return Resolved{
		Child:    router.ChildSpec{Command: command, Args: args, Env: env},
		Mappings: mappings,
	}, nil
}

// resolveMappings parses the CLI's raw "URL=IDENTITY" strings, appends the
// file's structured entries, and dedupes by normalized URL with the CLI
// entries given priority.
func resolveMappings(rawCLI []string, fromFile []MappingEntry) ([]router.Mapping, error) {
	parsed := make([]router.Mapping, 0, len(rawCLI)+len(fromFile))

	for _, raw := range rawCLI {
		m, err := router.ParseMapping(raw)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, m)
	}

	for _, entry := range fromFile {
		if entry.URL == "" {
			return nil, rerrors.Config("mappings", "config file mapping has an empty url")
		}
		parsed = append(parsed, router.Mapping{
			URL:      router.NormalizeURL(entry.URL),
			Identity: entry.Identity,
		})
	}

	kept, _ := router.DedupeMappings(parsed)
	return kept, nil
}

// mergeEnv appends file-provided env entries that don't collide with a key
// already set on the CLI, so --env flags can override the config file.
func mergeEnv(cliEnv, fileEnv []string) []string {
	keys := make(map[string]struct{}, len(cliEnv))
	for _, e := range cliEnv {
		keys[envKey(e)] = struct{}{}
	}

	out := make([]string, len(cliEnv), len(cliEnv)+len(fileEnv))
	copy(out, cliEnv)
	for _, e := range fileEnv {
		if _, dup := keys[envKey(e)]; dup {
			continue
		}
		out = append(out, e)
	}
	return out
}

func envKey(env string) string {
	for i := 0; i < len(env); i++ {
		if env[i] == '=' {
			return env[:i]
		}
	}
	return env
}
