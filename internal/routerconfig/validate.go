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

// Package routerconfig resolves the router's startup configuration: the
// shared downstream child command, its environment, and the set of
// endpoint mappings, merged from repeated --mapping flags and an optional
// --config YAML file.
package routerconfig

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// The child command is spawned once per configured endpoint and runs for
// the life of the router, so a bad value here fails N times over. It is
// exec'd directly, never through a shell, but the command line usually
// arrives pasted out of an MCP client config where shell fragments creep
// in; shell metacharacters in an arg or env value are treated as a config
// mistake rather than passed through to every child.
var shellTokens = []string{";", "&&", "||", "|", "`", "$(", "${", "\n", "\r"}

// findShellToken returns the first shell metacharacter found in s.
// allowSubstitution tolerates "${", since env values may carry unexpanded
// ${VAR} substitution syntax.
func findShellToken(s string, allowSubstitution bool) (string, bool) {
	for _, tok := range shellTokens {
		if allowSubstitution && tok == "${" {
			continue
		}
		if strings.Contains(s, tok) {
			return tok, true
		}
	}
	return "", false
}

// ValidateCommand checks that the configured child executable exists
// before the supervisor tries to spawn it per endpoint: either a name
// resolvable via PATH, or an absolute path to an executable regular file.
func ValidateCommand(cmd string) error {
	if cmd == "" {
		return fmt.Errorf("child command is required (use --command or the config file's command key)")
	}

	if !filepath.IsAbs(cmd) {
		if _, err := exec.LookPath(cmd); err != nil {
			return fmt.Errorf("child command %q not found in PATH", cmd)
		}
		return nil
	}

	info, err := os.Stat(cmd)
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("child command %s does not exist", cmd)
	case err != nil:
		return fmt.Errorf("child command %s: %w", cmd, err)
	case info.IsDir():
		return fmt.Errorf("child command %s is a directory", cmd)
	case info.Mode()&0111 == 0:
		return fmt.Errorf("child command %s is not executable", cmd)
	}
	return nil
}

// ValidateArg rejects a child argument containing a shell metacharacter.
func ValidateArg(arg string) error {
	if tok, found := findShellToken(arg, false); found {
		return fmt.Errorf("child argument %q contains shell metacharacter %q", arg, tok)
	}
	return nil
}

var envKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateEnv checks that a shared child environment entry is KEY=VALUE
// with an identifier key and a value free of shell metacharacters, aside
// from ${VAR} substitution syntax which passes through unexpanded.
func ValidateEnv(entry string) error {
	key, value, ok := strings.Cut(entry, "=")
	if !ok {
		return fmt.Errorf("environment entry %q is not in KEY=VALUE form", entry)
	}
	if !envKeyPattern.MatchString(key) {
		return fmt.Errorf("environment key %q is not a valid identifier", key)
	}
	if tok, found := findShellToken(value, true); found {
		return fmt.Errorf("environment value for %s contains shell metacharacter %q", key, tok)
	}
	return nil
}

// credentialKeyHints mark an environment key as likely to hold a
// credential. IDENTITY is included because the router's own child
// contract forwards IDENTITY_ENDPOINT/IDENTITY_HEADER, which carry
// managed-identity material.
var credentialKeyHints = []string{
	"SECRET", "TOKEN", "KEY", "PASSWORD", "CREDENTIAL", "AUTH", "IDENTITY",
}

// IsSensitiveEnvKey reports whether key looks like it holds a credential.
func IsSensitiveEnvKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, hint := range credentialKeyHints {
		if strings.Contains(upper, hint) {
			return true
		}
	}
	return false
}

// RedactEnv returns a copy of entries with credential-looking values
// masked, safe to hand to the startup diagnostics log. Only these shared
// env entries pass through it; a mapping's identity is not part of them.
func RedactEnv(entries []string) []string {
	out := make([]string, len(entries))
	for i, entry := range entries {
		key, _, ok := strings.Cut(entry, "=")
		if ok && IsSensitiveEnvKey(key) {
			out[i] = key + "=[redacted]"
		} else {
			out[i] = entry
		}
	}
	return out
}
