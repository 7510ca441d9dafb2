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
	"os"

	"gopkg.in/yaml.v3"

	rerrors "github.com/tombee/mcprouter/pkg/errors"
)

// MappingEntry is one endpoint entry in a --config YAML file.
type MappingEntry struct {
	URL      string `yaml:"url"`
	Identity string `yaml:"identity,omitempty"`
}

// File is the optional --config YAML file supplementing repeated
// --mapping flags: the shared child command/args/env plus a list of
// endpoint mappings. The router never writes this file back; it only
// reads it once at startup.
type File struct {
	Command  string         `yaml:"command,omitempty"`
	Args     []string       `yaml:"args,omitempty"`
	Env      []string       `yaml:"env,omitempty"`
	Mappings []MappingEntry `yaml:"mappings,omitempty"`
}

// LoadFile reads and parses a --config YAML file. A missing path is not
// an error; callers get a zero-value File and proceed with CLI flags only.
func LoadFile(path string) (*File, error) {
	if path == "" {
		return &File{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, &rerrors.ConfigError{Key: path, Reason: "could not read config file", Cause: err}
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &rerrors.ConfigError{Key: path, Reason: "could not parse config file as YAML", Cause: err}
	}
	return &f, nil
}
