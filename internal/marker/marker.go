// Copyright 2025 The fpm Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package marker reads and writes the per-installation sync marker that
// records the upstream commit an installed directory was populated from.
// The marker is internal bookkeeping; it is not part of the publishable
// surface of a source bundle.
package marker

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/fpmdev/fpm/internal/errors"
	"github.com/fpmdev/fpm/internal/types"
)

// FileName is the name of the marker file inside an installed bundle
// directory.
const FileName = ".fpm-sync.yaml"

// Marker records where an installed directory came from.
type Marker struct {
	// Repo is the normalized source repository key.
	Repo string `yaml:"repo"`

	// Ref is the git ref the declared version resolved to at install
	// time.
	Ref string `yaml:"ref"`

	// Commit is the SHA the directory was populated from.
	Commit string `yaml:"commit"`

	// Path is the subtree of the repository that was extracted, if any.
	Path string `yaml:"path,omitempty"`
}

// Read loads the marker for the installed directory at dir. A missing or
// unreadable marker returns nil without an error: install treats both as
// "not installed" and re-fetches.
func Read(dir string) *Marker {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil
	}
	var m Marker
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil
	}
	if m.Commit == "" {
		return nil
	}
	return &m
}

// Write stores the marker for the installed directory at dir.
func Write(dir string, m *Marker) error {
	const op errors.Op = "marker.Write"
	data, err := yaml.Marshal(m)
	if err != nil {
		return errors.E(op, errors.Internal, err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0600); err != nil {
		return errors.E(op, errors.IO, types.UniquePath(dir), err)
	}
	return nil
}
