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

package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/fpmdev/fpm/internal/errors"
	"github.com/fpmdev/fpm/internal/types"
)

// MissingFieldError reports a required manifest field that is absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("manifest is missing required field %q", e.Field)
}

// MalformedError reports a manifest that cannot be interpreted: TOML syntax
// errors or known fields carrying the wrong type.
type MalformedError struct {
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed manifest: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed manifest: %s", e.Reason)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// Parse decodes manifest bytes. Unknown keys, both top-level and inside
// dependency entries, are retained in the Extra maps so Serialize can
// reproduce them.
func Parse(data []byte) (*Manifest, error) {
	const op errors.Op = "manifest.Parse"

	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, errors.E(op, errors.Manifest,
			&MalformedError{Reason: "invalid TOML", Err: err})
	}

	m := &Manifest{
		Bundles: map[string]DependencyEntry{},
		Extra:   map[string]interface{}{},
	}

	for k, v := range raw {
		switch k {
		case "fpm_version":
			s, err := stringField(k, v)
			if err != nil {
				return nil, errors.E(op, errors.Manifest, err)
			}
			m.FpmVersion = s
		case "identifier":
			s, err := stringField(k, v)
			if err != nil {
				return nil, errors.E(op, errors.Manifest, err)
			}
			m.Identifier = s
		case "description":
			s, err := stringField(k, v)
			if err != nil {
				return nil, errors.E(op, errors.Manifest, err)
			}
			m.Description = s
		case "version":
			s, err := stringField(k, v)
			if err != nil {
				return nil, errors.E(op, errors.Manifest, err)
			}
			m.Version = s
		case "root":
			s, err := stringField(k, v)
			if err != nil {
				return nil, errors.E(op, errors.Manifest, err)
			}
			m.Root = s
		case "bundles":
			tbl, ok := v.(map[string]interface{})
			if !ok {
				return nil, errors.E(op, errors.Manifest,
					&MalformedError{Reason: "\"bundles\" must be a table"})
			}
			for alias, ev := range tbl {
				entry, err := parseEntry(alias, ev)
				if err != nil {
					return nil, errors.E(op, errors.Manifest, err)
				}
				m.Bundles[alias] = entry
			}
		default:
			m.Extra[k] = v
		}
	}

	if m.FpmVersion == "" {
		return nil, errors.E(op, errors.Manifest, &MissingFieldError{Field: "fpm_version"})
	}
	if m.Identifier == "" {
		return nil, errors.E(op, errors.Manifest, &MissingFieldError{Field: "identifier"})
	}

	return m, nil
}

func parseEntry(alias string, v interface{}) (DependencyEntry, error) {
	tbl, ok := v.(map[string]interface{})
	if !ok {
		return DependencyEntry{}, &MalformedError{
			Reason: fmt.Sprintf("bundle %q must be a table", alias),
		}
	}

	entry := DependencyEntry{Extra: map[string]interface{}{}}
	for k, ev := range tbl {
		switch k {
		case "version", "git", "path", "branch":
			s, err := stringField(fmt.Sprintf("bundles.%s.%s", alias, k), ev)
			if err != nil {
				return DependencyEntry{}, err
			}
			switch k {
			case "version":
				entry.Version = s
			case "git":
				entry.Git = s
			case "path":
				entry.Path = s
			case "branch":
				entry.Branch = s
			}
		default:
			entry.Extra[k] = ev
		}
	}

	if entry.Version == "" {
		return DependencyEntry{}, &MissingFieldError{
			Field: fmt.Sprintf("bundles.%s.version", alias),
		}
	}
	if entry.Git == "" {
		return DependencyEntry{}, &MissingFieldError{
			Field: fmt.Sprintf("bundles.%s.git", alias),
		}
	}
	return entry, nil
}

func stringField(key string, v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &MalformedError{
			Reason: fmt.Sprintf("field %q must be a string, got %T", key, v),
		}
	}
	return s, nil
}

// Serialize encodes a manifest to its canonical textual form: simple keys
// first in alphabetical order, then one [bundles.<alias>] table per
// dependency, aliases in alphabetical order. Parse(Serialize(m)) is
// equivalent to m for every well-formed manifest, unknown keys included.
func Serialize(m *Manifest) ([]byte, error) {
	const op errors.Op = "manifest.Serialize"

	out := map[string]interface{}{}
	for k, v := range m.Extra {
		out[k] = v
	}
	out["fpm_version"] = m.FpmVersion
	out["identifier"] = m.Identifier
	if m.Description != "" {
		out["description"] = m.Description
	}
	if m.Version != "" {
		out["version"] = m.Version
	}
	if m.Root != "" {
		out["root"] = m.Root
	}
	if len(m.Bundles) > 0 {
		bundles := map[string]interface{}{}
		for alias, entry := range m.Bundles {
			tbl := map[string]interface{}{}
			for k, v := range entry.Extra {
				tbl[k] = v
			}
			tbl["version"] = entry.Version
			tbl["git"] = entry.Git
			if entry.Path != "" {
				tbl["path"] = entry.Path
			}
			if entry.Branch != "" {
				tbl["branch"] = entry.Branch
			}
			bundles[alias] = tbl
		}
		out["bundles"] = bundles
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(out); err != nil {
		return nil, errors.E(op, errors.Internal, err)
	}
	return buf.Bytes(), nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	const op errors.Op = "manifest.Load"
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.E(op, errors.IO, types.UniquePath(filepath.Dir(path)), err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, errors.E(op, types.UniquePath(filepath.Dir(path)), err)
	}
	return m, nil
}

// Save serializes m and writes it to path.
func Save(m *Manifest, path string) error {
	const op errors.Op = "manifest.Save"
	data, err := Serialize(m)
	if err != nil {
		return errors.E(op, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.E(op, errors.IO, types.UniquePath(filepath.Dir(path)), err)
	}
	return nil
}

// Exists reports whether dir contains a manifest file.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil
}
