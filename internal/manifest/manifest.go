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

// Package manifest defines the bundle manifest model and its TOML codec.
package manifest

const (
	// FileName is the name of the manifest file in a bundle directory.
	FileName = "bundle.toml"

	// BundleDir is the directory under which dependencies are installed,
	// relative to the directory holding the manifest.
	BundleDir = ".fpm"

	// DefaultBranch is the branch pushed to when a dependency entry names
	// neither a branch-shaped version nor an explicit branch.
	DefaultBranch = "main"
)

// Manifest is the parsed form of a bundle.toml file.
type Manifest struct {
	// FpmVersion is the manifest schema version. Required.
	FpmVersion string

	// Identifier is a stable human identifier for the bundle. Required.
	Identifier string

	// Description is free-form text about the bundle.
	Description string

	// Version is the version a publisher will stamp. Present on source
	// manifests; installed copies carry whatever the remote had.
	Version string

	// Root is the relative path to the publishable artifact tree. A
	// manifest with Root set is a source bundle; without it, a consumer
	// manifest.
	Root string

	// Bundles maps local aliases to dependency entries. Aliases are
	// unique within a manifest.
	Bundles map[string]DependencyEntry

	// Extra holds unknown top-level keys so that a parse-serialize
	// round trip never drops user annotations.
	Extra map[string]interface{}
}

// DependencyEntry declares a single dependency of a manifest.
type DependencyEntry struct {
	// Version is the declared target version. Required. The resolver
	// maps it to a git ref.
	Version string

	// Git is the remote URL (HTTPS or SSH). Required.
	Git string

	// Path is the subtree of the cloned repo that forms the bundle's
	// content. Empty means the repo root, or the remote manifest's Root
	// when the remote is itself an fpm bundle.
	Path string

	// Branch is the branch that push targets. Empty means the resolved
	// version ref when it names a branch, else DefaultBranch.
	Branch string

	// Extra holds unknown keys within the entry, preserved on
	// round trip.
	Extra map[string]interface{}
}

// IsSource reports whether the manifest declares a publishable artifact
// tree.
func (m *Manifest) IsSource() bool {
	return m.Root != ""
}

// PushBranch returns the entry's explicit Branch, or DefaultBranch when
// none is set. A Version that names a branch is not considered here.
func (e DependencyEntry) PushBranch() string {
	if e.Branch != "" {
		return e.Branch
	}
	return DefaultBranch
}

// New returns a manifest pre-populated with the current schema version.
func New(identifier string) *Manifest {
	return &Manifest{
		FpmVersion: SchemaVersion,
		Identifier: identifier,
		Bundles:    map[string]DependencyEntry{},
	}
}
