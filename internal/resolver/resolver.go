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

// Package resolver walks manifest dependency graphs, maps declared
// versions to git refs, and computes the planned filesystem layout. All
// repository access flows through the gitutil.Gateway; advertised refs are
// memoized per remote so a repository referenced from several manifests is
// queried once per operation.
package resolver

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fpmdev/fpm/internal/errors"
	"github.com/fpmdev/fpm/internal/manifest"
	"github.com/fpmdev/fpm/internal/types"
)

// Status is the sync state of a bundle as reported by status.
type Status int

const (
	StatusUnknown Status = iota
	StatusSynced
	StatusUnsynced
	StatusSource
)

func (s Status) String() string {
	switch s {
	case StatusSynced:
		return "synced"
	case StatusUnsynced:
		return "unsynced"
	case StatusSource:
		return "source"
	}
	return "unknown"
}

// Resolution is the outcome of mapping a declared version onto a remote.
type Resolution struct {
	// Ref is the git ref the version resolved to.
	Ref string

	// SHA is the commit the ref pointed at when resolved.
	SHA string

	// RepoKey is the normalized remote URL, used for cycle detection and
	// marker comparison.
	RepoKey string
}

// BundleNode is the resolver's in-memory representation of one bundle in
// the graph. A node lives for the duration of a single operation.
type BundleNode struct {
	// Alias is the key the bundle appears under in its parent manifest.
	// Empty for the root node.
	Alias string

	// Parent is the node whose manifest declared this bundle. Nil for
	// the root.
	Parent *BundleNode

	// Entry is the dependency declaration. Zero for the root.
	Entry manifest.DependencyEntry

	// Manifest is the bundle's own manifest, when one is installed.
	Manifest *manifest.Manifest

	// InstallDir is <parent-manifest-dir>/.fpm/<alias>.
	InstallDir string

	// Resolution is set once the declared version has been mapped to a
	// ref; nil while unresolved or when resolution failed.
	Resolution *Resolution

	// Status is filled in by the status computation.
	Status Status

	// Dirty is set on source nodes whose artifact tree has local edits.
	Dirty bool

	// Err records a per-node failure (resolve error, manifest parse
	// error in the installed copy). Traversal continues past failed
	// nodes so an operation can surface as many errors as possible.
	Err error

	// Detail is a short human label qualifying the status, e.g.
	// "not installed" or "remote unreachable".
	Detail string

	// Children are the bundles declared by this node's manifest, in
	// alias order.
	Children []*BundleNode
}

// DisplayPath returns the alias chain from the root, e.g.
// "ui-components/base-styles". The root node renders as ".".
func (n *BundleNode) DisplayPath() types.DisplayPath {
	var parts []string
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Alias != "" {
			parts = append(parts, cur.Alias)
		}
	}
	if len(parts) == 0 {
		return "."
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return types.DisplayPath(strings.Join(parts, "/"))
}

// IsSource reports whether the node's manifest declares an artifact root.
func (n *BundleNode) IsSource() bool {
	return n.Manifest != nil && n.Manifest.IsSource()
}

// visitKey identifies a physical bundle source for cycle detection.
type visitKey struct {
	repo string
	sha  string
	path string
}

func (n *BundleNode) key() (visitKey, bool) {
	if n.Resolution == nil {
		return visitKey{}, false
	}
	return visitKey{
		repo: n.Resolution.RepoKey,
		sha:  n.Resolution.SHA,
		path: n.Entry.Path,
	}, true
}

// CycleError reports a (repo, sha, path) triple appearing twice on one
// root-to-node path. The same triple on sibling paths is a separate
// physical installation and is allowed.
type CycleError struct {
	// Via is the alias chain from the first occurrence down to the
	// repeated one.
	Via []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle via %s", strings.Join(e.Via, " -> "))
}

// checkCycle walks the ancestor chain of node looking for the same visit
// key. node must already carry its Resolution.
func checkCycle(node *BundleNode) error {
	key, ok := node.key()
	if !ok {
		return nil
	}
	for anc := node.Parent; anc != nil; anc = anc.Parent {
		ancKey, ok := anc.key()
		if !ok {
			continue
		}
		if ancKey == key {
			var via []string
			for cur := node; cur != nil && cur != anc.Parent; cur = cur.Parent {
				if cur.Alias != "" {
					via = append(via, cur.Alias)
				}
			}
			for i, j := 0, len(via)-1; i < j; i, j = i+1, j-1 {
				via[i], via[j] = via[j], via[i]
			}
			return errors.E(errors.Op("resolver.checkCycle"), errors.Cycle,
				types.UniquePath(node.InstallDir), &CycleError{Via: via})
		}
	}
	return nil
}

// SortedAliases returns the manifest's aliases in their canonical
// (declaration) order. The codec serializes bundle tables alphabetically,
// so alphabetical order is declaration order for canonical manifests.
func SortedAliases(m *manifest.Manifest) []string {
	aliases := make([]string, 0, len(m.Bundles))
	for alias := range m.Bundles {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// InstallDirFor returns the installation directory for alias under the
// manifest directory dir.
func InstallDirFor(dir, alias string) string {
	return filepath.Join(dir, manifest.BundleDir, alias)
}
