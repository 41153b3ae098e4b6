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

package resolver

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fpmdev/fpm/internal/errors"
	"github.com/fpmdev/fpm/internal/gitutil"
	"github.com/fpmdev/fpm/internal/manifest"
	"github.com/fpmdev/fpm/internal/marker"
	"github.com/fpmdev/fpm/internal/types"
	"github.com/fpmdev/fpm/internal/util/stack"
)

// Action describes what the orchestrator should do for a plan step.
type Action int

const (
	// ActionInstall means the bundle must be fetched: there is no
	// installation yet, or the recorded commit differs from the resolved
	// one.
	ActionInstall Action = iota

	// ActionVerify means the installation already matches the resolved
	// commit; only the marker was read.
	ActionVerify

	// ActionRecurse means the installed bundle carries its own manifest
	// which must be expanded.
	ActionRecurse
)

func (a Action) String() string {
	switch a {
	case ActionInstall:
		return "install"
	case ActionVerify:
		return "verify"
	case ActionRecurse:
		return "recurse"
	}
	return "unknown"
}

// PlanStep pairs a node with the action the orchestrator should take.
type PlanStep struct {
	Node   *BundleNode
	Action Action
}

// Resolver maps declared versions to refs and plans installations.
// Advertised refs are memoized per normalized remote URL for the lifetime
// of the resolver, i.e. one operation.
type Resolver struct {
	gateway gitutil.Gateway

	refs map[string]gitutil.RemoteRefs
}

// New returns a Resolver that performs all repository access through gw.
func New(gw gitutil.Gateway) *Resolver {
	return &Resolver{
		gateway: gw,
		refs:    map[string]gitutil.RemoteRefs{},
	}
}

// RemoteRefs returns the advertised refs for url, querying the remote at
// most once per normalized URL.
func (r *Resolver) RemoteRefs(ctx context.Context, url string) (gitutil.RemoteRefs, error) {
	key := gitutil.NormalizeURL(url)
	if refs, found := r.refs[key]; found {
		return refs, nil
	}
	refs, err := r.gateway.RemoteRefs(ctx, url)
	if err != nil {
		return gitutil.RemoteRefs{}, err
	}
	r.refs[key] = refs
	return refs, nil
}

// ResolveEntry maps a dependency entry's declared version onto its remote.
func (r *Resolver) ResolveEntry(ctx context.Context, entry manifest.DependencyEntry) (*Resolution, error) {
	const op errors.Op = "resolver.ResolveEntry"
	repoKey := gitutil.NormalizeURL(entry.Git)

	refs, err := r.RemoteRefs(ctx, entry.Git)
	if err != nil {
		return nil, errors.E(op, errors.Repo(entry.Git), err)
	}
	ref, sha, err := resolveAgainstRefs(refs, repoKey, entry.Version)
	if err != nil {
		return nil, errors.E(op, errors.Resolve, errors.Repo(entry.Git), err)
	}
	return &Resolution{Ref: ref, SHA: sha, RepoKey: repoKey}, nil
}

// PlanManifest produces the plan steps for the direct dependencies of the
// manifest at dir, in declaration order. Nodes that fail to resolve, point
// outside their repository, or close a cycle carry the error in Node.Err
// with Action left at ActionInstall; planning continues so one pass
// surfaces as many problems as possible.
func (r *Resolver) PlanManifest(ctx context.Context, dir string, m *manifest.Manifest, parent *BundleNode) []PlanStep {
	var steps []PlanStep
	for _, alias := range SortedAliases(m) {
		entry := m.Bundles[alias]
		node := &BundleNode{
			Alias:      alias,
			Parent:     parent,
			Entry:      entry,
			InstallDir: InstallDirFor(dir, alias),
		}

		if err := ValidateSubPath(entry.Path); err != nil {
			node.Err = errors.E(errors.Op("resolver.PlanManifest"), errors.Resolve,
				types.UniquePath(node.InstallDir), err)
			steps = append(steps, PlanStep{Node: node, Action: ActionInstall})
			continue
		}

		res, err := r.ResolveEntry(ctx, entry)
		if err != nil {
			node.Err = err
			steps = append(steps, PlanStep{Node: node, Action: ActionInstall})
			continue
		}
		node.Resolution = res

		if err := checkCycle(node); err != nil {
			node.Err = err
			steps = append(steps, PlanStep{Node: node, Action: ActionInstall})
			continue
		}

		action := ActionInstall
		if mk := marker.Read(node.InstallDir); mk != nil &&
			mk.Commit == res.SHA && mk.Repo == res.RepoKey && mk.Path == entry.Path {
			action = ActionVerify
		}
		steps = append(steps, PlanStep{Node: node, Action: action})
	}
	return steps
}

// BuildGraph constructs the installed-bundle graph rooted at the manifest
// in rootDir without touching the network. Children are discovered through
// the manifests on disk; a nested manifest that fails to parse marks that
// node failed and the subtree is not expanded, while siblings continue.
func BuildGraph(rootDir string, m *manifest.Manifest) *BundleNode {
	root := &BundleNode{
		Manifest:   m,
		InstallDir: rootDir,
	}

	s := stack.New[*BundleNode]()
	s.Push(root)
	for s.Len() > 0 {
		node := s.Pop()
		if node.Manifest == nil {
			continue
		}
		dir := node.InstallDir
		for _, alias := range SortedAliases(node.Manifest) {
			child := &BundleNode{
				Alias:      alias,
				Parent:     node,
				Entry:      node.Manifest.Bundles[alias],
				InstallDir: InstallDirFor(dir, alias),
			}
			node.Children = append(node.Children, child)

			manifestPath := filepath.Join(child.InstallDir, manifest.FileName)
			if _, err := os.Stat(manifestPath); err == nil {
				cm, err := manifest.Load(manifestPath)
				if err != nil {
					child.Err = err
				} else {
					child.Manifest = cm
					s.Push(child)
				}
			}
		}
	}
	return root
}

// PostOrder visits every node below root deepest-first: all of a node's
// descendants are visited before the node itself. The root node is not
// visited.
func PostOrder(root *BundleNode, visit func(*BundleNode)) {
	var walk func(n *BundleNode)
	walk = func(n *BundleNode) {
		for _, c := range n.Children {
			walk(c)
			visit(c)
		}
	}
	walk(root)
}
