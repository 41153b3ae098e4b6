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

// Package push propagates local edits in installed bundles back to their
// source repositories. The traversal is strictly post-order: no parent is
// committed before any of its descendants, so a parent commit always pins
// the final SHAs of its children.
package push

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fpmdev/fpm/internal/errors"
	"github.com/fpmdev/fpm/internal/gitutil"
	"github.com/fpmdev/fpm/internal/manifest"
	"github.com/fpmdev/fpm/internal/marker"
	"github.com/fpmdev/fpm/internal/printer"
	"github.com/fpmdev/fpm/internal/resolver"
	"github.com/fpmdev/fpm/internal/types"
	"github.com/fpmdev/fpm/internal/util/bundleutil"
)

// DefaultMessage is the commit message used when the caller supplies none.
const DefaultMessage = "Update from fpm push"

// BackingCloneDir is the directory inside an installation that holds the
// persistent clone of the bundle's source repository. Keeping the clone
// means a pass that fails between commit and push resumes from the
// committed state on the next invocation.
const BackingCloneDir = ".fpm-repo"

// Command pushes dirty bundles, deepest first.
type Command struct {
	// ManifestPath is the path to the root bundle.toml.
	ManifestPath string

	// Gateway performs all git operations.
	Gateway gitutil.Gateway

	// Bundle restricts the push to a single top-level alias. Its
	// descendants are still pushed first. Empty means all bundles.
	Bundle string

	// Message is the commit message. Empty means DefaultMessage.
	Message string
}

// Failure records a bundle that could not be pushed. Siblings continue.
type Failure struct {
	Bundle types.DisplayPath
	Err    error
}

// Summary is the outcome of one push invocation.
type Summary struct {
	Pushed  []types.DisplayPath
	Skipped []types.DisplayPath
	Failed  []Failure
}

// AnyFailed reports whether at least one bundle failed to push.
func (s *Summary) AnyFailed() bool {
	return len(s.Failed) > 0
}

// Run executes the push pass. At most one commit is produced per affected
// bundle, regardless of how many files changed.
func (c Command) Run(ctx context.Context) (*Summary, error) {
	const op errors.Op = "push.Run"
	pr := printer.FromContextOrDie(ctx)

	manifestPath, err := filepath.Abs(c.ManifestPath)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	rootDir := filepath.Dir(manifestPath)

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, errors.E(op, err)
	}

	graph := resolver.BuildGraph(rootDir, m)
	if c.Bundle != "" {
		var selected *resolver.BundleNode
		for _, child := range graph.Children {
			if child.Alias == c.Bundle {
				selected = child
				break
			}
		}
		if selected == nil {
			return nil, errors.E(op, errors.Usage, types.UniquePath(rootDir),
				fmt.Errorf("unknown bundle %q in manifest", c.Bundle))
		}
		graph = &resolver.BundleNode{Children: []*resolver.BundleNode{selected}}
	}

	message := c.Message
	if message == "" {
		message = DefaultMessage
	}

	summary := &Summary{}
	resolver.PostOrder(graph, func(node *resolver.BundleNode) {
		display := node.DisplayPath()
		outcome, err := c.pushNode(ctx, node, message)
		switch {
		case err != nil:
			pr.Printf("failed %s: %v\n", display, err)
			summary.Failed = append(summary.Failed, Failure{Bundle: display, Err: err})
		case outcome == pushed:
			pr.Printf("pushed %s\n", display)
			summary.Pushed = append(summary.Pushed, display)
		default:
			pr.Printf("skipping %s (%s)\n", display, outcome)
			summary.Skipped = append(summary.Skipped, display)
		}
	})

	pr.Printf("\nPushed %d bundle(s), %d skipped, %d failed.\n",
		len(summary.Pushed), len(summary.Skipped), len(summary.Failed))
	return summary, nil
}

type outcome string

const (
	pushed       outcome = "pushed"
	noChanges    outcome = "no changes"
	notInstalled outcome = "not installed"
)

// pushNode moves one bundle through clean -> dirty -> staged -> committed
// -> pushed. A pass that failed after committing resumes here: the backing
// clone's HEAD is ahead of the remote branch while the working tree is
// clean, so only the push is replayed.
func (c Command) pushNode(ctx context.Context, node *resolver.BundleNode, message string) (outcome, error) {
	const op errors.Op = "push.pushNode"
	path := types.UniquePath(node.InstallDir)

	if node.Err != nil {
		return "", errors.E(op, path, node.Err)
	}
	mk := marker.Read(node.InstallDir)
	if mk == nil {
		return notInstalled, nil
	}

	branch := pushBranch(node.Entry, mk)
	backing := filepath.Join(node.InstallDir, BackingCloneDir)
	if _, err := os.Stat(backing); os.IsNotExist(err) {
		if err := c.Gateway.Clone(ctx, node.Entry.Git, branch, backing); err != nil {
			return "", errors.E(op, errors.Git, path, err)
		}
	} else {
		if err := c.Gateway.Fetch(ctx, backing); err != nil {
			return "", errors.E(op, errors.Git, path, err)
		}
	}

	if err := bundleutil.SyncToClone(node.InstallDir, backing, node.Entry.Path); err != nil {
		return "", errors.E(op, path, err)
	}

	dirty, err := c.Gateway.IsDirty(ctx, backing)
	if err != nil {
		return "", errors.E(op, errors.Git, path, err)
	}
	if dirty {
		if err := c.Gateway.StageAll(ctx, backing); err != nil {
			return "", errors.E(op, errors.Git, path, err)
		}
		if err := c.Gateway.Commit(ctx, backing, message); err != nil {
			return "", errors.E(op, errors.Git, path, err)
		}
	}

	head, err := c.Gateway.Head(ctx, backing)
	if err != nil {
		return "", errors.E(op, errors.Git, path, err)
	}
	remote, err := c.Gateway.ResolveRef(ctx, backing, "origin/"+branch)
	if err != nil {
		// Without the remote-tracking ref we cannot prove the branch is
		// current; attempt the push and let the remote decide.
		remote = ""
	}
	if head == remote {
		return noChanges, nil
	}

	if err := c.Gateway.Push(ctx, backing, "origin", branch); err != nil {
		return "", errors.E(op, errors.Git, path, err)
	}

	// Propagate the new SHA upward: rewriting this marker makes the
	// parent's next sync dirty, so the parent commits after its children.
	if err := marker.Write(node.InstallDir, &marker.Marker{
		Repo:   mk.Repo,
		Ref:    branch,
		Commit: head,
		Path:   node.Entry.Path,
	}); err != nil {
		return "", errors.E(op, path, err)
	}
	return pushed, nil
}

// pushBranch picks the branch a bundle's changes are pushed to: the
// explicit branch from the dependency entry when present, the declared
// version when it names a branch, else the default branch.
func pushBranch(entry manifest.DependencyEntry, mk *marker.Marker) string {
	if entry.Branch != "" {
		return entry.Branch
	}
	refs := resolver.CandidateRefs(entry.Version)
	if len(refs) == 1 && !resolver.IsCommitSHA(entry.Version) && entry.Version == mk.Ref {
		return entry.Version
	}
	return manifest.DefaultBranch
}
