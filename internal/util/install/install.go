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

// Package install fetches the bundle dependency graph declared by a
// manifest and places the extracted subtrees into the .fpm workspace.
package install

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
	"github.com/fpmdev/fpm/internal/util/stack"
)

// Command installs the dependency graph of the manifest at ManifestPath.
type Command struct {
	// ManifestPath is the path to the root bundle.toml.
	ManifestPath string

	// Gateway performs all git operations.
	Gateway gitutil.Gateway
}

// Failure records a bundle whose installation failed. Failures on one
// branch never abort sibling branches.
type Failure struct {
	Bundle types.DisplayPath
	Err    error
}

// Summary is the outcome of one install invocation.
type Summary struct {
	Installed []types.DisplayPath
	UpToDate  []types.DisplayPath
	Failed    []Failure
}

// AnyFailed reports whether at least one bundle failed to install.
func (s *Summary) AnyFailed() bool {
	return len(s.Failed) > 0
}

// frame tracks the remaining plan steps of one manifest during the
// depth-first traversal.
type frame struct {
	steps []resolver.PlanStep
	idx   int
}

// Run executes the install. A broken root manifest is fatal; everything
// below it degrades per branch. Running install twice with no remote
// changes performs no writes on the second run.
func (c Command) Run(ctx context.Context) (*Summary, error) {
	const op errors.Op = "install.Run"
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
	warning, err := manifest.CheckCompatibility(m.FpmVersion)
	if err != nil {
		return nil, errors.E(op, types.UniquePath(rootDir), err)
	}
	if warning != "" {
		pr.OptPrintf(printer.NewOpt().Stderr(), "%s\n", warning)
	}

	// Keep installed bundle content out of the workspace's own commits
	// while letting the sync markers through.
	if len(m.Bundles) > 0 {
		if err := bundleutil.EnsureBundleDirIgnored(rootDir); err != nil {
			return nil, errors.E(op, err)
		}
	}

	res := resolver.New(c.Gateway)
	summary := &Summary{}

	s := stack.New[*frame]()
	s.Push(&frame{steps: res.PlanManifest(ctx, rootDir, m, nil)})

	for s.Len() > 0 {
		f := s.Pop()
		if f.idx >= len(f.steps) {
			continue
		}
		step := f.steps[f.idx]
		f.idx++
		s.Push(f)

		node := step.Node
		display := node.DisplayPath()

		if node.Err != nil {
			pr.Printf("failed %s: %v\n", display, node.Err)
			summary.Failed = append(summary.Failed, Failure{Bundle: display, Err: node.Err})
			continue
		}

		switch step.Action {
		case resolver.ActionInstall:
			pr.Printf("fetching %s@%s\n", display, node.Entry.Version)
			if err := c.installNode(ctx, node); err != nil {
				pr.Printf("failed %s: %v\n", display, err)
				summary.Failed = append(summary.Failed, Failure{Bundle: display, Err: err})
				continue
			}
			summary.Installed = append(summary.Installed, display)
		case resolver.ActionVerify:
			pr.Printf("%s is up to date\n", display)
			summary.UpToDate = append(summary.UpToDate, display)
		}

		// Expand the installed bundle's own manifest before moving on to
		// the next sibling, so each subtree is fully installed first.
		if childFrame, err := c.recurseInto(ctx, node, res); err != nil {
			pr.Printf("failed %s: %v\n", display, err)
			summary.Failed = append(summary.Failed, Failure{Bundle: display, Err: err})
		} else if childFrame != nil {
			s.Push(childFrame)
		}
	}

	pr.Printf("\nInstalled %d bundle(s), %d up to date, %d failed.\n",
		len(summary.Installed), len(summary.UpToDate), len(summary.Failed))
	return summary, nil
}

// installNode performs the fresh fetch for one bundle: clone at the
// resolved ref into a temp directory, extract the subtree into the
// installation directory, and record the sync marker.
func (c Command) installNode(ctx context.Context, node *resolver.BundleNode) error {
	const op errors.Op = "install.installNode"
	path := types.UniquePath(node.InstallDir)

	tmp, err := os.MkdirTemp("", "fpm-get-")
	if err != nil {
		return errors.E(op, errors.Internal,
			fmt.Errorf("error creating temp directory: %w", err))
	}
	defer os.RemoveAll(tmp)

	res := node.Resolution
	if err := c.Gateway.Clone(ctx, node.Entry.Git, res.Ref, tmp); err != nil {
		return errors.E(op, errors.Git, path, err)
	}

	src := tmp
	sub := node.Entry.Path
	if sub == "" {
		// When the remote is itself an fpm bundle, its manifest's root
		// names the artifact tree to extract.
		if manifest.Exists(tmp) {
			if rm, err := manifest.Load(filepath.Join(tmp, manifest.FileName)); err == nil && rm.Root != "" {
				sub = rm.Root
			}
		}
	}
	if sub != "" {
		src = filepath.Join(tmp, filepath.FromSlash(sub))
		if _, err := os.Stat(src); err != nil {
			return errors.E(op, errors.Resolve, path,
				fmt.Errorf("path %q does not exist in repo %q", sub, node.Entry.Git))
		}
	}

	if err := bundleutil.EnsureInstallDir(node.InstallDir); err != nil {
		return errors.E(op, err)
	}
	if err := bundleutil.ClearInstalled(node.InstallDir); err != nil {
		return errors.E(op, err)
	}
	if err := bundleutil.CopySubtree(src, node.InstallDir); err != nil {
		return errors.E(op, err)
	}

	return marker.Write(node.InstallDir, &marker.Marker{
		Repo:   res.RepoKey,
		Ref:    res.Ref,
		Commit: res.SHA,
		Path:   node.Entry.Path,
	})
}

// recurseInto loads the installed bundle's own manifest and plans its
// dependencies. A manifest parse error fails only this subtree.
func (c Command) recurseInto(ctx context.Context, node *resolver.BundleNode, res *resolver.Resolver) (*frame, error) {
	const op errors.Op = "install.recurseInto"

	if !manifest.Exists(node.InstallDir) {
		return nil, nil
	}
	m, err := manifest.Load(filepath.Join(node.InstallDir, manifest.FileName))
	if err != nil {
		return nil, errors.E(op, err)
	}
	if _, err := manifest.CheckCompatibility(m.FpmVersion); err != nil {
		return nil, errors.E(op, types.UniquePath(node.InstallDir), err)
	}
	node.Manifest = m
	if len(m.Bundles) == 0 {
		return nil, nil
	}
	return &frame{steps: res.PlanManifest(ctx, node.InstallDir, m, node)}, nil
}
