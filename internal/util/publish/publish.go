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

// Package publish pushes the artifact tree of a source bundle to its
// remote. Publishing is author-side: it applies only when the root
// manifest itself declares an artifact root.
package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fpmdev/fpm/internal/errors"
	"github.com/fpmdev/fpm/internal/gitutil"
	"github.com/fpmdev/fpm/internal/manifest"
	"github.com/fpmdev/fpm/internal/printer"
	"github.com/fpmdev/fpm/internal/types"
)

// NotASourceError reports a publish attempt on a manifest with no root.
type NotASourceError struct {
	Dir string
}

func (e *NotASourceError) Error() string {
	return fmt.Sprintf("manifest in %s declares no root; nothing to publish", e.Dir)
}

// Command publishes the source bundle declared by the manifest at
// ManifestPath.
type Command struct {
	// ManifestPath is the path to the bundle.toml of the source bundle.
	ManifestPath string

	// Gateway performs all git operations.
	Gateway gitutil.Gateway
}

// Result is the outcome of one publish invocation.
type Result struct {
	// Published is false when the working tree had no changes.
	Published bool

	// Version is the version stamped into the commit message.
	Version string

	// Commit is the SHA of the published commit.
	Commit string
}

// Run stages the manifest's working tree, commits with a message derived
// from the manifest version, and pushes to the configured remote. A
// manifest without root fails before any git call is made.
func (c Command) Run(ctx context.Context) (*Result, error) {
	const op errors.Op = "publish.Run"
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
	if !m.IsSource() {
		return nil, errors.E(op, errors.Usage, types.UniquePath(rootDir),
			&NotASourceError{Dir: rootDir})
	}

	artifactDir := filepath.Join(rootDir, filepath.FromSlash(m.Root))
	if _, err := os.Stat(artifactDir); err != nil {
		return nil, errors.E(op, errors.IO, types.UniquePath(rootDir),
			fmt.Errorf("artifact root %q does not exist", m.Root))
	}

	if _, err := c.Gateway.RemoteURL(ctx, rootDir); err != nil {
		return nil, errors.E(op, errors.Git, types.UniquePath(rootDir),
			fmt.Errorf("no remote configured for publishing: %w", err))
	}

	version := m.Version
	if version == "" {
		version = m.FpmVersion
	}

	dirty, err := c.Gateway.IsDirty(ctx, rootDir)
	if err != nil {
		return nil, errors.E(op, errors.Git, types.UniquePath(rootDir), err)
	}
	if !dirty {
		pr.Printf("no changes to publish\n")
		return &Result{Published: false, Version: version}, nil
	}

	if err := c.Gateway.StageAll(ctx, rootDir); err != nil {
		return nil, errors.E(op, errors.Git, types.UniquePath(rootDir), err)
	}
	if err := c.Gateway.Commit(ctx, rootDir, "fpm publish v"+version); err != nil {
		return nil, errors.E(op, errors.Git, types.UniquePath(rootDir), err)
	}
	if err := c.Gateway.Push(ctx, rootDir, "origin", manifest.DefaultBranch); err != nil {
		return nil, errors.E(op, errors.Git, types.UniquePath(rootDir), err)
	}

	sha, err := c.Gateway.Head(ctx, rootDir)
	if err != nil {
		return nil, errors.E(op, errors.Git, types.UniquePath(rootDir), err)
	}

	pr.Printf("published v%s (%s)\n", version, sha)
	return &Result{Published: true, Version: version, Commit: sha}, nil
}
