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

// Package status computes whether each installed bundle matches its
// declared source at the declared version. The computation is read-only:
// remotes are queried for refs but nothing is written, locally or
// remotely.
package status

import (
	"context"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/xlab/treeprint"

	"github.com/fpmdev/fpm/internal/errors"
	"github.com/fpmdev/fpm/internal/gitutil"
	"github.com/fpmdev/fpm/internal/manifest"
	"github.com/fpmdev/fpm/internal/marker"
	"github.com/fpmdev/fpm/internal/printer"
	"github.com/fpmdev/fpm/internal/resolver"
	"github.com/fpmdev/fpm/internal/types"
)

// Command computes the status of every bundle in the installed graph.
type Command struct {
	// ManifestPath is the path to the root bundle.toml.
	ManifestPath string

	// Gateway performs all git operations.
	Gateway gitutil.Gateway

	// Offline disables remote ref queries. Status then compares against
	// the refs cached in the sync markers; a bundle whose remote state
	// cannot be confirmed reports unsynced rather than an error.
	Offline bool

	// Tree renders the report as a dependency tree instead of a table.
	Tree bool
}

// Entry is one line of the status report.
type Entry struct {
	Bundle types.DisplayPath
	Dir    string
	Status resolver.Status
	Dirty  bool
	Detail string
}

// Report is the outcome of one status invocation. Status is informational
// and always succeeds once the root manifest has been read.
type Report struct {
	Entries []Entry
}

// Counts returns the number of synced, unsynced and source entries.
func (r *Report) Counts() (synced, unsynced, source int) {
	for _, e := range r.Entries {
		switch e.Status {
		case resolver.StatusSynced:
			synced++
		case resolver.StatusUnsynced:
			unsynced++
		case resolver.StatusSource:
			source++
		}
	}
	return synced, unsynced, source
}

// Run computes and renders the report.
func (c Command) Run(ctx context.Context) (*Report, error) {
	const op errors.Op = "status.Run"
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

	report := &Report{}
	graph := resolver.BuildGraph(rootDir, m)
	res := resolver.New(c.Gateway)

	if m.IsSource() {
		graph.Status = resolver.StatusSource
		graph.Dirty = c.workingTreeDirty(ctx, rootDir)
		report.Entries = append(report.Entries, Entry{
			Bundle: graph.DisplayPath(),
			Dir:    rootDir,
			Status: graph.Status,
			Dirty:  graph.Dirty,
		})
	}

	c.collect(ctx, graph, res, report)

	if c.Tree {
		renderTree(pr, graph, m.IsSource())
	} else {
		renderTable(pr, report)
	}
	synced, unsynced, source := report.Counts()
	pr.Printf("\nTotal: %d synced, %d unsynced, %d source\n", synced, unsynced, source)
	return report, nil
}

// collect walks the graph pre-order and computes each node's status.
func (c Command) collect(ctx context.Context, parent *resolver.BundleNode, res *resolver.Resolver, report *Report) {
	for _, node := range parent.Children {
		c.statusOf(ctx, node, res)
		report.Entries = append(report.Entries, Entry{
			Bundle: node.DisplayPath(),
			Dir:    node.InstallDir,
			Status: node.Status,
			Dirty:  node.Dirty,
			Detail: node.Detail,
		})
		c.collect(ctx, node, res, report)
	}
}

func (c Command) statusOf(ctx context.Context, node *resolver.BundleNode, res *resolver.Resolver) {
	if node.Err != nil {
		node.Status = resolver.StatusUnsynced
		node.Detail = "manifest error"
		return
	}

	// A node whose installed manifest declares an artifact root is a
	// source bundle; its working tree dirtiness is what matters, not a
	// marker comparison.
	if node.IsSource() {
		node.Status = resolver.StatusSource
		node.Dirty = c.workingTreeDirty(ctx, node.InstallDir)
		return
	}

	mk := marker.Read(node.InstallDir)
	if mk == nil {
		node.Status = resolver.StatusUnsynced
		node.Detail = "not installed"
		return
	}

	if c.Offline {
		node.Status = c.cachedStatus(node, mk)
		return
	}

	resolution, err := res.ResolveEntry(ctx, node.Entry)
	if err != nil {
		// An unreachable remote is reported as unsynced, never as an
		// operation error.
		node.Status = resolver.StatusUnsynced
		node.Err = err
		node.Detail = "remote unreachable"
		return
	}
	node.Resolution = resolution
	if mk.Commit == resolution.SHA && mk.Repo == resolution.RepoKey {
		node.Status = resolver.StatusSynced
	} else {
		node.Status = resolver.StatusUnsynced
	}
}

// cachedStatus decides sync state from the marker alone: same repo, same
// subtree, and a ref the declared version maps to. A moved branch cannot
// be detected offline; that is the documented trade-off of --offline.
func (c Command) cachedStatus(node *resolver.BundleNode, mk *marker.Marker) resolver.Status {
	if mk.Repo != gitutil.NormalizeURL(node.Entry.Git) || mk.Path != node.Entry.Path {
		return resolver.StatusUnsynced
	}
	for _, ref := range resolver.CandidateRefs(node.Entry.Version) {
		if mk.Ref == ref {
			return resolver.StatusSynced
		}
	}
	return resolver.StatusUnsynced
}

// workingTreeDirty reports local modifications for source bundles. A
// directory that is not a git working tree is never dirty.
func (c Command) workingTreeDirty(ctx context.Context, dir string) bool {
	dirty, err := c.Gateway.IsDirty(ctx, dir)
	if err != nil {
		return false
	}
	return dirty
}

func renderTable(pr printer.Printer, report *Report) {
	tw := table.NewWriter()
	tw.SetOutputMirror(pr.OutStream())
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"BUNDLE", "STATUS", "PATH"})
	for _, e := range report.Entries {
		tw.AppendRow(table.Row{string(e.Bundle), statusCell(e), e.Dir})
	}
	tw.Render()
}

func statusCell(e Entry) string {
	s := e.Status.String()
	if e.Status == resolver.StatusSource && e.Dirty {
		s += " dirty"
	}
	if e.Detail != "" {
		s += " (" + e.Detail + ")"
	}
	return s
}

func renderTree(pr printer.Printer, graph *resolver.BundleNode, rootIsSource bool) {
	root := treeprint.New()
	if rootIsSource {
		root.SetValue(". [" + statusCell(Entry{Status: graph.Status, Dirty: graph.Dirty}) + "]")
	} else {
		root.SetValue(".")
	}
	addChildren(root, graph)
	pr.Printf("%s", root.String())
}

func addChildren(branch treeprint.Tree, node *resolver.BundleNode) {
	for _, child := range node.Children {
		label := child.Alias + " [" + statusCell(Entry{
			Status: child.Status,
			Dirty:  child.Dirty,
			Detail: child.Detail,
		}) + "]"
		sub := branch.AddBranch(label)
		addChildren(sub, child)
	}
}
