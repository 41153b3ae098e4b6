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

// Package testutil provides an in-memory gitutil.Gateway and workspace
// helpers for testing the fpm engine without a git binary or network.
package testutil

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fpmdev/fpm/internal/gitutil"
)

// FakeRepo is an in-memory remote repository served by a FakeGateway.
type FakeRepo struct {
	// Heads and Tags map ref names to SHAs.
	Heads map[string]string
	Tags  map[string]string

	// Trees maps a SHA to the file tree at that commit, keyed by
	// slash-separated relative path.
	Trees map[string]map[string]string

	// Unreachable simulates a network failure for every operation that
	// touches this repo.
	Unreachable bool

	// RejectPush makes pushes fail as non-fast-forward.
	RejectPush bool

	// CommitMessages records the messages of commits pushed to this
	// repo, in push order.
	CommitMessages []string
}

// Commit registers a tree under sha.
func (r *FakeRepo) Commit(sha string, files map[string]string) *FakeRepo {
	r.Trees[sha] = files
	return r
}

// Tag points tag name at sha.
func (r *FakeRepo) Tag(name, sha string) *FakeRepo {
	r.Tags[name] = sha
	return r
}

// Branch points branch name at sha.
func (r *FakeRepo) Branch(name, sha string) *FakeRepo {
	r.Heads[name] = sha
	return r
}

// cloneState tracks a local clone created through the fake gateway.
type cloneState struct {
	url     string
	repoKey string
	head    string
	staged  map[string]string
	// commits made locally but not yet pushed, newest last
	unpushed []localCommit
}

type localCommit struct {
	sha     string
	message string
	tree    map[string]string
}

// FakeGateway implements gitutil.Gateway against in-memory repositories,
// recording every operation for assertions.
type FakeGateway struct {
	mu sync.Mutex

	// Repos maps normalized URLs to their fake repositories.
	Repos map[string]*FakeRepo

	// Ops is the ordered log of gateway operations, e.g.
	// "clone github.com/martha/designs@v1.0.0".
	Ops []string

	clones map[string]*cloneState
	shaSeq int
}

var _ gitutil.Gateway = (*FakeGateway)(nil)

// NewFakeGateway returns an empty fake gateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		Repos:  map[string]*FakeRepo{},
		clones: map[string]*cloneState{},
	}
}

// AddRepo registers a repository under url and returns it for seeding.
func (g *FakeGateway) AddRepo(url string) *FakeRepo {
	r := &FakeRepo{
		Heads: map[string]string{},
		Tags:  map[string]string{},
		Trees: map[string]map[string]string{},
	}
	g.Repos[gitutil.NormalizeURL(url)] = r
	return r
}

// OpCount returns how many logged operations have the given prefix.
func (g *FakeGateway) OpCount(prefix string) int {
	n := 0
	for _, op := range g.Ops {
		if strings.HasPrefix(op, prefix) {
			n++
		}
	}
	return n
}

func (g *FakeGateway) log(format string, args ...interface{}) {
	g.Ops = append(g.Ops, fmt.Sprintf(format, args...))
}

func (g *FakeGateway) repoFor(url string) (*FakeRepo, string, error) {
	key := gitutil.NormalizeURL(url)
	repo, found := g.Repos[key]
	if !found {
		return nil, key, &gitutil.GitExecError{
			Type:   gitutil.RepositoryNotFound,
			Err:    fmt.Errorf("exit status 128"),
			Repo:   url,
			StdErr: fmt.Sprintf("fatal: repository '%s' not found", url),
		}
	}
	if repo.Unreachable {
		return nil, key, &gitutil.GitExecError{
			Type:   gitutil.RepositoryUnavailable,
			Err:    fmt.Errorf("exit status 128"),
			Repo:   url,
			StdErr: "fatal: Could not resolve host",
		}
	}
	return repo, key, nil
}

func (r *FakeRepo) resolve(ref string) (string, bool) {
	if sha, found := r.Tags[ref]; found {
		return sha, true
	}
	if sha, found := r.Heads[ref]; found {
		return sha, true
	}
	if _, found := r.Trees[ref]; found {
		return ref, true
	}
	return "", false
}

func (g *FakeGateway) Clone(_ context.Context, url, ref, dir string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	repo, key, err := g.repoFor(url)
	if err != nil {
		return err
	}
	sha, found := repo.resolve(ref)
	if !found {
		return &gitutil.GitExecError{
			Type:   gitutil.UnknownReference,
			Err:    fmt.Errorf("exit status 128"),
			Repo:   url,
			Ref:    ref,
			StdErr: fmt.Sprintf("fatal: couldn't find remote ref %s", ref),
		}
	}
	if err := writeTree(dir, repo.Trees[sha]); err != nil {
		return err
	}
	g.clones[dir] = &cloneState{url: url, repoKey: key, head: sha}
	g.log("clone %s@%s", key, ref)
	return nil
}

func (g *FakeGateway) Fetch(_ context.Context, dir string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.stateFor(dir)
	if err != nil {
		return err
	}
	if _, _, err := g.repoFor(state.url); err != nil {
		return err
	}
	g.log("fetch %s", state.repoKey)
	return nil
}

func (g *FakeGateway) Checkout(_ context.Context, dir, ref string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.stateFor(dir)
	if err != nil {
		return err
	}
	repo, _, err := g.repoFor(state.url)
	if err != nil {
		return err
	}
	if dirty, err := g.isDirty(dir, state); err != nil {
		return err
	} else if dirty {
		return &gitutil.GitExecError{
			Type:   gitutil.WorkingTreeDirty,
			Err:    fmt.Errorf("exit status 1"),
			StdErr: "error: Your local changes to the following files would be overwritten by checkout",
		}
	}
	sha, found := repo.resolve(ref)
	if !found {
		return &gitutil.GitExecError{
			Type:   gitutil.UnknownReference,
			Err:    fmt.Errorf("exit status 128"),
			Ref:    ref,
			StdErr: fmt.Sprintf("fatal: unknown revision %s", ref),
		}
	}
	if err := replaceTree(dir, repo.Trees[sha]); err != nil {
		return err
	}
	state.head = sha
	g.log("checkout %s@%s", state.repoKey, ref)
	return nil
}

func (g *FakeGateway) Head(_ context.Context, dir string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.stateFor(dir)
	if err != nil {
		return "", err
	}
	return state.head, nil
}

func (g *FakeGateway) ResolveRef(_ context.Context, dir, ref string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.stateFor(dir)
	if err != nil {
		return "", err
	}
	repo, _, err := g.repoFor(state.url)
	if err != nil {
		return "", err
	}
	name := strings.TrimPrefix(ref, "origin/")
	if sha, found := repo.resolve(name); found {
		return sha, nil
	}
	return "", &gitutil.GitExecError{
		Type:   gitutil.UnknownReference,
		Err:    fmt.Errorf("exit status 128"),
		Ref:    ref,
		StdErr: fmt.Sprintf("fatal: ambiguous argument '%s': unknown revision or path not in the working tree.", ref),
	}
}

func (g *FakeGateway) RemoteRefs(_ context.Context, url string) (gitutil.RemoteRefs, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	repo, key, err := g.repoFor(url)
	if err != nil {
		return gitutil.RemoteRefs{}, err
	}
	refs := gitutil.RemoteRefs{
		Heads: map[string]string{},
		Tags:  map[string]string{},
	}
	for name, sha := range repo.Heads {
		refs.Heads[name] = sha
	}
	for name, sha := range repo.Tags {
		refs.Tags[name] = sha
	}
	g.log("ls-remote %s", key)
	return refs, nil
}

func (g *FakeGateway) IsDirty(_ context.Context, dir string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.stateFor(dir)
	if err != nil {
		return false, err
	}
	return g.isDirty(dir, state)
}

func (g *FakeGateway) isDirty(dir string, state *cloneState) (bool, error) {
	onDisk, err := snapshotDir(dir)
	if err != nil {
		return false, err
	}
	var headTree map[string]string
	if len(state.unpushed) > 0 {
		headTree = state.unpushed[len(state.unpushed)-1].tree
	} else {
		repo, _, err := g.repoFor(state.url)
		if err != nil {
			return false, err
		}
		headTree = repo.Trees[state.head]
	}
	return !treesEqual(onDisk, headTree), nil
}

func (g *FakeGateway) StageAll(_ context.Context, dir string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.stateFor(dir)
	if err != nil {
		return err
	}
	snapshot, err := snapshotDir(dir)
	if err != nil {
		return err
	}
	state.staged = snapshot
	g.log("stage %s", state.repoKey)
	return nil
}

func (g *FakeGateway) Commit(_ context.Context, dir, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.stateFor(dir)
	if err != nil {
		return err
	}
	if state.staged == nil {
		return &gitutil.GitExecError{
			Err:    fmt.Errorf("exit status 1"),
			StdErr: "nothing to commit, working tree clean",
		}
	}
	g.shaSeq++
	sha := fmt.Sprintf("fakesha%033d", g.shaSeq)
	state.unpushed = append(state.unpushed, localCommit{
		sha:     sha,
		message: message,
		tree:    state.staged,
	})
	state.head = sha
	state.staged = nil
	g.log("commit %s %q", state.repoKey, message)
	return nil
}

func (g *FakeGateway) Push(_ context.Context, dir, remote, ref string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.stateFor(dir)
	if err != nil {
		return err
	}
	repo, _, err := g.repoFor(state.url)
	if err != nil {
		return err
	}
	if repo.RejectPush {
		return &gitutil.GitExecError{
			Type:   gitutil.PushRejected,
			Err:    fmt.Errorf("exit status 1"),
			StdErr: "! [rejected]  main -> main (non-fast-forward)",
		}
	}
	branch := strings.TrimPrefix(ref, "refs/heads/")
	for _, c := range state.unpushed {
		repo.Trees[c.sha] = c.tree
		repo.CommitMessages = append(repo.CommitMessages, c.message)
	}
	repo.Heads[branch] = state.head
	state.unpushed = nil
	g.log("push %s %s %s", state.repoKey, remote, branch)
	return nil
}

func (g *FakeGateway) RemoteURL(_ context.Context, dir string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.stateFor(dir)
	if err != nil {
		return "", err
	}
	return state.repoKey, nil
}

func (g *FakeGateway) stateFor(dir string) (*cloneState, error) {
	if state, found := g.clones[dir]; found {
		return state, nil
	}
	return nil, &gitutil.GitExecError{
		Err:    fmt.Errorf("exit status 128"),
		StdErr: fmt.Sprintf("fatal: not a git repository: %s", dir),
	}
}

// writeTree materializes files under dir without clearing existing
// content.
func writeTree(dir string, files map[string]string) error {
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			return err
		}
	}
	return nil
}

// replaceTree makes dir contain exactly files.
func replaceTree(dir string, files map[string]string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return writeTree(dir, files)
}

// snapshotDir reads every regular file under dir into a slash-keyed map.
func snapshotDir(dir string) (map[string]string, error) {
	files := map[string]string{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func treesEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, found := b[k]; !found || bv != v {
			return false
		}
	}
	return true
}

// Keys returns the sorted file paths of a tree, for assertion messages.
func Keys(tree map[string]string) []string {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteManifest writes content as the bundle.toml of dir.
func WriteManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bundle.toml"), []byte(content), 0600))
}
