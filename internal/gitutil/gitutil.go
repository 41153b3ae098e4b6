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

// Package gitutil provides the capability surface over a git installation
// used by the fpm engine. All repository I/O flows through the Gateway
// interface; production code binds it to an out-of-process git invocation
// and tests substitute an in-memory implementation.
package gitutil

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/fpmdev/fpm/internal/errors"
)

// RemoteRefs holds the branch and tag refs advertised by a remote
// repository, each mapped to the commit SHA it references.
type RemoteRefs struct {
	Heads map[string]string
	Tags  map[string]string
}

// Resolve resolves a ref name (branch or tag) to a commit SHA. The second
// return value is false if the remote advertises no such ref.
func (r RemoteRefs) Resolve(ref string) (string, bool) {
	name := strings.TrimPrefix(ref, "refs/heads/")
	if commit, found := r.Heads[name]; found {
		return commit, true
	}
	name = strings.TrimPrefix(ref, "refs/tags/")
	if commit, found := r.Tags[name]; found {
		return commit, true
	}
	return "", false
}

// Gateway is the set of git capabilities the engine depends on. Every
// operation that can touch the network or the working tree is declared
// here so that the resolver and orchestrator stay pure with respect to
// git. URLs are passed to git verbatim; authentication is inherited from
// the ambient environment.
type Gateway interface {
	// Clone performs a shallow clone of url at ref into dir. The ref may
	// be a tag, branch, or commit-ish.
	Clone(ctx context.Context, url, ref, dir string) error

	// Fetch fetches all remote refs into an existing clone.
	Fetch(ctx context.Context, dir string) error

	// Checkout moves the working tree to ref. It fails if the working
	// tree is dirty.
	Checkout(ctx context.Context, dir, ref string) error

	// Head resolves HEAD to a commit SHA.
	Head(ctx context.Context, dir string) (string, error)

	// ResolveRef resolves a ref name to a SHA without checking out.
	ResolveRef(ctx context.Context, dir, ref string) (string, error)

	// RemoteRefs lists the refs advertised by the remote at url without
	// cloning it.
	RemoteRefs(ctx context.Context, url string) (RemoteRefs, error)

	// IsDirty reports whether the working tree has uncommitted changes
	// or untracked files under tracked paths.
	IsDirty(ctx context.Context, dir string) (bool, error)

	// StageAll stages every change in the working tree.
	StageAll(ctx context.Context, dir string) error

	// Commit records the staged changes with the given message.
	Commit(ctx context.Context, dir, message string) error

	// Push pushes ref to the named remote.
	Push(ctx context.Context, dir, remote, ref string) error

	// RemoteURL returns the normalized origin URL of the clone at dir.
	RemoteURL(ctx context.Context, dir string) (string, error)
}

// NewGitRunner returns a runner that executes git commands in dir.
func NewGitRunner(dir string) (*GitRunner, error) {
	const op errors.Op = "gitutil.NewGitRunner"
	p, err := exec.LookPath("git")
	if err != nil {
		return nil, errors.E(op, errors.Git,
			fmt.Errorf("no 'git' program on path: %w", err))
	}

	return &GitRunner{
		gitPath: p,
		Dir:     dir,
	}, nil
}

// GitRunner runs git commands in a local git repo.
type GitRunner struct {
	// Path to the git executable.
	gitPath string

	// Dir is the directory the commands are run in.
	Dir string
}

type RunResult struct {
	Stdout string
	Stderr string
}

// Run runs a git command. Omit the 'git' part of the command.
func (g *GitRunner) Run(ctx context.Context, args ...string) (RunResult, error) {
	return g.run(ctx, false, args...)
}

// RunVerbose runs a git command, mirroring its output to the process
// streams. Omit the 'git' part of the command.
func (g *GitRunner) RunVerbose(ctx context.Context, args ...string) (RunResult, error) {
	return g.run(ctx, true, args...)
}

func (g *GitRunner) run(ctx context.Context, verbose bool, args ...string) (RunResult, error) {
	const op errors.Op = "gitutil.run"

	cmd := exec.CommandContext(ctx, g.gitPath, args...)
	cmd.Dir = g.Dir
	cmd.Env = os.Environ()

	cmdStdout := &bytes.Buffer{}
	cmdStderr := &bytes.Buffer{}
	if verbose {
		cmd.Stdout = io.MultiWriter(cmdStdout, os.Stdout)
		cmd.Stderr = io.MultiWriter(cmdStderr, os.Stderr)
	} else {
		cmd.Stdout = cmdStdout
		cmd.Stderr = cmdStderr
	}

	err := cmd.Run()
	if err != nil {
		return RunResult{}, errors.E(op, errors.Git, &GitExecError{
			Type:   determineErrorType(cmdStderr.String()),
			Args:   args,
			Err:    err,
			StdOut: cmdStdout.String(),
			StdErr: cmdStderr.String(),
		})
	}
	return RunResult{
		Stdout: cmdStdout.String(),
		Stderr: cmdStderr.String(),
	}, nil
}

// Exec is the production Gateway bound to the system git binary.
type Exec struct{}

var _ Gateway = Exec{}

// NewExec returns an Exec gateway, verifying that a git binary is on the
// path.
func NewExec() (Exec, error) {
	const op errors.Op = "gitutil.NewExec"
	if _, err := exec.LookPath("git"); err != nil {
		return Exec{}, errors.E(op, errors.Git,
			fmt.Errorf("no 'git' program on path: %w", err))
	}
	return Exec{}, nil
}

func (Exec) runner(dir string) (*GitRunner, error) {
	return NewGitRunner(dir)
}

// Clone initializes dir, fetches ref from url and hard-resets the working
// tree to it. Using init+fetch instead of `git clone --branch` lets ref be
// a commit SHA as well as a branch or tag. A shallow fetch is attempted
// first; when the remote cannot serve the ref shallowly (e.g. an
// abbreviated SHA) a full fetch is used as fallback.
func (e Exec) Clone(ctx context.Context, url, ref, dir string) error {
	const op errors.Op = "gitutil.Clone"
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.E(op, errors.IO, err)
	}
	g, err := e.runner(dir)
	if err != nil {
		return errors.E(op, err)
	}
	if _, err := g.Run(ctx, "init"); err != nil {
		return errors.E(op, errors.Repo(url), err)
	}
	if _, err := g.Run(ctx, "remote", "add", "origin", url); err != nil {
		return errors.E(op, errors.Repo(url), err)
	}
	if _, err := g.Run(ctx, "fetch", "origin", "--depth=1", ref); err != nil {
		// The remote may refuse to serve the ref shallowly (abbreviated
		// SHAs in particular). Fetch everything and resolve the ref
		// locally instead.
		if _, retryErr := g.Run(ctx, "fetch", "origin"); retryErr != nil {
			AmendGitExecError(err, func(e *GitExecError) {
				e.Repo = url
				e.Ref = ref
			})
			return errors.E(op, errors.Repo(url), err)
		}
		if _, err := g.Run(ctx, "reset", "--hard", ref); err != nil {
			AmendGitExecError(err, func(e *GitExecError) {
				e.Repo = url
				e.Ref = ref
			})
			return errors.E(op, errors.Repo(url), err)
		}
		return nil
	}
	// FETCH_HEAD points at the ref the shallow fetch just retrieved.
	if _, err := g.Run(ctx, "reset", "--hard", "FETCH_HEAD"); err != nil {
		AmendGitExecError(err, func(e *GitExecError) {
			e.Repo = url
			e.Ref = ref
		})
		return errors.E(op, errors.Repo(url), err)
	}
	return nil
}

func (e Exec) Fetch(ctx context.Context, dir string) error {
	const op errors.Op = "gitutil.Fetch"
	g, err := e.runner(dir)
	if err != nil {
		return errors.E(op, err)
	}
	if _, err := g.Run(ctx, "fetch", "origin"); err != nil {
		return errors.E(op, err)
	}
	return nil
}

func (e Exec) Checkout(ctx context.Context, dir, ref string) error {
	const op errors.Op = "gitutil.Checkout"
	dirty, err := e.IsDirty(ctx, dir)
	if err != nil {
		return errors.E(op, err)
	}
	if dirty {
		return errors.E(op, errors.Git,
			fmt.Errorf("cannot checkout %q: working tree is dirty", ref))
	}
	g, err := e.runner(dir)
	if err != nil {
		return errors.E(op, err)
	}
	if _, err := g.Run(ctx, "checkout", ref); err != nil {
		return errors.E(op, err)
	}
	return nil
}

func (e Exec) Head(ctx context.Context, dir string) (string, error) {
	const op errors.Op = "gitutil.Head"
	g, err := e.runner(dir)
	if err != nil {
		return "", errors.E(op, err)
	}
	rr, err := g.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", errors.E(op, err)
	}
	return strings.TrimSpace(rr.Stdout), nil
}

func (e Exec) ResolveRef(ctx context.Context, dir, ref string) (string, error) {
	const op errors.Op = "gitutil.ResolveRef"
	g, err := e.runner(dir)
	if err != nil {
		return "", errors.E(op, err)
	}
	rr, err := g.Run(ctx, "rev-parse", "--verify", ref+"^{commit}")
	if err != nil {
		return "", errors.E(op, err)
	}
	return strings.TrimSpace(rr.Stdout), nil
}

var refLineRE = regexp.MustCompile(`^([a-f0-9]+)\s+refs/(heads|tags)/(.+)$`)

// RemoteRefs lists the refs advertised by the remote at url. Only refs are
// transferred, no objects.
func (e Exec) RemoteRefs(ctx context.Context, url string) (RemoteRefs, error) {
	const op errors.Op = "gitutil.RemoteRefs"
	g, err := e.runner("")
	if err != nil {
		return RemoteRefs{}, errors.E(op, err)
	}
	rr, err := g.Run(ctx, "ls-remote", "--heads", "--tags", "--refs", url)
	if err != nil {
		AmendGitExecError(err, func(e *GitExecError) {
			e.Repo = url
		})
		return RemoteRefs{}, errors.E(op, errors.Repo(url), err)
	}

	refs := RemoteRefs{
		Heads: make(map[string]string),
		Tags:  make(map[string]string),
	}
	scanner := bufio.NewScanner(bytes.NewBufferString(rr.Stdout))
	for scanner.Scan() {
		res := refLineRE.FindStringSubmatch(scanner.Text())
		if len(res) == 0 {
			continue
		}
		switch res[2] {
		case "heads":
			refs.Heads[res[3]] = res[1]
		case "tags":
			refs.Tags[res[3]] = res[1]
		}
	}
	if err := scanner.Err(); err != nil {
		return RemoteRefs{}, errors.E(op, errors.Repo(url), errors.Git,
			fmt.Errorf("error parsing response from git: %w", err))
	}
	return refs, nil
}

func (e Exec) IsDirty(ctx context.Context, dir string) (bool, error) {
	const op errors.Op = "gitutil.IsDirty"
	g, err := e.runner(dir)
	if err != nil {
		return false, errors.E(op, err)
	}
	rr, err := g.Run(ctx, "status", "--porcelain")
	if err != nil {
		return false, errors.E(op, err)
	}
	return strings.TrimSpace(rr.Stdout) != "", nil
}

func (e Exec) StageAll(ctx context.Context, dir string) error {
	const op errors.Op = "gitutil.StageAll"
	g, err := e.runner(dir)
	if err != nil {
		return errors.E(op, err)
	}
	if _, err := g.Run(ctx, "add", "--all", "."); err != nil {
		return errors.E(op, err)
	}
	return nil
}

func (e Exec) Commit(ctx context.Context, dir, message string) error {
	const op errors.Op = "gitutil.Commit"
	g, err := e.runner(dir)
	if err != nil {
		return errors.E(op, err)
	}
	if _, err := g.Run(ctx, "commit", "-m", message); err != nil {
		return errors.E(op, err)
	}
	return nil
}

func (e Exec) Push(ctx context.Context, dir, remote, ref string) error {
	const op errors.Op = "gitutil.Push"
	g, err := e.runner(dir)
	if err != nil {
		return errors.E(op, err)
	}
	if _, err := g.Run(ctx, "push", remote, "HEAD:"+ref); err != nil {
		return errors.E(op, err)
	}
	return nil
}

func (e Exec) RemoteURL(ctx context.Context, dir string) (string, error) {
	const op errors.Op = "gitutil.RemoteURL"
	g, err := e.runner(dir)
	if err != nil {
		return "", errors.E(op, err)
	}
	rr, err := g.Run(ctx, "remote", "get-url", "origin")
	if err != nil {
		return "", errors.E(op, err)
	}
	return NormalizeURL(strings.TrimSpace(rr.Stdout)), nil
}
