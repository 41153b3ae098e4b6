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

// Package bundleutil holds filesystem helpers for moving bundle content
// between clones and installation directories.
package bundleutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"

	"github.com/fpmdev/fpm/internal/errors"
	"github.com/fpmdev/fpm/internal/manifest"
	"github.com/fpmdev/fpm/internal/marker"
	"github.com/fpmdev/fpm/internal/types"
)

// fpmManaged reports whether a directory entry name belongs to fpm's
// bookkeeping rather than to bundle content: the nested bundle dir, the
// sync marker and the backing clone.
func fpmManaged(name string) bool {
	return name == manifest.BundleDir || strings.HasPrefix(name, ".fpm-")
}

// CopySubtree copies the content of src into dst, skipping any .git
// directory. Symlinks are not followed; they are skipped so that a bundle
// cannot reference content outside its own tree.
func CopySubtree(src, dst string) error {
	const op errors.Op = "bundleutil.CopySubtree"
	opts := copy.Options{
		Skip: func(_ os.FileInfo, srcPath, _ string) (bool, error) {
			return filepath.Base(srcPath) == ".git", nil
		},
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Skip
		},
	}
	if err := copy.Copy(src, dst, opts); err != nil {
		return errors.E(op, errors.IO, types.UniquePath(dst), err)
	}
	return nil
}

// ClearInstalled empties an installation directory of fpm-managed bundle
// content while preserving nested .fpm/ trees, the sync marker and the
// backing clone, so that install stays incremental.
func ClearInstalled(dir string) error {
	const op errors.Op = "bundleutil.ClearInstalled"
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.E(op, errors.IO, types.UniquePath(dir), err)
	}
	for _, entry := range entries {
		if fpmManaged(entry.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return errors.E(op, errors.IO, types.UniquePath(dir), err)
		}
	}
	return nil
}

// EnsureInstallDir verifies that dir either does not exist yet or is a
// directory, and creates it when absent. A non-directory occupying the
// path is a collision the caller cannot recover from.
func EnsureInstallDir(dir string) error {
	const op errors.Op = "bundleutil.EnsureInstallDir"
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return errors.E(op, errors.IO, types.UniquePath(dir), err)
			}
			return nil
		}
		return errors.E(op, errors.IO, types.UniquePath(dir), err)
	}
	if !info.IsDir() {
		return errors.E(op, errors.IO, types.UniquePath(dir),
			fmt.Errorf("path exists and is not a directory"))
	}
	return nil
}

// SyncToClone mirrors the installed content of installDir into the subtree
// at subPath of the clone at cloneDir. Bundle content replaces the subtree
// wholesale; fpm bookkeeping is excluded except for the sync markers of
// directly nested installs, which are copied so a parent commit records
// the SHAs of its children.
func SyncToClone(installDir, cloneDir, subPath string) error {
	const op errors.Op = "bundleutil.SyncToClone"
	target := filepath.Join(cloneDir, subPath)

	// Replace the subtree. At the repo root the .git directory must
	// survive the sweep.
	entries, err := os.ReadDir(target)
	if err != nil && !os.IsNotExist(err) {
		return errors.E(op, errors.IO, types.UniquePath(cloneDir), err)
	}
	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(target, entry.Name())); err != nil {
			return errors.E(op, errors.IO, types.UniquePath(cloneDir), err)
		}
	}
	if err := os.MkdirAll(target, 0700); err != nil {
		return errors.E(op, errors.IO, types.UniquePath(cloneDir), err)
	}

	installed, err := os.ReadDir(installDir)
	if err != nil {
		return errors.E(op, errors.IO, types.UniquePath(installDir), err)
	}
	for _, entry := range installed {
		if fpmManaged(entry.Name()) {
			continue
		}
		src := filepath.Join(installDir, entry.Name())
		dst := filepath.Join(target, entry.Name())
		if err := CopySubtree(src, dst); err != nil {
			return err
		}
	}

	return copyNestedMarkers(installDir, target)
}

// copyNestedMarkers copies .fpm/<alias>/.fpm-sync.yaml files into the
// clone so the commit pins the children's SHAs.
func copyNestedMarkers(installDir, target string) error {
	const op errors.Op = "bundleutil.copyNestedMarkers"
	bundleDir := filepath.Join(installDir, manifest.BundleDir)
	entries, err := os.ReadDir(bundleDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.E(op, errors.IO, types.UniquePath(installDir), err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		src := filepath.Join(bundleDir, entry.Name(), marker.FileName)
		data, err := os.ReadFile(src)
		if err != nil {
			continue
		}
		dstDir := filepath.Join(target, manifest.BundleDir, entry.Name())
		if err := os.MkdirAll(dstDir, 0700); err != nil {
			return errors.E(op, errors.IO, types.UniquePath(target), err)
		}
		if err := os.WriteFile(filepath.Join(dstDir, marker.FileName), data, 0600); err != nil {
			return errors.E(op, errors.IO, types.UniquePath(target), err)
		}
	}
	return nil
}

// ignoreRules keep installed bundle content out of commits while letting
// the nested sync markers through, so a commit of the directory pins the
// SHAs of its children without carrying their files.
var ignoreRules = []string{
	manifest.BundleDir + "/**",
	"!" + manifest.BundleDir + "/*/",
	"!" + manifest.BundleDir + "/*/" + marker.FileName,
	".fpm-repo/",
}

// EnsureBundleDirIgnored adds fpm's ignore rules to dir's .gitignore.
// Existing entries are left untouched; the rules are written once.
func EnsureBundleDirIgnored(dir string) error {
	const op errors.Op = "bundleutil.EnsureBundleDirIgnored"
	gitignore := filepath.Join(dir, ".gitignore")

	data, err := os.ReadFile(gitignore)
	if err != nil && !os.IsNotExist(err) {
		return errors.E(op, errors.IO, types.UniquePath(dir), err)
	}
	content := string(data)

	present := map[string]bool{}
	for _, line := range strings.Split(content, "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, rule := range ignoreRules {
		if !present[rule] {
			missing = append(missing, rule)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	if !strings.HasSuffix(content, "\n") && content != "" {
		content += "\n"
	}
	content += strings.Join(missing, "\n") + "\n"
	if err := os.WriteFile(gitignore, []byte(content), 0600); err != nil {
		return errors.E(op, errors.IO, types.UniquePath(dir), err)
	}
	return nil
}
