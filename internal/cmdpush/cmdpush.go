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

// Package cmdpush contains the push command.
package cmdpush

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fpmdev/fpm/internal/errors"
	"github.com/fpmdev/fpm/internal/gitutil"
	"github.com/fpmdev/fpm/internal/util/cmdutil"
	"github.com/fpmdev/fpm/internal/util/push"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:   "push",
		Short: "Push local edits in installed bundles back to their sources",
		Long: `Commit and push local modifications made to installed bundles, deepest
bundles first so that every parent commit records the final SHAs of its
children. At most one commit is created per affected bundle.`,
		RunE: r.runE,
	}
	// -m is the commit message here; the manifest path keeps only its
	// long form so the two short flags cannot collide.
	c.Flags().StringVar(&r.Push.ManifestPath, cmdutil.ManifestFlag,
		cmdutil.DefaultManifestPath, "path to the bundle.toml manifest")
	c.Flags().StringVarP(&r.Push.Bundle, "bundle", "b", "",
		"restrict the push to a single top-level bundle alias")
	c.Flags().StringVarP(&r.Push.Message, "message", "m", "",
		"commit message for the pushed changes")
	r.Command = c
	return r
}

// NewCommand returns the cobra command for push.
func NewCommand(ctx context.Context) *cobra.Command {
	return NewRunner(ctx).Command
}

// Runner contains the run function.
type Runner struct {
	ctx     context.Context
	Push    push.Command
	Command *cobra.Command
}

func (r *Runner) runE(_ *cobra.Command, _ []string) error {
	const op errors.Op = "cmdpush.runE"
	if r.Push.Gateway == nil {
		gw, err := gitutil.NewExec()
		if err != nil {
			return cmdutil.WrapStack(errors.E(op, err))
		}
		r.Push.Gateway = gw
	}
	summary, err := r.Push.Run(r.ctx)
	if err != nil {
		return cmdutil.WrapStack(errors.E(op, err))
	}
	if summary.AnyFailed() {
		return cmdutil.WrapStack(errors.E(op,
			fmt.Errorf("%d bundle(s) failed to push", len(summary.Failed))))
	}
	return nil
}
