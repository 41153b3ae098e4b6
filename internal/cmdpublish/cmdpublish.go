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

// Package cmdpublish contains the publish command.
package cmdpublish

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fpmdev/fpm/internal/errors"
	"github.com/fpmdev/fpm/internal/gitutil"
	"github.com/fpmdev/fpm/internal/util/cmdutil"
	"github.com/fpmdev/fpm/internal/util/publish"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:   "publish",
		Short: "Publish this source bundle's artifact tree to its remote",
		Long: `Commit the working tree of the manifest's directory and push it to the
main branch of origin. Fails when the manifest declares no root.`,
		RunE: r.runE,
	}
	c.Flags().StringVarP(&r.Publish.ManifestPath, cmdutil.ManifestFlag, "m",
		cmdutil.DefaultManifestPath, "path to the bundle.toml manifest")
	r.Command = c
	return r
}

// NewCommand returns the cobra command for publish.
func NewCommand(ctx context.Context) *cobra.Command {
	return NewRunner(ctx).Command
}

// Runner contains the run function.
type Runner struct {
	ctx     context.Context
	Publish publish.Command
	Command *cobra.Command
}

func (r *Runner) runE(_ *cobra.Command, _ []string) error {
	const op errors.Op = "cmdpublish.runE"
	if r.Publish.Gateway == nil {
		gw, err := gitutil.NewExec()
		if err != nil {
			return cmdutil.WrapStack(errors.E(op, err))
		}
		r.Publish.Gateway = gw
	}
	if _, err := r.Publish.Run(r.ctx); err != nil {
		return cmdutil.WrapStack(errors.E(op, err))
	}
	return nil
}
