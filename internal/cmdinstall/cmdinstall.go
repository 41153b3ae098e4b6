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

// Package cmdinstall contains the install command.
package cmdinstall

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fpmdev/fpm/internal/errors"
	"github.com/fpmdev/fpm/internal/gitutil"
	"github.com/fpmdev/fpm/internal/util/cmdutil"
	"github.com/fpmdev/fpm/internal/util/install"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:   "install",
		Short: "Fetch the bundles declared in the manifest",
		Long: `Fetch all bundles declared in bundle.toml from their git repositories
and place them under .fpm/, recursing into nested manifests. Bundles that
already match their declared version are left untouched.`,
		RunE: r.runE,
	}
	c.Flags().StringVarP(&r.Install.ManifestPath, cmdutil.ManifestFlag, "m",
		cmdutil.DefaultManifestPath, "path to the bundle.toml manifest")
	r.Command = c
	return r
}

// NewCommand returns the cobra command for install.
func NewCommand(ctx context.Context) *cobra.Command {
	return NewRunner(ctx).Command
}

// Runner contains the run function.
type Runner struct {
	ctx     context.Context
	Install install.Command
	Command *cobra.Command
}

func (r *Runner) runE(_ *cobra.Command, _ []string) error {
	const op errors.Op = "cmdinstall.runE"
	if r.Install.Gateway == nil {
		gw, err := gitutil.NewExec()
		if err != nil {
			return cmdutil.WrapStack(errors.E(op, err))
		}
		r.Install.Gateway = gw
	}
	summary, err := r.Install.Run(r.ctx)
	if err != nil {
		return cmdutil.WrapStack(errors.E(op, err))
	}
	if summary.AnyFailed() {
		return cmdutil.WrapStack(errors.E(op,
			fmt.Errorf("%d bundle(s) failed to install", len(summary.Failed))))
	}
	return nil
}
