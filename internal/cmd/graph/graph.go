// Package graph implements the `mason graph` command: build the
// action graph for one or more task locators and render it, without
// running anything.
package graph

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mason-build/mason/internal/actiongraph"
	"github.com/mason-build/mason/internal/cmdutil"
	"github.com/mason-build/mason/internal/graphvisualizer"
	"github.com/mason-build/mason/internal/token"
	"github.com/mason-build/mason/internal/vcs"
	"github.com/mason-build/mason/internal/workspace"
)

type graphOpts struct {
	outputFile string
	dependents bool
}

func (o *graphOpts) addFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.outputFile, "output-file", "", "Write the graph to this file (.dot, .html, or an image extension) instead of stdout")
	flags.BoolVar(&o.dependents, "dependents", false, "Include each targeted task's dependents")
}

// GetCmd returns the `mason graph` cobra command.
func GetCmd(helper *cmdutil.Helper) *cobra.Command {
	opts := &graphOpts{}

	cmd := &cobra.Command{
		Use:                   "graph <task locators...>",
		Short:                 "Render the action graph for one or more tasks",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase(cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			return execute(base, opts, args)
		},
	}
	opts.addFlags(cmd.Flags())
	return cmd
}

func execute(base *cmdutil.CmdBase, opts *graphOpts, args []string) error {
	if len(args) == 0 {
		return cmdutil.ExitConfigError(errors.New("graph requires at least one task locator"))
	}

	cfg, err := workspace.Load(base.RepoRoot.ToString())
	if err != nil {
		return cmdutil.ExitConfigError(errors.Wrap(err, "loading workspace"))
	}

	repo := vcs.New(base.RepoRoot.ToString())
	pg, err := workspace.Build(cfg, token.Context{
		WorkspaceRoot: base.RepoRoot.ToString(),
		WorkingDir:    base.RepoRoot.ToString(),
		VCSRevision:   repo.Revision(),
	}, base.Logger)
	if err != nil {
		return cmdutil.ExitConfigError(errors.Wrap(err, "building project graph"))
	}

	builder := actiongraph.NewBuilder(pg)
	if _, err := builder.RunFromRequirements(actiongraph.RunRequirements{
		TargetLocators: args,
		Dependents:     opts.dependents,
	}); err != nil {
		return cmdutil.ExitConfigError(err)
	}

	viz := graphvisualizer.New(base.RepoRoot, base.UI, builder.Graph.Dag())
	if opts.outputFile == "" {
		viz.RenderDotGraph()
		return nil
	}
	return viz.GenerateGraphFile(opts.outputFile)
}
