// Package cleancache implements the `mason clean-cache` command:
// sweeping stale entries out of the cache engine's on-disk store.
package cleancache

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mason-build/mason/internal/cacheengine"
	"github.com/mason-build/mason/internal/cmdutil"
)

type cleanOpts struct {
	lifetime time.Duration
	dryRun   bool
}

func (o *cleanOpts) addFlags(flags *pflag.FlagSet) {
	flags.DurationVar(&o.lifetime, "older-than", 7*24*time.Hour, "Delete cache entries whose last run is older than this")
	flags.BoolVar(&o.dryRun, "dry-run", false, "Report what would be deleted without deleting it")
}

// GetCmd returns the `mason clean-cache` cobra command.
func GetCmd(helper *cmdutil.Helper) *cobra.Command {
	opts := &cleanOpts{}

	cmd := &cobra.Command{
		Use:                   "clean-cache",
		Short:                 "Remove stale entries from the local task cache",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase(cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			cache, err := cacheengine.New(base.RepoRoot, cacheengine.ModeFromEnv())
			if err != nil {
				return err
			}
			files, bytes, err := cache.CleanStale(opts.lifetime, opts.dryRun)
			if err != nil {
				return err
			}
			verb := "removed"
			if opts.dryRun {
				verb = "would remove"
			}
			base.LogInfo(fmt.Sprintf("%s %d stale entries (%d bytes)", verb, files, bytes))
			return nil
		},
	}
	opts.addFlags(cmd.Flags())
	return cmd
}
