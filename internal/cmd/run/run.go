// Package run implements the `mason run` command: load the workspace
// config, build the project graph, expand and build every task,
// translate the requested targets into an action graph, and walk it
// in topological order, running each task node through the runner.
// The walk is driven by the pull-based internal/topo iterator rather
// than dag.Walk so a fixed worker pool can pull nodes as they become
// ready.
package run

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mason-build/mason/internal/actiongraph"
	"github.com/mason-build/mason/internal/cacheengine"
	"github.com/mason-build/mason/internal/ci"
	"github.com/mason-build/mason/internal/cmdutil"
	"github.com/mason-build/mason/internal/model"
	"github.com/mason-build/mason/internal/projectgraph"
	"github.com/mason-build/mason/internal/runner"
	"github.com/mason-build/mason/internal/signals"
	"github.com/mason-build/mason/internal/target"
	"github.com/mason-build/mason/internal/token"
	"github.com/mason-build/mason/internal/topo"
	"github.com/mason-build/mason/internal/turbopath"
	"github.com/mason-build/mason/internal/util"
	"github.com/mason-build/mason/internal/vcs"
	"github.com/mason-build/mason/internal/workspace"
)

type runOpts struct {
	concurrency string
	ciCheck     bool
	dependents  bool
	query       string
	affected    bool
	since       string
}

func (o *runOpts) addFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.concurrency, "concurrency", "100%", "Maximum number of tasks to run in parallel, as a count or a percentage of CPU cores")
	flags.BoolVar(&o.ciCheck, "ci-check", false, "Skip tasks whose options.runInCI is false")
	flags.BoolVar(&o.dependents, "dependents", false, "Also run this task in every project that depends on the targeted one")
	flags.StringVar(&o.query, "query", "", "Restrict ':task'/'#tag:task' expansion to projects matched by this project-graph query")
	flags.BoolVar(&o.affected, "affected", false, "Only run tasks whose inputs intersect the VCS change set")
	flags.StringVar(&o.since, "since", "", "Base revision for --affected (defaults to the working tree vs HEAD)")
}

// GetCmd returns the `mason run` cobra command.
func GetCmd(helper *cmdutil.Helper, signalWatcher *signals.Watcher) *cobra.Command {
	opts := &runOpts{}

	cmd := &cobra.Command{
		Use:                   "run <task locators...>",
		Short:                 "Run one or more tasks across the workspace",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase(cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			return execute(cmd.Context(), base, opts, args)
		},
	}
	flags := cmd.Flags()
	opts.addFlags(flags)
	_ = signalWatcher
	return cmd
}

// normalizeLocator allows bare task names ("build") as shorthand for
// the all-projects scope (":build").
func normalizeLocator(s string) string {
	if _, err := target.Parse(s); err == nil {
		return s
	}
	return ":" + s
}

func execute(ctx context.Context, base *cmdutil.CmdBase, opts *runOpts, args []string) error {
	if len(args) == 0 {
		return cmdutil.ExitConfigError(errors.New("run requires at least one task locator"))
	}

	concurrency, err := util.ParseConcurrency(opts.concurrency)
	if err != nil {
		return cmdutil.ExitConfigError(err)
	}

	// Every log line of this invocation carries the same run id, so one
	// run's output can be pulled out of interleaved logs.
	logger := base.Logger.With("run", uuid.NewString())

	cfg, err := workspace.Load(base.RepoRoot.ToString())
	if err != nil {
		return cmdutil.ExitConfigError(errors.Wrap(err, "loading workspace"))
	}

	repo := vcs.New(base.RepoRoot.ToString())
	now := time.Now()
	tokenCtx := token.Context{
		WorkspaceRoot: base.RepoRoot.ToString(),
		WorkingDir:    base.RepoRoot.ToString(),
		Date:          now.Format("2006-01-02"),
		Time:          now.Format("15:04:05"),
		DateTime:      now.Format(time.RFC3339),
		Timestamp:     strconv.FormatInt(now.Unix(), 10),
		Arch:          runtime.GOARCH,
		OS:            runtime.GOOS,
		OSFamily:      osFamily(runtime.GOOS),
		VCSRevision:   repo.Revision(),
	}

	pg, err := workspace.Build(cfg, tokenCtx, logger)
	if err != nil {
		return cmdutil.ExitConfigError(errors.Wrap(err, "building project graph"))
	}

	cache, err := cacheEngine(base.RepoRoot, cfg)
	if err != nil {
		return errors.Wrap(err, "opening cache")
	}

	locators := make([]string, 0, len(args))
	for _, a := range args {
		locators = append(locators, normalizeLocator(a))
	}

	// --since implies --affected; without a repo there is no change set
	// to filter by, so everything runs.
	var touched map[string]bool
	var touchedList []string
	if (opts.affected || opts.since != "") && repo.HasRepo() {
		paths, err := repo.Touched(opts.since)
		if err != nil {
			return errors.Wrap(err, "resolving touched files")
		}
		touched = make(map[string]bool, len(paths))
		for _, p := range paths {
			touched[p] = true
		}
		touchedList = paths
	}

	builder := actiongraph.NewBuilder(pg)
	builder.Logger = logger.Named("action-graph")
	primary, err := builder.RunFromRequirements(actiongraph.RunRequirements{
		TargetLocators: locators,
		TouchedFiles:   touched,
		CI:             ci.IsCi() || opts.ciCheck,
		CICheck:        opts.ciCheck,
		Dependents:     opts.dependents,
		Query:          opts.query,
	})
	if err != nil {
		return cmdutil.ExitConfigError(err)
	}
	if len(primary) == 0 {
		base.LogInfo("no tasks matched")
		return nil
	}

	persistGraphSnapshot(cache, cfg, pg, repo)

	cache.Logger = logger.Named("cache-engine")
	deps := runner.Deps{
		Cache:         cache,
		VCS:           repo,
		States:        builder.States,
		TouchedFiles:  touchedList,
		CurrentOS:     currentOS(),
		WorkspaceRoot: base.RepoRoot,
		Logger:        logger.Named("task-runner"),
	}

	failed, err := walk(ctx, base, logger, builder, deps, concurrency)
	if err != nil {
		return err
	}
	if failed {
		return cmdutil.ExitTaskFailure(errors.New("one or more tasks failed"))
	}
	return nil
}

// walk drives the Topological Iterator with opts.concurrency worker
// goroutines, running every ActionRunTask node through the Task
// Runner and leaving every other node a no-op (SyncWorkspace,
// SetupToolchain, InstallWorkspaceDeps/InstallProjectDeps, SyncProject
// carry no executable work of their own in this pipeline beyond
// ordering: the Task Runner consults the project directly when it
// spawns a task's process).
func walk(ctx context.Context, base *cmdutil.CmdBase, logger hclog.Logger, builder *actiongraph.Builder, deps runner.Deps, concurrency int) (bool, error) {
	it := topo.New(builder.Graph, builder.States, concurrency, logger.Named("topo"))
	r := runner.New(deps)

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failed   bool
		firstErr error
	)

	worker := func() {
		defer wg.Done()
		for {
			node, idx, ok := it.Next(ctx)
			if !ok {
				if !it.HasPending() {
					return
				}
				continue
			}

			if node.Kind != model.ActionRunTask {
				it.MarkCompleted(idx)
				continue
			}

			tgt, err := target.Parse(node.Target)
			if err != nil {
				mu.Lock()
				failed = true
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				it.MarkCompleted(idx)
				continue
			}
			project, ok := builder.Projects.Resolve(string(tgt.Project))
			if !ok {
				mu.Lock()
				failed = true
				mu.Unlock()
				it.MarkCompleted(idx)
				continue
			}
			task, ok := project.Tasks[tgt.Task]
			if !ok {
				mu.Lock()
				failed = true
				mu.Unlock()
				it.MarkCompleted(idx)
				continue
			}

			depTargets := dependencyTargets(builder.Graph, idx)
			result, runErr := r.Run(ctx, tgt, project, task, depTargets)
			if runErr != nil {
				mu.Lock()
				failed = true
				if firstErr == nil {
					firstErr = runErr
				}
				mu.Unlock()
				base.LogWarning(tgt.String(), runErr)
			} else {
				logResult(base, tgt, result)
			}
			it.MarkCompleted(idx)
		}
	}

	if concurrency < 1 {
		concurrency = 1
	}
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker()
	}
	wg.Wait()

	if firstErr != nil && !isTaskExecutionFailure(firstErr) {
		return failed, firstErr
	}
	return failed, nil
}

func isTaskExecutionFailure(err error) bool {
	var exec *runner.TaskExecutionFailed
	return errors.As(err, &exec)
}

// dependencyTargets returns the rendered targets of idx's direct
// ActionRunTask dependencies, the depTargets contract
// runner.Runner.Run requires.
func dependencyTargets(g *actiongraph.Graph, idx int) []target.Target {
	var out []target.Target
	for _, d := range g.DependencyIndices(idx) {
		node := g.Node(d)
		if node.Kind != model.ActionRunTask {
			continue
		}
		t, err := target.Parse(node.Target)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func logResult(base *cmdutil.CmdBase, t target.Target, result runner.Result) {
	switch result.State.Kind {
	case model.StatePassed:
		base.LogInfo(fmt.Sprintf("%s: passed (%s)", t.String(), result.State.Hash))
	case model.StatePassthrough:
		base.LogInfo(fmt.Sprintf("%s: passed", t.String()))
	case model.StateSkipped:
		base.LogInfo(fmt.Sprintf("%s: skipped", t.String()))
	case model.StateFailed:
		base.LogError("%s: failed", t.String())
	}
}

// cacheEngine opens the on-disk Cache Engine at root/.mason/cache,
// honoring MASON_CACHE over the workspace document's cacheMode.
func cacheEngine(root turbopath.AbsoluteSystemPath, cfg *workspace.Config) (*cacheengine.Engine, error) {
	mode := cfg.CacheMode
	if _, set := os.LookupEnv(cacheengine.ModeEnvVar); set {
		mode = cacheengine.ModeFromEnv()
	}
	return cacheengine.New(root, mode)
}

// persistGraphSnapshot records the built project graph keyed by a
// content hash of every config that shaped it. Best-effort: a failure
// to persist never fails the run, and without a VCS no snapshot is
// written at all.
func persistGraphSnapshot(cache *cacheengine.Engine, cfg *workspace.Config, pg *projectgraph.Graph, repo *vcs.Git) {
	if repo.Revision() == "" {
		return
	}
	named, err := workspace.ConfigHashInput(cfg, pg)
	if err != nil {
		return
	}
	key, err := projectgraph.ConfigHash(named)
	if err != nil {
		return
	}
	pgCache := projectgraph.Cache{Dir: cache.Dir.UntypedJoin("states").ToString()}
	if hit, _ := pgCache.Load(key); hit {
		return
	}
	_ = pgCache.Store(key, pg)
}

func currentOS() model.OS {
	switch runtime.GOOS {
	case "darwin":
		return model.OSMacos
	case "windows":
		return model.OSWindows
	default:
		return model.OSLinux
	}
}

// osFamily resolves the $osFamily token: the broad kernel family a GOOS value belongs to.
func osFamily(goos string) string {
	switch goos {
	case "windows":
		return "windows"
	case "darwin", "ios":
		return "darwin"
	default:
		return "unix"
	}
}
