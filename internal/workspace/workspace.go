package workspace

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/mason-build/mason/internal/doublestar"
	"github.com/mason-build/mason/internal/fs"
	"github.com/mason-build/mason/internal/ident"
	"github.com/mason-build/mason/internal/model"
	"github.com/mason-build/mason/internal/projectgraph"
	"github.com/mason-build/mason/internal/target"
	"github.com/mason-build/mason/internal/taskdef"
	"github.com/mason-build/mason/internal/token"
)

// Discover turns the workspace document's project list into
// projectgraph.Discovered candidates, overlaying each project's own
// mason.yml (if present) onto the root document's inline declaration.
func Discover(cfg *Config) ([]projectgraph.Discovered, map[ident.ID]rawProject, error) {
	entries := append([]rawProject{}, cfg.Projects...)
	globbed, err := discoverFromGlobs(cfg)
	if err != nil {
		return nil, nil, err
	}
	entries = append(entries, globbed...)

	out := make([]projectgraph.Discovered, 0, len(entries))
	byID := make(map[ident.ID]rawProject, len(entries))

	for _, entry := range entries {
		dir := filepath.Join(cfg.Root, entry.Path)
		own, err := loadProjectFile(dir)
		if err != nil {
			return nil, nil, err
		}
		merged := mergeProjectDecl(entry, own)

		id, err := ident.ParseID(merged.ID)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "project at %q", entry.Path)
		}
		deps := make([]model.DependencyConfig, 0, len(merged.DependsOn))
		for _, d := range merged.DependsOn {
			depID, err := ident.ParseID(d.ID)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "project %s dependsOn entry %q", id, d.ID)
			}
			deps = append(deps, model.DependencyConfig{
				ID:     depID,
				Scope:  scopeFromString(d.Scope),
				Source: model.SourceExplicit,
			})
		}
		tags := make([]ident.ID, 0, len(merged.Tags))
		for _, tg := range merged.Tags {
			tag, err := ident.ParseID(tg)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "project %s tag %q", id, tg)
			}
			tags = append(tags, tag)
		}
		groups := make(map[ident.ID]model.FileGroup, len(merged.FileGroups))
		for name, g := range merged.FileGroups {
			gid, err := ident.ParseID(name)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "project %s file group %q", id, name)
			}
			groups[gid] = model.FileGroup{Name: gid, Files: g.Files, Globs: g.Globs}
		}

		out = append(out, projectgraph.Discovered{
			ID:           id,
			IDFromConfig: true,
			Source:       entry.Path,
			Root:         dir,
			Layer:        layerFromString(merged.Layer),
			Language:     merged.Language,
			Stack:        merged.Stack,
			Tags:         tags,
			Dependencies: deps,
			FileGroups:   groups,
		})
		byID[id] = merged
	}

	return out, byID, nil
}

// skipDirs are directory names never walked during glob discovery,
// even without a .gitignore rule covering them (node_modules is often
// ignored through a global gitignore or .git/info/exclude, neither of
// which the root-.gitignore compile below reads).
var skipDirs = map[string]bool{
	".git":         true,
	".mason":       true,
	"node_modules": true,
}

// safeCompileIgnoreFile compiles a .gitignore, treating an absent file
// as an empty rule set.
func safeCompileIgnoreFile(path string) (*gitignore.GitIgnore, error) {
	if fs.FileExists(path) {
		return gitignore.CompileIgnoreFile(path)
	}
	// no op
	return gitignore.CompileIgnoreLines([]string{}...), nil
}

// discoverFromGlobs walks the workspace root and returns a synthetic
// project entry for every directory that matches one of the
// document's projectGlobs and contains its own mason.yml. The walk
// respects the workspace root's .gitignore; directories already
// declared inline are left to the explicit entry.
func discoverFromGlobs(cfg *Config) ([]rawProject, error) {
	if len(cfg.Globs) == 0 {
		return nil, nil
	}
	for _, g := range cfg.Globs {
		if !doublestar.ValidatePattern(g) {
			return nil, errors.Errorf("invalid projectGlobs pattern %q", g)
		}
	}
	declared := make(map[string]bool, len(cfg.Projects))
	for _, e := range cfg.Projects {
		declared[filepath.ToSlash(filepath.Clean(e.Path))] = true
	}

	ignore, err := safeCompileIgnoreFile(filepath.Join(cfg.Root, ".gitignore"))
	if err != nil {
		return nil, errors.Wrap(err, "compiling workspace .gitignore")
	}

	var rels []string
	err = fs.Walk(cfg.Root, func(name string, isDir bool) error {
		if !isDir {
			return nil
		}
		if skipDirs[filepath.Base(name)] {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(cfg.Root, name)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." || declared[rel] {
			return nil
		}
		if ignore.MatchesPath(rel) || ignore.MatchesPath(rel+"/") {
			return filepath.SkipDir
		}
		matched := false
		for _, g := range cfg.Globs {
			ok, err := doublestar.Match(g, rel)
			if err != nil {
				return errors.Wrapf(err, "matching projectGlobs pattern %q", g)
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}
		if _, err := os.Stat(filepath.Join(name, fileName)); err != nil {
			return nil
		}
		rels = append(rels, rel)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "walking project globs")
	}

	sort.Strings(rels)
	out := make([]rawProject, 0, len(rels))
	for _, rel := range rels {
		out = append(out, rawProject{Path: rel})
	}
	return out, nil
}

// ConfigHashInput reads every config file that shaped the workspace:
// the root document plus each discovered project's own mason.yml,
// keyed by workspace-relative path. The result feeds
// projectgraph.ConfigHash for the persisted-graph cache key.
func ConfigHashInput(cfg *Config, pg *projectgraph.Graph) (map[string]string, error) {
	named := make(map[string]string)
	rootFile := filepath.Join(cfg.Root, fileName)
	body, err := os.ReadFile(rootFile)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", fileName)
	}
	named[fileName] = string(body)

	for _, p := range pg.Sorted() {
		own := filepath.Join(p.Root, fileName)
		body, err := os.ReadFile(own)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", own)
		}
		named[p.Source+"/"+fileName] = string(body)
	}
	return named, nil
}

// mergeProjectDecl overlays a project's own mason.yml onto the
// workspace root's inline entry: the root entry's path/id always win
// (they're what the root document used to find this directory), every
// other field prefers the project-local file when present.
func mergeProjectDecl(root rawProject, own *rawProject) rawProject {
	if own == nil {
		return root
	}
	merged := *own
	merged.Path = root.Path
	if root.ID != "" {
		merged.ID = root.ID
	}
	if merged.ID == "" {
		merged.ID = filepath.Base(root.Path)
	}
	return merged
}

// Build runs the full pipeline from a decoded Config through to a
// projectgraph.Graph whose every task carries resolved
// InputFiles/InputGlobs/InputEnv/OutputFiles/OutputGlobs, ready for
// internal/actiongraph. ctx supplies the ambient `$var` values the
// token expander needs (workspace root, date/time, VCS state); the
// caller (internal/cmd) assembles it once per invocation.
func Build(cfg *Config, ctx token.Context, logger hclog.Logger) (*projectgraph.Graph, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	candidates, raw, err := Discover(cfg)
	if err != nil {
		return nil, err
	}

	pg, err := projectgraph.Build(candidates, nil, nil, logger.Named("project-graph"))
	if err != nil {
		return nil, err
	}

	// Constraint checking accumulates every violation before aborting,
	// so one pass reports them all.
	var constraintErrs *multierror.Error
	if cfg.EnforceLayers {
		constraintErrs = multierror.Append(constraintErrs, pg.ValidateLayering()...)
	}
	if len(cfg.TagRules) > 0 {
		constraintErrs = multierror.Append(constraintErrs, pg.ValidateTags(cfg.TagRules)...)
	}
	if err := constraintErrs.ErrorOrNil(); err != nil {
		return nil, err
	}

	taskLogger := logger.Named("task-builder")
	for id, project := range pg.Projects {
		decl := raw[id]
		if err := buildProjectTasks(project, decl, cfg, ctx, taskLogger); err != nil {
			return nil, errors.Wrapf(err, "project %s", id)
		}
	}

	applyArchivableTargets(pg, cfg.ArchivableTargets)

	return pg, nil
}

// applyArchivableTargets forces caching on for every task an
// archivable target addresses, whatever the task's own `cache`
// setting says.
func applyArchivableTargets(pg *projectgraph.Graph, targets []target.Target) {
	for _, at := range targets {
		for _, p := range pg.Sorted() {
			task, ok := p.Tasks[at.Task]
			if !ok {
				continue
			}
			switch at.Scope {
			case target.ScopeAll:
			case target.ScopeTag:
				if !p.Tags.Has(at.Tag) {
					continue
				}
			case target.ScopeProject:
				if at.Project != p.ID {
					continue
				}
			default:
				continue
			}
			task.Options.Cache = true
		}
	}
}

func buildProjectTasks(project *model.Project, decl rawProject, cfg *Config, ctx token.Context, logger hclog.Logger) error {
	ids := make(map[ident.ID]bool)
	for id := range cfg.Globals {
		parsed, err := ident.ParseID(id)
		if err != nil {
			return errors.Wrapf(err, "task %q", id)
		}
		ids[parsed] = true
	}
	for id := range decl.Tasks {
		parsed, err := ident.ParseID(id)
		if err != nil {
			return errors.Wrapf(err, "task %q", id)
		}
		ids[parsed] = true
	}

	sorted := make([]ident.ID, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	toolchain := taskdef.ToolchainSettings{
		BinaryToRuntime: map[string]model.RuntimeKind{
			"go":    model.RuntimeSystem,
			"node":  model.RuntimeNode,
			"npm":   model.RuntimeNode,
			"pnpm":  model.RuntimeNode,
			"yarn":  model.RuntimeNode,
			"bun":   model.RuntimeBun,
			"deno":  model.RuntimeDeno,
			"cargo": model.RuntimeRust,
			"rustc": model.RuntimeRust,
		},
	}

	projCtx := taskdef.ProjectContext{
		ID:       project.ID,
		Language: project.Language,
		Stack:    project.Stack,
		Layer:    project.Layer,
		Tags:     project.Tags.UnsafeList(),
		IsRoot:   decl.Path == "." || decl.Path == "",
	}

	for _, id := range sorted {
		globals := cfg.Globals[string(id)]
		var local *taskdef.RawTaskConfig
		if raw, ok := decl.Tasks[string(id)]; ok {
			rawCfg := toRawTaskConfig(id, raw)
			local = &rawCfg
		}
		if len(globals) == 0 && local == nil {
			continue
		}

		targetStr := string(project.ID) + ":" + string(id)
		in := taskdef.BuildInput{
			Project:   projCtx,
			Globals:   globals,
			Local:     local,
			Toolchain: toolchain,
			// The root document shapes every task, so its content is an
			// input to all of them.
			ImplicitInputs: []model.TaskValue{{Kind: model.KindWorkspaceFile, Raw: fileName}},
			Logger:         logger,
		}
		task, err := taskdef.Build(in, targetStr)
		if err != nil {
			return err
		}
		if err := token.ExpandTask(project, task, targetStr, ctx); err != nil {
			return errors.Wrapf(err, "task %s", targetStr)
		}
		project.Tasks[id] = task
	}
	return nil
}
