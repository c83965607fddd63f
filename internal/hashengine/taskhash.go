package hashengine

import (
	"path"
	"runtime"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/mason-build/mason/internal/model"
)

// VCS is the version-control collaborator contract: given
// workspace-relative paths, return their content hash, and
// report the current repo revision. Missing files contribute an
// empty string rather than an error.
type VCS interface {
	FileHash(path string) (string, bool)
	Revision() string
}

// TaskHashInput bundles everything a task's hash manifest draws from.
type TaskHashInput struct {
	Project *model.Project
	Task    *model.Task
	EnvVals map[string]string // resolved values of task.InputEnv, by name
	Logger  hclog.Logger
}

// TaskManifest builds the Hasher with the task hash's eight ordered
// contributions, in order:
//  1. task identity
//  2. env (sorted) + referenced env values (sorted)
//  3. input file content hashes (VCS-provided; missing -> "")
//  4. declared env-file content hashes (they shape the process env)
//  5. resolved input globs (canonical strings)
//  6. toolchain runtime kind + version/marker
//  7. project metadata snapshot
//  8. schema version tag
func TaskManifest(in TaskHashInput, vcs VCS) *Hasher {
	t := in.Task
	p := in.Project
	logger := in.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	h := New()

	h.Add("task.identity", map[string]interface{}{
		"project": string(p.ID),
		"task":    string(t.ID),
		"command": t.Command,
		"args":    t.Args,
		"script":  t.Script,
		"type":    int(t.Type),
	})

	h.Add("task.env", SortedMap(t.Env))

	envValues := make(map[string]string, len(t.InputEnv))
	for _, name := range t.InputEnv {
		envValues[name] = in.EnvVals[name]
	}
	h.Add("task.envValues", SortedMap(envValues))

	h.Add("task.inputFiles", SortedMap(hashInputFiles(t.InputFiles, vcs, logger)))

	envFileHashes := make(map[string]string, len(t.Options.EnvFiles))
	for _, f := range t.Options.EnvFiles {
		rel := path.Join(p.Source, f)
		if hash, ok := vcs.FileHash(rel); ok {
			envFileHashes[rel] = hash
		} else {
			envFileHashes[rel] = ""
		}
	}
	h.Add("task.envFiles", SortedMap(envFileHashes))

	h.Add("task.inputGlobs", SortedStrings(t.InputGlobs))

	h.Add("task.toolchain", map[string]string{
		"kind":    t.Runtime.Kind.String(),
		"version": t.Runtime.VersionOrMarker(),
	})

	h.Add("project.metadata", map[string]interface{}{
		"id":           string(p.ID),
		"layer":        p.Layer.String(),
		"language":     p.Language,
		"dependencies": dependencySnapshot(p),
	})

	h.Add("schema.version", SchemaVersion)

	return h
}

// hashInputFiles resolves each input file's VCS content hash on a
// bounded worker pool; a missing file contributes an empty string,
// not an error.
func hashInputFiles(files []string, vcs VCS, logger hclog.Logger) map[string]string {
	workers := runtime.NumCPU()
	if workers > len(files) {
		workers = len(files)
	}
	if workers < 1 {
		return map[string]string{}
	}

	var (
		mu sync.Mutex
		eg errgroup.Group
	)
	jobs := make(chan string)
	fileHashes := make(map[string]string, len(files))
	for i := 0; i < workers; i++ {
		eg.Go(func() error {
			for f := range jobs {
				hash, ok := vcs.FileHash(f)
				if !ok {
					logger.Debug("input file missing, hashing as empty", "path", f)
					hash = ""
				}
				mu.Lock()
				fileHashes[f] = hash
				mu.Unlock()
			}
			return nil
		})
	}
	for _, f := range files {
		jobs <- f
	}
	close(jobs)
	// The workers never return errors; Wait is just the barrier.
	_ = eg.Wait()
	return fileHashes
}

func dependencySnapshot(p *model.Project) []map[string]interface{} {
	deps := p.SortedDependencies()
	out := make([]map[string]interface{}, 0, len(deps))
	for _, d := range deps {
		out = append(out, map[string]interface{}{
			"id":    string(d.ID),
			"scope": int(d.Scope),
		})
	}
	return out
}

// Stable reports whether a task with empty inputs and EmptyInputs set
// hashes the same across two otherwise-identical invocations: true by
// construction here, since TaskManifest never consults wall-clock
// time, process state, or anything else not already part of the
// ordered contributions above.
func Stable(t *model.Task) bool {
	return t.Metadata.EmptyInputs && len(t.InputFiles) == 0
}
