package runner

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-gatedio"
	"github.com/pkg/errors"
	"github.com/subosito/gotenv"

	"github.com/mason-build/mason/internal/model"
)

// execOutcome is the result of one spawn attempt (one of possibly
// several, under task.options.retry_count).
type execOutcome struct {
	exitCode int
	stdout   string
	stderr   string
	err      error
}

// buildArgv renders the task's command line, wrapping it in a shell
// invocation when task.options.shell is set.
func buildArgv(t *model.Task) []string {
	argv := append(append([]string{}, t.Command...), t.Args...)
	if !t.Options.Shell || len(argv) == 0 {
		return argv
	}
	return []string{"sh", "-c", strings.Join(argv, " ")}
}

// buildEnv renders the process environment: the ambient environment,
// then any env_files loaded from the project directory, then task.Env
// overlaid on top, and finally the affected_files contribution per
// task.options.affected_files. A declared env file that is absent is
// skipped; one that exists but cannot be parsed fails the run.
func buildEnv(t *model.Task, dir string, touchedFiles []string) ([]string, error) {
	env := os.Environ()
	for _, f := range t.Options.EnvFiles {
		fh, err := os.Open(filepath.Join(dir, f))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "opening env file %s", f)
		}
		vals, err := gotenv.StrictParse(fh)
		fh.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "loading env file %s", f)
		}
		keys := make([]string, 0, len(vals))
		for k := range vals {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, k+"="+vals[k])
		}
	}
	for k, v := range t.Env {
		env = append(env, k+"="+v)
	}
	switch t.Options.AffectedFiles {
	case model.AffectedEnabled, model.AffectedEnv:
		env = append(env, "MASON_AFFECTED_FILES="+strings.Join(touchedFiles, ","))
	}
	return env, nil
}

// affectedArgs returns extra argv entries for
// affected_files == Args.
func affectedArgs(t *model.Task, touchedFiles []string) []string {
	if t.Options.AffectedFiles != model.AffectedArgs {
		return nil
	}
	return touchedFiles
}

// osMatches reports whether the task is allowed to run on current,
// per task.options.os.
func osMatches(t *model.Task, current model.OS) bool {
	if len(t.Options.OS) == 0 {
		return true
	}
	for _, o := range t.Options.OS {
		if o == current {
			return true
		}
	}
	return false
}

// spawn runs one attempt of the task's command in dir, honoring ctx
// cancellation/timeout and capturing stdio via a gated buffer
// regardless of output_style (streamed tasks additionally mirror to
// os.Stdout/os.Stderr as they run).
func spawn(ctx context.Context, t *model.Task, dir string, touchedFiles []string) execOutcome {
	argv := buildArgv(t)
	argv = append(argv, affectedArgs(t, touchedFiles)...)
	if len(argv) == 0 {
		return execOutcome{exitCode: 0}
	}

	if t.Options.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.Options.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	env, err := buildEnv(t, dir, touchedFiles)
	if err != nil {
		return execOutcome{exitCode: -1, err: err}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env

	stdout := gatedio.NewByteBuffer()
	stderr := gatedio.NewByteBuffer()
	if t.Options.OutputStyle == model.OutputStream {
		cmd.Stdout = io.MultiWriter(stdout, os.Stdout)
		cmd.Stderr = io.MultiWriter(stderr, os.Stderr)
	} else {
		cmd.Stdout = stdout
		cmd.Stderr = stderr
	}

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return execOutcome{exitCode: -1, err: runErr}
		}
	}

	return execOutcome{
		exitCode: exitCode,
		stdout:   stdout.String(),
		stderr:   stderr.String(),
	}
}

// spawnWithRetry attempts spawn up to 1+task.options.retry_count
// times with exponential backoff between attempts, stopping at the
// first zero exit. A spawn-level error (missing binary, bad working
// dir) is permanent; only a non-zero exit earns a retry.
func spawnWithRetry(ctx context.Context, t *model.Task, dir string, touchedFiles []string) execOutcome {
	var last execOutcome
	attempt := func() error {
		last = spawn(ctx, t, dir, touchedFiles)
		if last.err != nil {
			return backoff.Permanent(last.err)
		}
		if last.exitCode != 0 {
			return errors.Errorf("exited with code %d", last.exitCode)
		}
		return nil
	}

	retries := t.Options.RetryCount
	if retries < 0 {
		retries = 0
	}
	expo := backoff.NewExponentialBackOff()
	// Retry budget is attempt-count only; the default elapsed-time
	// ceiling would silently stop retrying long-running tasks.
	expo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(retries)), ctx)
	_ = backoff.Retry(attempt, policy)
	return last
}
