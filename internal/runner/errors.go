package runner

import "github.com/pkg/errors"

// Runtime errors local to one task's execution.
var (
	// ErrMissingDeclaredOutputs is returned when a task declares output
	// files/globs but, after a successful run, none of them resolve to
	// anything on disk.
	ErrMissingDeclaredOutputs = errors.New("task declared outputs but produced none")

	// ErrMutexPoisoned names a panic in a task holding a named mutex.
	// No code path in this package returns it: a panic is not
	// recovered, and the named mutex is not marked as poisoned.
	ErrMutexPoisoned = errors.New("named mutex poisoned by a panicking task")

	// ErrCacheCorrupt wraps a failure to read/restore a local archive
	// or hash manifest that does exist on disk.
	ErrCacheCorrupt = errors.New("cache entry is corrupt")
)

// TaskExecutionFailed is returned when a task process exits non-zero
// after exhausting its retries.
type TaskExecutionFailed struct {
	ExitCode int
}

func (e *TaskExecutionFailed) Error() string {
	return errors.Errorf("task execution failed (exit %d)", e.ExitCode).Error()
}
