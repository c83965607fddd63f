// Package target implements the project:task addressing scheme:
// parsing and equality for the five scopes (`:`, `~`, `^`, `#tag`,
// `project`), textual round-tripping, and the run-context
// restrictions on `^`/`~`.
package target

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/mason-build/mason/internal/ident"
)

// ScopeKind is the tag of a Target's scope.
type ScopeKind int

const (
	// ScopeAll addresses the task in every project (`:task`).
	ScopeAll ScopeKind = iota
	// ScopeDeps addresses the task in every dependency of the current
	// project (`^:task`) — only legal once resolved against a project.
	ScopeDeps
	// ScopeSelf addresses the task in the current project (`~:task`).
	ScopeSelf
	// ScopeTag addresses the task in every project carrying a tag
	// (`#tag:task`).
	ScopeTag
	// ScopeProject addresses the task in one named project
	// (`project:task`). Once a Target is attached to a concrete task,
	// its scope is always ScopeProject.
	ScopeProject
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeAll:
		return "all"
	case ScopeDeps:
		return "deps"
	case ScopeSelf:
		return "self"
	case ScopeTag:
		return "tag"
	case ScopeProject:
		return "project"
	default:
		return "unknown"
	}
}

// ErrScopeNotAllowedInRun is returned when a `^` or `~` scoped target
// locator is used somewhere run_task_by_target requires a concrete
// project.
var ErrScopeNotAllowedInRun = errors.New("scope not allowed in this context")

// ErrMalformedTarget is returned when a textual target form cannot be
// parsed at all.
var ErrMalformedTarget = errors.New("malformed target")

// Target is a `{ scope, project_id?, task_id }` address.
type Target struct {
	Scope   ScopeKind
	Project ident.ID // populated for ScopeProject and ScopeTag-resolved forms; empty otherwise
	Tag     ident.ID // populated for ScopeTag
	Task    ident.ID
}

// Parse parses one of the five textual forms: `:task`, `^:task`,
// `~:task`, `#tag:task`, `project:task`.
func Parse(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, errors.Wrap(ErrMalformedTarget, "empty target")
	}

	switch {
	case strings.HasPrefix(s, "^:"):
		task, err := parseTaskPart(s[2:], s)
		if err != nil {
			return Target{}, err
		}
		return Target{Scope: ScopeDeps, Task: task}, nil
	case strings.HasPrefix(s, "~:"):
		task, err := parseTaskPart(s[2:], s)
		if err != nil {
			return Target{}, err
		}
		return Target{Scope: ScopeSelf, Task: task}, nil
	case strings.HasPrefix(s, ":"):
		task, err := parseTaskPart(s[1:], s)
		if err != nil {
			return Target{}, err
		}
		return Target{Scope: ScopeAll, Task: task}, nil
	case strings.HasPrefix(s, "#"):
		rest := s[1:]
		idx := strings.IndexByte(rest, ':')
		if idx < 0 {
			return Target{}, errors.Wrapf(ErrMalformedTarget, "%q: missing ':' after tag", s)
		}
		tag, err := ident.ParseID(rest[:idx])
		if err != nil {
			return Target{}, errors.Wrapf(ErrMalformedTarget, "%q: invalid tag", s)
		}
		task, err := parseTaskPart(rest[idx+1:], s)
		if err != nil {
			return Target{}, err
		}
		return Target{Scope: ScopeTag, Tag: tag, Task: task}, nil
	default:
		idx := strings.IndexByte(s, ':')
		if idx < 0 {
			return Target{}, errors.Wrapf(ErrMalformedTarget, "%q: missing ':'", s)
		}
		proj, err := ident.ParseID(s[:idx])
		if err != nil {
			return Target{}, errors.Wrapf(ErrMalformedTarget, "%q: invalid project id", s)
		}
		task, err := parseTaskPart(s[idx+1:], s)
		if err != nil {
			return Target{}, err
		}
		return Target{Scope: ScopeProject, Project: proj, Task: task}, nil
	}
}

func parseTaskPart(raw, whole string) (ident.ID, error) {
	task, err := ident.ParseID(raw)
	if err != nil {
		return "", errors.Wrapf(ErrMalformedTarget, "%q: invalid task id", whole)
	}
	return task, nil
}

// MustParse panics on a malformed target. For literals known valid at
// compile time (constants, tests).
func MustParse(s string) Target {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// WithProject returns a copy of t attached to a concrete project,
// collapsing its scope to ScopeProject: once attached to a concrete
// task, a target always names its project.
func (t Target) WithProject(id ident.ID) Target {
	t.Scope = ScopeProject
	t.Project = id
	return t
}

// String renders t back to its canonical textual form.
func (t Target) String() string {
	switch t.Scope {
	case ScopeAll:
		return fmt.Sprintf(":%s", t.Task)
	case ScopeDeps:
		return fmt.Sprintf("^:%s", t.Task)
	case ScopeSelf:
		return fmt.Sprintf("~:%s", t.Task)
	case ScopeTag:
		return fmt.Sprintf("#%s:%s", t.Tag, t.Task)
	case ScopeProject:
		return fmt.Sprintf("%s:%s", t.Project, t.Task)
	default:
		return fmt.Sprintf("<unknown>:%s", t.Task)
	}
}

// Equal reports whether two Targets address the same thing. Used both
// directly and as the first component of action-node dedup identity.
func (t Target) Equal(o Target) bool {
	return t.Scope == o.Scope && t.Project == o.Project && t.Tag == o.Tag && t.Task == o.Task
}

// CheckRunScope returns ErrScopeNotAllowedInRun if t's scope is one of
// the two that run_task_by_target refuses.
func (t Target) CheckRunScope() error {
	switch t.Scope {
	case ScopeDeps:
		return errors.Wrapf(ErrScopeNotAllowedInRun, "%q: '^' scope requires a current project", t.String())
	case ScopeSelf:
		return errors.Wrapf(ErrScopeNotAllowedInRun, "%q: '~' scope requires a current project", t.String())
	default:
		return nil
	}
}
