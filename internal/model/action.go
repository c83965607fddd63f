package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mason-build/mason/internal/ident"
)

// ActionKind is the tag of the closed ActionNode variant.
type ActionKind int

const (
	ActionSyncWorkspace ActionKind = iota
	ActionSetupToolchain
	ActionInstallWorkspaceDeps
	ActionInstallProjectDeps
	ActionSyncProject
	ActionRunTask
)

func (k ActionKind) String() string {
	switch k {
	case ActionSyncWorkspace:
		return "SyncWorkspace"
	case ActionSetupToolchain:
		return "SetupToolchain"
	case ActionInstallWorkspaceDeps:
		return "InstallWorkspaceDeps"
	case ActionInstallProjectDeps:
		return "InstallProjectDeps"
	case ActionSyncProject:
		return "SyncProject"
	case ActionRunTask:
		return "RunTask"
	default:
		return "Unknown"
	}
}

// ActionNode is one node in the action graph. Node identity for
// deduplication is the full structural content of the variant: two
// RunTask nodes with identical target+args+env
// collapse to one.
type ActionNode struct {
	Kind ActionKind

	// SetupToolchain, InstallWorkspaceDeps, InstallProjectDeps, SyncProject
	Runtime Runtime

	// InstallProjectDeps, SyncProject, RunTask
	Project ident.ID

	// RunTask
	Target      string
	Args        []string
	Env         map[string]string
	Interactive bool
	Persistent  bool
}

// Key renders the node's full structural content as a stable string,
// used both as the dag vertex name and as the dedup key.
func (n ActionNode) Key() string {
	switch n.Kind {
	case ActionSyncWorkspace:
		return "SyncWorkspace"
	case ActionSetupToolchain:
		return fmt.Sprintf("SetupToolchain(%s:%s)", n.Runtime.Kind, n.Runtime.VersionOrMarker())
	case ActionInstallWorkspaceDeps:
		return fmt.Sprintf("InstallWorkspaceDeps(%s)", n.Runtime.Kind)
	case ActionInstallProjectDeps:
		return fmt.Sprintf("InstallProjectDeps(%s,%s)", n.Project, n.Runtime.Kind)
	case ActionSyncProject:
		return fmt.Sprintf("SyncProject(%s)", n.Project)
	case ActionRunTask:
		return fmt.Sprintf("RunTask(%s|%s|%s)", n.Target, strings.Join(n.Args, "\x1f"), envKey(n.Env))
	default:
		return "Unknown"
	}
}

func envKey(env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s;", k, env[k])
	}
	return b.String()
}

func (r RuntimeKind) String() string {
	switch r {
	case RuntimeSystem:
		return "system"
	case RuntimeGlobal:
		return "global"
	case RuntimeNode:
		return "node"
	case RuntimeBun:
		return "bun"
	case RuntimeDeno:
		return "deno"
	case RuntimeRust:
		return "rust"
	default:
		return "unknown"
	}
}
