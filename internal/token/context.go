package token

// Context carries the ambient values `$var` tokens resolve to: things
// that are true of the invocation rather than of any single project or
// task. It is supplied once per
// run by the caller (the CLI shell or a test harness), never computed
// by the expander itself.
type Context struct {
	WorkspaceRoot string
	WorkingDir    string
	Date          string
	Time          string
	DateTime      string
	Timestamp     string
	Arch          string
	OS            string
	OSFamily      string
	VCSBranch     string
	VCSRepository string
	VCSRevision   string
}

// projectVars and taskVars are the per-project/per-task variable
// values; they're derived from the Project/Task being expanded, not
// carried on Context, since they change with every call.
type projectVars struct {
	language      string
	project       string
	projectAlias  string
	projectSource string
	projectRoot   string
	projectStack  string
	projectType   string
}

type taskVars struct {
	task          string
	taskPlatform  string
	taskToolchain string
	taskType      string
	target        string
}

func (e *Expander) varValue(name string) (string, bool) {
	switch name {
	case "language":
		return e.proj.language, true
	case "project":
		return e.proj.project, true
	case "projectAlias":
		return e.proj.projectAlias, true
	case "projectSource":
		return e.proj.projectSource, true
	case "projectRoot":
		return e.proj.projectRoot, true
	case "projectStack":
		return e.proj.projectStack, true
	case "projectType":
		return e.proj.projectType, true
	case "task":
		return e.task.task, true
	case "taskPlatform":
		return e.task.taskPlatform, true
	case "taskToolchain":
		return e.task.taskToolchain, true
	case "taskType":
		return e.task.taskType, true
	case "target":
		return e.task.target, true
	case "workspaceRoot":
		return e.ctx.WorkspaceRoot, true
	case "workingDir":
		return e.ctx.WorkingDir, true
	case "date":
		return e.ctx.Date, true
	case "time":
		return e.ctx.Time, true
	case "datetime":
		return e.ctx.DateTime, true
	case "timestamp":
		return e.ctx.Timestamp, true
	case "arch":
		return e.ctx.Arch, true
	case "os":
		return e.ctx.OS, true
	case "osFamily":
		return e.ctx.OSFamily, true
	case "vcsBranch":
		return e.ctx.VCSBranch, true
	case "vcsRepository":
		return e.ctx.VCSRepository, true
	case "vcsRevision":
		return e.ctx.VCSRevision, true
	default:
		return "", false
	}
}
