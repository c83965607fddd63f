package token

import "os"

// envLookup resolves a bare environment variable reference encountered
// in a `$NAME` token that isn't one of the known ambient/project/task
// variables. Missing variables resolve to the empty string rather than
// erroring, so a task referencing an unset variable still expands.
func envLookup(name string) string {
	v, _ := os.LookupEnv(name)
	return v
}
