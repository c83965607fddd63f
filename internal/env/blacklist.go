package env

// ciMetadataBlacklist enumerates environment variables that are
// well-known CI metadata: they vary every run (build numbers, commit
// SHAs duplicated from the VCS adapter, timestamps) and would make
// every task hash unstable if allowed to contribute to input_env.
// The blacklist is an enumerated set, not a heuristic.
var ciMetadataBlacklist = map[string]struct{}{
	"CI":                    {},
	"CI_JOB_ID":             {},
	"CI_PIPELINE_ID":        {},
	"CI_BUILD_NUMBER":       {},
	"BUILD_NUMBER":          {},
	"BUILD_ID":              {},
	"GITHUB_RUN_ID":         {},
	"GITHUB_RUN_NUMBER":     {},
	"GITHUB_RUN_ATTEMPT":    {},
	"GITHUB_SHA":            {},
	"GITLAB_CI":             {},
	"CIRCLE_BUILD_NUM":      {},
	"CIRCLE_SHA1":           {},
	"TRAVIS_BUILD_NUMBER":   {},
	"TRAVIS_COMMIT":         {},
	"BUILDKITE_BUILD_NUMBER": {},
	"BUILDKITE_COMMIT":      {},
}

// Blacklisted reports whether name is a well-known CI metadata
// variable that must never contribute to a task's input_env, even
// when referenced explicitly as `$name` in a hashed field.
func Blacklisted(name string) bool {
	_, ok := ciMetadataBlacklist[name]
	return ok
}
