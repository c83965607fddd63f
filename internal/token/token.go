// Package token implements the Token Expander: a pure
// function family over (Project, Task, Context) that substitutes
// `@fn(arg)` function tokens and `$var`/`${var}` variable tokens in a
// task's command, args, env, inputs, outputs, and script fields.
package token

import (
	"fmt"
	"regexp"

	"github.com/pkg/errors"
)

// Field identifies which part of a task a string came from, since the
// legality of each token differs by field.
type Field int

const (
	FieldCommand Field = iota
	FieldArgs
	FieldScript
	FieldEnvValue
	FieldInputs
	FieldOutputs
)

func (f Field) String() string {
	switch f {
	case FieldCommand:
		return "command"
	case FieldArgs:
		return "args"
	case FieldScript:
		return "script"
	case FieldEnvValue:
		return "env value"
	case FieldInputs:
		return "inputs"
	case FieldOutputs:
		return "outputs"
	default:
		return "unknown field"
	}
}

// FuncName is one of the nine `@fn(arg)` token functions.
type FuncName string

const (
	FuncGroup FuncName = "group"
	FuncDirs  FuncName = "dirs"
	FuncFiles FuncName = "files"
	FuncGlobs FuncName = "globs"
	FuncRoot  FuncName = "root"
	FuncEnvs  FuncName = "envs"
	FuncIn    FuncName = "in"
	FuncOut   FuncName = "out"
	FuncMeta  FuncName = "meta"
)

// ErrorKind enumerates the ways token expansion can fail.
type ErrorKind int

const (
	ErrUnknownToken ErrorKind = iota
	ErrUnknownFileGroup
	ErrInvalidTokenIndex
	ErrTokenNotAllowedInField
)

// Error is the typed error the expander returns. It always carries the
// field and the raw token text that triggered it.
type Error struct {
	Kind  ErrorKind
	Field Field
	Token string
	cause error
}

func (e *Error) Error() string {
	var kind string
	switch e.Kind {
	case ErrUnknownToken:
		kind = "unknown token"
	case ErrUnknownFileGroup:
		kind = "unknown file group"
	case ErrInvalidTokenIndex:
		kind = "invalid token index"
	case ErrTokenNotAllowedInField:
		kind = "token not allowed in field"
	}
	msg := fmt.Sprintf("%s: %q in %s", kind, e.Token, e.Field)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

func newErr(kind ErrorKind, field Field, token string, cause error) *Error {
	return &Error{Kind: kind, Field: field, Token: token, cause: cause}
}

// funcToken matches `@name(arg)`. The arg runs up to the first ')', so
// it cannot itself contain a ')'.
var funcToken = regexp.MustCompile(`@([a-z]+)\(([^)]*)\)`)

// varToken matches `$ident` or `${ident}`.
var varToken = regexp.MustCompile(`\$\{([A-Za-z][A-Za-z0-9_]*)\}|\$([A-Za-z][A-Za-z0-9_]*)`)

var knownVars = map[string]struct{}{
	"language": {}, "project": {}, "projectAlias": {}, "projectSource": {},
	"projectRoot": {}, "projectStack": {}, "projectType": {}, "task": {},
	"taskPlatform": {}, "taskToolchain": {}, "taskType": {}, "target": {},
	"workspaceRoot": {}, "workingDir": {}, "date": {}, "time": {},
	"datetime": {}, "timestamp": {}, "arch": {}, "os": {}, "osFamily": {},
	"vcsBranch": {}, "vcsRepository": {}, "vcsRevision": {},
}

var errBadIndex = errors.New("index must be a non-negative integer")
