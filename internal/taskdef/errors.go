package taskdef

import "github.com/pkg/errors"

// ErrorKind enumerates the Configuration-category errors taskdef can
// raise.
type ErrorKind int

const (
	ErrUnknownTask ErrorKind = iota
	ErrExtendsUnknown
	ErrExtendsCycle
	ErrUnknownFileGroup
	ErrInvalidOutputPath
)

func (k ErrorKind) String() string {
	switch k {
	case ErrUnknownTask:
		return "UnknownTask"
	case ErrExtendsUnknown:
		return "ExtendsUnknown"
	case ErrExtendsCycle:
		return "ExtendsCycle"
	case ErrUnknownFileGroup:
		return "UnknownFileGroup"
	case ErrInvalidOutputPath:
		return "InvalidOutputPath"
	default:
		return "Unknown"
	}
}

// Error carries the offending target and a short explanation.
type Error struct {
	Kind   ErrorKind
	Target string
	Msg    string
}

func (e *Error) Error() string {
	return e.Kind.String() + " for " + e.Target + ": " + e.Msg
}

func newErr(kind ErrorKind, target, msg string) error {
	return errors.WithStack(&Error{Kind: kind, Target: target, Msg: msg})
}
