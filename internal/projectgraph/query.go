package projectgraph

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/mason-build/mason/internal/model"
)

// Query field names.
const (
	FieldProject       = "project"
	FieldProjectSource = "projectSource"
	FieldProjectType   = "projectType"
	FieldLanguage      = "language"
	FieldTag           = "tag"
	FieldTask          = "task"
	FieldTaskToolchain = "taskToolchain"
	FieldTaskType      = "taskType"
)

// ErrMalformedQuery is returned for any input that doesn't parse as a
// well-formed boolean expression over field comparisons.
var ErrMalformedQuery = errors.New("malformed query")

// expr is the parsed query AST: either a comparison leaf or a boolean
// combination of two sub-expressions.
type expr struct {
	// leaf
	field string
	op    string // "=" | "!=" | "~"
	value string
	list  []string // populated instead of value for `[a,b]`

	// combinator
	and   bool
	or    bool
	left  *expr
	right *expr
}

// Parse parses a query string with fields, `=`/`!=`/`~` operators,
// `[a,b]` lists, `&&`/`||`, and parentheses.
func Parse(s string) (*expr, error) {
	p := &queryParser{toks: tokenize(s)}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, errors.Wrapf(ErrMalformedQuery, "unexpected trailing input at %q", s)
	}
	return e, nil
}

func tokenize(s string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			flush()
			i++
		case c == '(' || c == ')' || c == '[' || c == ']' || c == ',':
			flush()
			toks = append(toks, string(c))
			i++
		case strings.HasPrefix(s[i:], "&&"):
			flush()
			toks = append(toks, "&&")
			i += 2
		case strings.HasPrefix(s[i:], "||"):
			flush()
			toks = append(toks, "||")
			i += 2
		case strings.HasPrefix(s[i:], "!="):
			flush()
			toks = append(toks, "!=")
			i += 2
		case c == '=' || c == '~':
			flush()
			toks = append(toks, string(c))
			i++
		default:
			cur.WriteByte(c)
			i++
		}
	}
	flush()
	return toks
}

type queryParser struct {
	toks []string
	pos  int
}

func (p *queryParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *queryParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *queryParser) parseOr() (*expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == "||" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &expr{or: true, left: left, right: right}
	}
	return left, nil
}

func (p *queryParser) parseAnd() (*expr, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for p.peek() == "&&" {
		p.next()
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		left = &expr{and: true, left: left, right: right}
	}
	return left, nil
}

func (p *queryParser) parseAtom() (*expr, error) {
	if p.peek() == "(" {
		p.next()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next() != ")" {
			return nil, errors.Wrap(ErrMalformedQuery, "missing closing ')'")
		}
		return e, nil
	}
	field := p.next()
	if field == "" {
		return nil, errors.Wrap(ErrMalformedQuery, "expected field")
	}
	op := p.next()
	if op != "=" && op != "!=" && op != "~" {
		return nil, errors.Wrapf(ErrMalformedQuery, "expected operator after %q", field)
	}
	if p.peek() == "[" {
		p.next()
		var list []string
		for p.peek() != "]" {
			v := p.next()
			if v == "" {
				return nil, errors.Wrap(ErrMalformedQuery, "unterminated list")
			}
			list = append(list, v)
			if p.peek() == "," {
				p.next()
			}
		}
		p.next() // ']'
		return &expr{field: field, op: op, list: list}, nil
	}
	value := p.next()
	if value == "" {
		return nil, errors.Wrapf(ErrMalformedQuery, "expected value after %q %q", field, op)
	}
	return &expr{field: field, op: op, value: value}, nil
}

// projectValues extracts a query field's value(s) from p for
// evaluation. Tag is multi-valued; everything else is single-valued.
func projectValues(field string, p *model.Project) []string {
	switch field {
	case FieldProject:
		return []string{string(p.ID)}
	case FieldProjectSource:
		return []string{p.Source}
	case FieldProjectType:
		return []string{p.Layer.String()}
	case FieldLanguage:
		return []string{p.Language}
	case FieldTag:
		return p.SortedTags()
	case FieldTask:
		return taskFieldValues(p, func(t *model.Task) string { return string(t.ID) })
	case FieldTaskToolchain:
		return taskFieldValues(p, func(t *model.Task) string { return t.Runtime.Kind.String() })
	case FieldTaskType:
		return taskFieldValues(p, func(t *model.Task) string { return taskTypeName(t.Type) })
	default:
		return nil
	}
}

func taskFieldValues(p *model.Project, f func(*model.Task) string) []string {
	out := make([]string, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		out = append(out, f(t))
	}
	return out
}

func taskTypeName(t model.TaskType) string {
	switch t {
	case model.TaskBuild:
		return "build"
	case model.TaskRun:
		return "run"
	case model.TaskTest:
		return "test"
	default:
		return "unknown"
	}
}

func matches(op, candidate, want string) bool {
	switch op {
	case "=":
		return candidate == want
	case "!=":
		return candidate != want
	case "~":
		return strings.Contains(candidate, want)
	default:
		return false
	}
}

func (e *expr) eval(p *model.Project) bool {
	if e.and {
		return e.left.eval(p) && e.right.eval(p)
	}
	if e.or {
		return e.left.eval(p) || e.right.eval(p)
	}
	vals := projectValues(e.field, p)
	if len(e.list) > 0 {
		for _, want := range e.list {
			for _, v := range vals {
				if matches("=", v, want) {
					return e.op != "!="
				}
			}
		}
		return e.op == "!="
	}
	for _, v := range vals {
		if matches(e.op, v, e.value) {
			return true
		}
	}
	// != against an empty candidate set is vacuously true
	return len(vals) == 0 && e.op == "!="
}

// Evaluate returns the set of projects in g matching query q.
func (g *Graph) Evaluate(q string) ([]*model.Project, error) {
	e, err := Parse(q)
	if err != nil {
		return nil, err
	}
	var out []*model.Project
	for _, p := range g.Sorted() {
		if e.eval(p) {
			out = append(out, p)
		}
	}
	return out, nil
}
