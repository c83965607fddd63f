package projectgraph

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/mason-build/mason/internal/ident"
	"github.com/mason-build/mason/internal/model"
)

func buildQueryGraph(t *testing.T) *Graph {
	t.Helper()
	candidates := []Discovered{
		{ID: ident.MustID("web"), Source: "apps/web", Root: "/repo/apps/web", Layer: model.LayerApp, Language: "typescript", Tags: []ident.ID{ident.MustID("frontend")}},
		{ID: ident.MustID("api"), Source: "apps/api", Root: "/repo/apps/api", Layer: model.LayerApp, Language: "go", Tags: []ident.ID{ident.MustID("backend")}},
		{ID: ident.MustID("utils"), Source: "libs/utils", Root: "/repo/libs/utils", Layer: model.LayerLibrary, Language: "go", Tags: []ident.ID{ident.MustID("backend"), ident.MustID("shared")}},
	}
	g, err := Build(candidates, nil, nil, nil)
	assert.NilError(t, err)
	return g
}

func TestEvaluateEquality(t *testing.T) {
	g := buildQueryGraph(t)
	out, err := g.Evaluate("language=go")
	assert.NilError(t, err)
	assert.Equal(t, len(out), 2)
}

func TestEvaluateInequality(t *testing.T) {
	g := buildQueryGraph(t)
	out, err := g.Evaluate("language!=go")
	assert.NilError(t, err)
	assert.Equal(t, len(out), 1)
	assert.Equal(t, out[0].ID, ident.MustID("web"))
}

func TestEvaluateSubstring(t *testing.T) {
	g := buildQueryGraph(t)
	out, err := g.Evaluate("project~ap")
	assert.NilError(t, err)
	assert.Equal(t, len(out), 1)
	assert.Equal(t, out[0].ID, ident.MustID("api"))
}

func TestEvaluateTagIsMultiValued(t *testing.T) {
	g := buildQueryGraph(t)
	out, err := g.Evaluate("tag=shared")
	assert.NilError(t, err)
	assert.Equal(t, len(out), 1)
	assert.Equal(t, out[0].ID, ident.MustID("utils"))
}

func TestEvaluateList(t *testing.T) {
	g := buildQueryGraph(t)
	out, err := g.Evaluate("project=[web,api]")
	assert.NilError(t, err)
	assert.Equal(t, len(out), 2)
}

func TestEvaluateAndOr(t *testing.T) {
	g := buildQueryGraph(t)
	out, err := g.Evaluate("language=go && tag=shared")
	assert.NilError(t, err)
	assert.Equal(t, len(out), 1)
	assert.Equal(t, out[0].ID, ident.MustID("utils"))

	out, err = g.Evaluate("project=web || project=api")
	assert.NilError(t, err)
	assert.Equal(t, len(out), 2)
}

func TestEvaluateParentheses(t *testing.T) {
	g := buildQueryGraph(t)
	out, err := g.Evaluate("(project=web || project=api) && language=go")
	assert.NilError(t, err)
	assert.Equal(t, len(out), 1)
	assert.Equal(t, out[0].ID, ident.MustID("api"))
}

func TestParseMalformedQuery(t *testing.T) {
	cases := []string{"", "project", "project=", "(project=web", "project==web"}
	for _, s := range cases {
		_, err := Parse(s)
		assert.Assert(t, err != nil, s)
	}
}
