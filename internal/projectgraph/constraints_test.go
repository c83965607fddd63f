package projectgraph

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/mason-build/mason/internal/ident"
	"github.com/mason-build/mason/internal/model"
)

func projectWith(id string, layer model.Layer, tags ...ident.ID) Discovered {
	return Discovered{ID: ident.MustID(id), Source: id, Root: "/repo/" + id, Layer: layer, Tags: tags}
}

func TestValidateLayeringAllowsLibraryDependency(t *testing.T) {
	candidates := []Discovered{
		projectWith("app", model.LayerApp),
		projectWith("lib", model.LayerLibrary),
	}
	g, err := Build(candidates, nil, nil, nil)
	assert.NilError(t, err)
	g.Projects[ident.MustID("app")].Dependencies = []model.DependencyConfig{
		{ID: ident.MustID("lib"), Scope: model.ScopeProduction},
	}

	errs := g.ValidateLayering()
	assert.Equal(t, len(errs), 0)
}

func TestValidateLayeringRejectsLibraryDependingOnApp(t *testing.T) {
	candidates := []Discovered{
		projectWith("app", model.LayerApp),
		projectWith("lib", model.LayerLibrary),
	}
	g, err := Build(candidates, nil, nil, nil)
	assert.NilError(t, err)
	g.Projects[ident.MustID("lib")].Dependencies = []model.DependencyConfig{
		{ID: ident.MustID("app"), Scope: model.ScopeProduction},
	}

	errs := g.ValidateLayering()
	assert.Equal(t, len(errs), 1)
	var cErr *ConstraintError
	assert.Assert(t, errors.As(errs[0], &cErr))
	assert.Equal(t, cErr.Kind, "LayeringViolation")
}

func TestValidateTagsAllowsSharedTag(t *testing.T) {
	candidates := []Discovered{
		projectWith("app", model.LayerApp, ident.MustID("frontend")),
		projectWith("lib", model.LayerLibrary, ident.MustID("frontend")),
	}
	g, err := Build(candidates, nil, nil, nil)
	assert.NilError(t, err)
	g.Projects[ident.MustID("app")].Dependencies = []model.DependencyConfig{
		{ID: ident.MustID("lib"), Scope: model.ScopeProduction},
	}

	rules := TagRules{ident.MustID("frontend"): nil}
	errs := g.ValidateTags(rules)
	assert.Equal(t, len(errs), 0)
}

func TestValidateTagsRejectsDisjointTags(t *testing.T) {
	candidates := []Discovered{
		projectWith("app", model.LayerApp, ident.MustID("frontend")),
		projectWith("lib", model.LayerLibrary, ident.MustID("backend")),
	}
	g, err := Build(candidates, nil, nil, nil)
	assert.NilError(t, err)
	g.Projects[ident.MustID("app")].Dependencies = []model.DependencyConfig{
		{ID: ident.MustID("lib"), Scope: model.ScopeProduction},
	}

	rules := TagRules{ident.MustID("frontend"): nil}
	errs := g.ValidateTags(rules)
	assert.Equal(t, len(errs), 1)
	var cErr *ConstraintError
	assert.Assert(t, errors.As(errs[0], &cErr))
	assert.Equal(t, cErr.Kind, "TagViolation")
}

func TestValidateTagsAllowedListPermitsDependency(t *testing.T) {
	candidates := []Discovered{
		projectWith("app", model.LayerApp, ident.MustID("frontend")),
		projectWith("lib", model.LayerLibrary, ident.MustID("shared")),
	}
	g, err := Build(candidates, nil, nil, nil)
	assert.NilError(t, err)
	g.Projects[ident.MustID("app")].Dependencies = []model.DependencyConfig{
		{ID: ident.MustID("lib"), Scope: model.ScopeProduction},
	}

	rules := TagRules{ident.MustID("frontend"): []ident.ID{ident.MustID("shared")}}
	errs := g.ValidateTags(rules)
	assert.Equal(t, len(errs), 0)
}

