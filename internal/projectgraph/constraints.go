package projectgraph

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/mason-build/mason/internal/ident"
	"github.com/mason-build/mason/internal/model"
)

// ConstraintError is a layering or tag violation; every violation
// names both projects and the rule that triggered.
type ConstraintError struct {
	Kind    string // "LayeringViolation" | "TagViolation"
	Message string
}

func (e *ConstraintError) Error() string { return e.Message }

var layerAllowed = map[model.Layer]map[model.Layer]bool{
	model.LayerApp: {model.LayerLibrary: true, model.LayerTool: true, model.LayerUnknown: true},
	model.LayerLibrary: {model.LayerLibrary: true, model.LayerUnknown: true},
	model.LayerTool: {model.LayerLibrary: true, model.LayerTool: true, model.LayerUnknown: true},
	model.LayerUnknown: {model.LayerApp: true, model.LayerLibrary: true, model.LayerTool: true, model.LayerUnknown: true},
}

// ValidateLayering enforces the fixed layer-edge table: apps may
// depend on libraries/tools/unknowns, libraries on libraries/unknowns,
// tools on libraries/tools/unknowns.
func (g *Graph) ValidateLayering() []error {
	var errs []error
	for _, p := range g.Sorted() {
		for _, dep := range p.Dependencies {
			target, ok := g.Projects[dep.ID]
			if !ok {
				continue
			}
			if allowed, ok := layerAllowed[p.Layer]; !ok || !allowed[target.Layer] {
				errs = append(errs, errors.WithStack(&ConstraintError{
					Kind: "LayeringViolation",
					Message: fmt.Sprintf(
						"Project %s with layer %s cannot depend on project %s with layer %s",
						p.ID, p.Layer, target.ID, target.Layer,
					),
				}))
			}
		}
	}
	return errs
}

// TagRules maps a tag to the tags its dependencies may carry.
type TagRules map[ident.ID][]ident.ID

// ValidateTags enforces: if the source project carries tag T with
// rules, each dependency must share T or carry at least one tag in
// T's allowed list.
func (g *Graph) ValidateTags(rules TagRules) []error {
	var errs []error
	for _, p := range g.Sorted() {
		for tag := range p.Tags {
			allowed, hasRule := rules[tag]
			if !hasRule {
				continue
			}
			allowedSet := ident.NewSet(allowed...)
			for _, dep := range p.Dependencies {
				target, ok := g.Projects[dep.ID]
				if !ok {
					continue
				}
				if target.Tags.Has(tag) {
					continue
				}
				if target.Tags.Intersects(allowedSet) {
					continue
				}
				errs = append(errs, errors.WithStack(&ConstraintError{
					Kind: "TagViolation",
					Message: fmt.Sprintf(
						"Project %s (tag %s) depends on project %s, which shares neither tag %s nor any tag in its allowed list",
						p.ID, tag, target.ID, tag,
					),
				}))
			}
		}
	}
	return errs
}
