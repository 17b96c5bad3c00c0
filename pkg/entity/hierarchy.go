package entity

import (
	"fmt"

	"github.com/dukex/composer/pkg/models"
)

// Lookup resolves an entity id to its definition. Unknown ids return false.
type Lookup func(id string) (*models.Entity, bool)

// ChildIDs lists the entity ids invoked by the plan, in step order.
func ChildIDs(e *models.Entity) []string {
	var ids []string

	for _, step := range e.Steps() {
		if step.Target.EntityID != "" {
			ids = append(ids, step.Target.EntityID)
		}
	}

	return ids
}

// ValidateHierarchy walks child references transitively and reports a
// self_reference when the entity is reachable from its own plan, or a cycle
// when any other loop exists below it. Unknown ids are skipped.
func ValidateHierarchy(e *models.Entity, lookup Lookup) FieldErrors {
	var errs FieldErrors

	visited := make(map[string]bool)
	onPath := make(map[string]bool)

	var walk func(id string, path []string)

	walk = func(id string, path []string) {
		if e.ID != "" && id == e.ID {
			errs = append(errs, FieldError{
				Field:   stepsField,
				Code:    CodeSelfReference,
				Message: fmt.Sprintf("entity is reachable from its own plan via %v", path),
			})

			return
		}

		if onPath[id] {
			errs = append(errs, FieldError{
				Field:   stepsField,
				Code:    CodeCycle,
				Message: fmt.Sprintf("child entities form a cycle via %v", path),
			})

			return
		}

		if visited[id] {
			return
		}

		visited[id] = true

		child, ok := lookup(id)
		if !ok || child == nil {
			return
		}

		onPath[id] = true

		for _, next := range ChildIDs(child) {
			walk(next, append(path[:len(path):len(path)], next))
		}

		onPath[id] = false
	}

	for _, id := range ChildIDs(e) {
		walk(id, []string{id})
	}

	return errs
}
