package convert

import (
	"fmt"
	"slices"

	"github.com/dukex/composer/pkg/graph"
	"github.com/dukex/composer/pkg/models"
)

const placeholderDescription = "Configure this node..."

// Resolver looks references up in the catalog snapshot.
type Resolver interface {
	ResolveEntity(id string) (models.EntitySummary, bool)
	ResolveTool(name string) (models.Tool, bool)
}

// Options configure a forward conversion.
type Options struct {
	// EntityID is the entity being edited; references to it are rejected.
	EntityID string
	// Resolver, when set, rejects references missing from the catalog.
	Resolver Resolver
}

// Plan is the forward conversion result.
type Plan struct {
	Steps     []models.Step     `json:"steps"`
	Hierarchy *models.Hierarchy `json:"hierarchy"`
}

// ToPlan orders the non-root nodes and emits one step per node. Any error
// blocks conversion and the returned error is ConversionErrors.
func ToPlan(g graph.Graph, opts Options) (*Plan, error) {
	nodes, edges := planSubgraph(g)

	errs := checkReferences(nodes, opts)
	errs = append(errs, checkShape(nodes, edges)...)

	var ordered []graph.Node

	if len(errs) == 0 {
		var orderErrs ConversionErrors

		ordered, orderErrs = order(nodes, edges)
		errs = append(errs, orderErrs...)
	}

	if len(errs) > 0 {
		return nil, errs
	}

	plan := &Plan{
		Steps:     make([]models.Step, 0, len(ordered)),
		Hierarchy: &models.Hierarchy{Children: []models.HierarchyChild{}},
	}

	for i, node := range ordered {
		step := toStep(node, i+1)
		plan.Steps = append(plan.Steps, step)

		if step.Target.EntityID != "" {
			plan.Hierarchy.Children = append(plan.Hierarchy.Children, models.HierarchyChild{
				ChildID:      step.Target.EntityID,
				ChildType:    node.Data.EntityRef.Type,
				Relationship: models.ChildRelationshipSequential,
			})
		}
	}

	plan.Hierarchy.IsAtomic = len(plan.Steps) == 0

	return plan, nil
}

// ChainOrder returns the non-root nodes in execution order. Unlike ToPlan it
// does not check references, so partially linked drafts can be reordered.
func ChainOrder(g graph.Graph) ([]graph.Node, error) {
	nodes, edges := planSubgraph(g)

	if errs := checkShape(nodes, edges); len(errs) > 0 {
		return nil, errs
	}

	ordered, errs := order(nodes, edges)
	if len(errs) > 0 {
		return nil, errs
	}

	return ordered, nil
}

// ApplyPlan writes the converted plan onto the entity.
func ApplyPlan(e *models.Entity, plan *Plan) {
	e.SetSteps(plan.Steps)
	e.Hierarchy = plan.Hierarchy
}

// planSubgraph drops the root node and any edge touching it or a missing node.
func planSubgraph(g graph.Graph) ([]graph.Node, []graph.Edge) {
	nodes := make([]graph.Node, 0, len(g.Nodes))
	known := make(map[string]bool, len(g.Nodes))

	for _, n := range g.Nodes {
		if n.IsRoot() {
			continue
		}

		nodes = append(nodes, n)
		known[n.ID] = true
	}

	slices.SortStableFunc(nodes, func(a, b graph.Node) int { return a.Seq - b.Seq })

	edges := make([]graph.Edge, 0, len(g.Edges))

	for _, e := range g.Edges {
		if known[e.Source] && known[e.Target] {
			edges = append(edges, e)
		}
	}

	return nodes, edges
}

func checkReferences(nodes []graph.Node, opts Options) ConversionErrors {
	var errs ConversionErrors

	for _, n := range nodes {
		data := n.Data

		switch {
		case data.EntityRef != nil && data.EntityRef.ID == "",
			data.ToolRef != nil && data.ToolRef.ToolID == "":
			errs = append(errs, ConversionError{
				Code:    CodeUnresolvedReference,
				NodeID:  n.ID,
				Message: fmt.Sprintf("%q links a library item without an id", data.Label),
			})
		case data.EntityRef != nil:
			if opts.EntityID != "" && data.EntityRef.ID == opts.EntityID {
				errs = append(errs, ConversionError{
					Code:    CodeSelfReference,
					NodeID:  n.ID,
					Message: "an entity cannot invoke itself",
				})

				continue
			}

			if opts.Resolver != nil {
				if _, ok := opts.Resolver.ResolveEntity(data.EntityRef.ID); !ok {
					errs = append(errs, ConversionError{
						Code:    CodeUnresolvedReference,
						NodeID:  n.ID,
						Message: fmt.Sprintf("entity %s is not in the library", data.EntityRef.ID),
					})
				}
			}
		case data.ToolRef != nil:
			if opts.Resolver != nil {
				if _, ok := opts.Resolver.ResolveTool(data.ToolRef.ToolID); !ok {
					errs = append(errs, ConversionError{
						Code:    CodeUnresolvedReference,
						NodeID:  n.ID,
						Message: fmt.Sprintf("tool %s is not in the library", data.ToolRef.ToolID),
					})
				}
			}
		case !isInlinePrompt(n):
			errs = append(errs, ConversionError{
				Code:    CodeUnresolvedReference,
				NodeID:  n.ID,
				Message: fmt.Sprintf("%q must be linked to a library item", data.Label),
			})
		}
	}

	return errs
}

// isInlinePrompt reports whether an unlinked node can stand as a prompt step:
// only ACTION nodes whose description was written by the operator.
func isInlinePrompt(n graph.Node) bool {
	return n.Kind == graph.NodeKindEntity &&
		n.Data.Type == string(models.EntityTypeAction) &&
		n.Data.Description != "" &&
		n.Data.Description != placeholderDescription
}

func checkShape(nodes []graph.Node, edges []graph.Edge) ConversionErrors {
	var errs ConversionErrors

	if len(edges) == 0 {
		return nil
	}

	in := make(map[string]int, len(nodes))
	out := make(map[string]int, len(nodes))

	for _, e := range edges {
		out[e.Source]++
		in[e.Target]++
	}

	var roots []string

	for _, n := range nodes {
		if in[n.ID] > 1 || out[n.ID] > 1 {
			errs = append(errs, ConversionError{
				Code:    CodeUnsupportedShape,
				NodeID:  n.ID,
				Message: "only linear chains are supported; the node branches or merges",
			})
		}

		if in[n.ID] == 0 {
			roots = append(roots, n.ID)
		}
	}

	if len(roots) > 1 {
		errs = append(errs, ConversionError{
			Code:    CodeMultipleRoots,
			Message: fmt.Sprintf("the graph has %d starting nodes %v; connect them into one chain", len(roots), roots),
		})
	}

	if cycle := findCycle(nodes, edges); len(cycle) > 0 {
		errs = append(errs, ConversionError{
			Code:    CodeCycle,
			NodeID:  cycle[0],
			Message: fmt.Sprintf("the nodes %v form a cycle", cycle),
		})
	}

	return errs
}

// findCycle runs a colouring DFS and returns the nodes of the first cycle found.
func findCycle(nodes []graph.Node, edges []graph.Edge) []string {
	const (
		white = iota
		grey
		black
	)

	adjacency := make(map[string][]string, len(nodes))
	for _, e := range edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	colour := make(map[string]int, len(nodes))

	var (
		path  []string
		found []string
	)

	var visit func(id string) bool

	visit = func(id string) bool {
		colour[id] = grey
		path = append(path, id)

		for _, next := range adjacency[id] {
			switch colour[next] {
			case grey:
				start := slices.Index(path, next)
				found = slices.Clone(path[start:])

				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}

		colour[id] = black
		path = path[:len(path)-1]

		return false
	}

	for _, n := range nodes {
		if colour[n.ID] == white && visit(n.ID) {
			return found
		}
	}

	return nil
}

// order returns nodes in creation order when there are no edges, otherwise
// walks the chain from its unique source.
func order(nodes []graph.Node, edges []graph.Edge) ([]graph.Node, ConversionErrors) {
	if len(edges) == 0 {
		return nodes, nil
	}

	byID := make(map[string]graph.Node, len(nodes))
	next := make(map[string]string, len(edges))
	hasIncoming := make(map[string]bool, len(edges))

	for _, n := range nodes {
		byID[n.ID] = n
	}

	for _, e := range edges {
		next[e.Source] = e.Target
		hasIncoming[e.Target] = true
	}

	var source string

	for _, n := range nodes {
		if !hasIncoming[n.ID] {
			source = n.ID

			break
		}
	}

	ordered := make([]graph.Node, 0, len(nodes))
	visited := make(map[string]bool, len(nodes))

	for current := source; current != "" && !visited[current]; current = next[current] {
		visited[current] = true
		ordered = append(ordered, byID[current])
	}

	if len(ordered) != len(nodes) {
		var errs ConversionErrors

		for _, n := range nodes {
			if !visited[n.ID] {
				errs = append(errs, ConversionError{
					Code:    CodeDisconnected,
					NodeID:  n.ID,
					Message: "node is not part of the chain",
				})
			}
		}

		return nil, errs
	}

	return ordered, nil
}

func toStep(n graph.Node, position int) models.Step {
	step := models.Step{
		StepID:      n.ID,
		Order:       position,
		Name:        n.Data.Label,
		Description: n.Data.Description,
		Required:    n.Data.IsRequired(),
	}

	switch {
	case n.Data.EntityRef != nil:
		step.Target.EntityID = n.Data.EntityRef.ID
	case n.Data.ToolRef != nil:
		step.Target.ToolID = n.Data.ToolRef.ToolID
	default:
		step.Target.PromptTemplate = n.Data.Description
	}

	step.Type = step.Target.Kind()

	return step
}
