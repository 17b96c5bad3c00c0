package convert

import (
	"fmt"
	"slices"

	"github.com/dukex/composer/pkg/graph"
	"github.com/dukex/composer/pkg/models"
)

// Layout places reverse-converted nodes in a vertical column.
type Layout struct {
	Origin  graph.Position
	Spacing float64
}

var DefaultLayout = Layout{Origin: graph.Position{X: 250, Y: 50}, Spacing: 150}

// GraphOptions configure a reverse conversion.
type GraphOptions struct {
	Layout Layout
	// Resolver, when set, fills labels and types of linked nodes.
	Resolver Resolver
}

// ToGraph draws a synthetic root plus one node per step, linked in step order.
func ToGraph(e *models.Entity, opts GraphOptions) (graph.Graph, error) {
	composite, ok := e.Kind().(models.CompositeKind)
	if !ok {
		return graph.Graph{}, ErrNotComposite
	}

	layout := opts.Layout
	if layout.Spacing == 0 {
		layout = DefaultLayout
	}

	steps := slices.Clone(composite.Steps)
	slices.SortStableFunc(steps, func(a, b models.Step) int { return a.Order - b.Order })

	if err := checkChainPlan(steps); err != nil {
		return graph.Graph{}, err
	}

	childTypes := make(map[string]models.EntityType)
	if e.Hierarchy != nil {
		for _, child := range e.Hierarchy.Children {
			childTypes[child.ChildID] = child.ChildType
		}
	}

	g := graph.Graph{
		Nodes: make([]graph.Node, 0, len(steps)+1),
		Edges: make([]graph.Edge, 0, len(steps)),
	}

	g.Nodes = append(g.Nodes, graph.Node{
		ID:       graph.RootID,
		Kind:     graph.NodeKindRoot,
		Position: layout.Origin,
		Seq:      0,
		Data: graph.NodeData{
			Label:       e.Label(),
			Description: e.Description,
			Type:        string(e.Type),
			EntityRef:   &graph.EntityRef{ID: e.ID, Name: e.Name, Type: e.Type},
		},
	})

	previous := graph.RootID
	edgeIDs := make(map[string]bool, len(steps))
	taken := func(id string) bool { return edgeIDs[id] }

	for i, step := range steps {
		node := stepNode(step, childTypes, opts.Resolver)
		node.Seq = i + 1
		node.Position = graph.Position{
			X: layout.Origin.X,
			Y: layout.Origin.Y + float64(i+1)*layout.Spacing,
		}

		edgeID := graph.EdgeID(previous, node.ID, taken)
		edgeIDs[edgeID] = true

		g.Nodes = append(g.Nodes, node)
		g.Edges = append(g.Edges, graph.Edge{
			ID:     edgeID,
			Source: previous,
			Target: node.ID,
		})
		previous = node.ID
	}

	return g, nil
}

func checkChainPlan(steps []models.Step) error {
	seen := make(map[string]bool, len(steps))

	for i, step := range steps {
		if step.Order != i+1 {
			return fmt.Errorf("%w: step %s has order %d, expected %d", ErrUnsupportedPlan, step.StepID, step.Order, i+1)
		}

		if step.StepID == "" || step.StepID == graph.RootID || seen[step.StepID] {
			return fmt.Errorf("%w: step id %q is missing, reserved or repeated", ErrUnsupportedPlan, step.StepID)
		}

		seen[step.StepID] = true
	}

	return nil
}

func stepNode(step models.Step, childTypes map[string]models.EntityType, resolver Resolver) graph.Node {
	node := graph.Node{
		ID:   step.StepID,
		Kind: graph.NodeKindEntity,
		Data: graph.NodeData{
			Label:       step.Name,
			Description: step.Description,
		},
	}

	if !step.Required {
		required := false
		node.Data.Required = &required
	}

	switch {
	case step.Target.EntityID != "":
		ref := &graph.EntityRef{ID: step.Target.EntityID, Type: childTypes[step.Target.EntityID]}

		if resolver != nil {
			if summary, ok := resolver.ResolveEntity(ref.ID); ok {
				ref.Name = summary.Name
				ref.Type = summary.Type

				if node.Data.Label == "" {
					node.Data.Label = summary.DisplayName
				}
			}
		}

		node.Data.Type = string(ref.Type)
		node.Data.EntityRef = ref
	case step.Target.ToolID != "":
		node.Kind = graph.NodeKindTool
		node.Data.Type = graph.NodeTypeTool
		node.Data.ToolRef = &graph.ToolRef{ToolID: step.Target.ToolID, Name: step.Target.ToolID}
	default:
		node.Data.Type = string(models.EntityTypeAction)
		node.Data.Description = step.Target.PromptTemplate
	}

	if node.Data.Label == "" {
		node.Data.Label = step.StepID
	}

	return node
}

// Shape classifies a graph for the editor.
type Shape string

const (
	ShapeEmpty     Shape = "empty"
	ShapeChain     Shape = "chain"
	ShapeBranching Shape = "branching"
	ShapeCyclic    Shape = "cyclic"
)

// Classify reports whether the plan portion of a graph is convertible.
func Classify(g graph.Graph) Shape {
	nodes, edges := planSubgraph(g)

	if len(nodes) == 0 {
		return ShapeEmpty
	}

	if len(findCycle(nodes, edges)) > 0 {
		return ShapeCyclic
	}

	if len(edges) == 0 {
		return ShapeChain
	}

	errs := checkShape(nodes, edges)
	if errs.Has(CodeUnsupportedShape) || errs.Has(CodeMultipleRoots) {
		return ShapeBranching
	}

	return ShapeChain
}
