package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dukex/composer/pkg/models"
	"github.com/dukex/composer/pkg/patch"
	"github.com/google/uuid"
)

var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrEdgeNotFound  = errors.New("edge not found")
	ErrSelfLoop      = errors.New("a node cannot connect to itself")
	ErrCycle         = errors.New("connection would create a cycle")
	ErrDuplicateEdge = errors.New("connection already exists")
	ErrRootNode      = errors.New("the root node cannot be changed")
	ErrInvalidPatch  = errors.New("invalid node data patch")
)

// Surface holds the nodes, edges and selection of one editing session.
// It is not safe for concurrent use.
type Surface struct {
	nodes    map[string]*Node
	order    []string
	edges    []Edge
	selected string
	seq      int
	newID    func() string
}

type Option func(*Surface)

// WithIDGenerator replaces the uuid generator, mostly for tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *Surface) {
		s.newID = gen
	}
}

func NewSurface(opts ...Option) *Surface {
	s := &Surface{
		nodes: make(map[string]*Node),
		newID: func() string { return uuid.New().String() },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// AddNode places a placeholder node of the given type. nodeType is an
// entity type or NodeTypeTool.
func (s *Surface) AddNode(nodeType string, pos Position) *Node {
	kind := NodeKindEntity
	if nodeType == NodeTypeTool {
		kind = NodeKindTool
	}

	return s.insert(&Node{
		ID:       s.newID(),
		Kind:     kind,
		Position: pos,
		Data: NodeData{
			Label:       "New " + nodeType,
			Description: "Configure this node...",
			Type:        nodeType,
		},
	})
}

// AddLibraryEntity places a node already linked to a library entity.
func (s *Surface) AddLibraryEntity(entity models.EntitySummary, pos Position) *Node {
	label := entity.DisplayName
	if label == "" {
		label = entity.Name
	}

	return s.insert(&Node{
		ID:       s.newID(),
		Kind:     NodeKindEntity,
		Position: pos,
		Data: NodeData{
			Label:       label,
			Description: entity.Description,
			Type:        string(entity.Type),
			EntityRef:   &EntityRef{ID: entity.ID, Name: entity.Name, Type: entity.Type},
		},
	})
}

// AddLibraryTool places a node already linked to a tool.
func (s *Surface) AddLibraryTool(tool models.Tool, pos Position) *Node {
	return s.insert(&Node{
		ID:       s.newID(),
		Kind:     NodeKindTool,
		Position: pos,
		Data: NodeData{
			Label:       tool.Name,
			Description: tool.Description,
			Type:        NodeTypeTool,
			ToolRef:     &ToolRef{ToolID: tool.Name, Name: tool.Name},
		},
	})
}

func (s *Surface) insert(n *Node) *Node {
	s.seq++
	n.Seq = s.seq
	s.nodes[n.ID] = n
	s.order = append(s.order, n.ID)

	cp := *n

	return &cp
}

// Connect adds an edge. A rejected connection leaves the edge set unchanged.
func (s *Surface) Connect(source, target string) (*Edge, error) {
	if source == target {
		return nil, ErrSelfLoop
	}

	if _, ok := s.nodes[source]; !ok {
		return nil, fmt.Errorf("source %s: %w", source, ErrNodeNotFound)
	}

	if _, ok := s.nodes[target]; !ok {
		return nil, fmt.Errorf("target %s: %w", target, ErrNodeNotFound)
	}

	for _, e := range s.edges {
		if e.Source == source && e.Target == target {
			return nil, ErrDuplicateEdge
		}
	}

	if s.reachable(target, source) {
		return nil, ErrCycle
	}

	edge := Edge{ID: EdgeID(source, target, s.hasEdge), Source: source, Target: target}
	s.edges = append(s.edges, edge)

	return &edge, nil
}

func (s *Surface) hasEdge(id string) bool {
	return slices.ContainsFunc(s.edges, func(e Edge) bool { return e.ID == id })
}

// reachable walks outgoing edges from "from" with a visited set.
func (s *Surface) reachable(from, to string) bool {
	visited := map[string]bool{from: true}
	stack := []string{from}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if current == to {
			return true
		}

		for _, e := range s.edges {
			if e.Source == current && !visited[e.Target] {
				visited[e.Target] = true
				stack = append(stack, e.Target)
			}
		}
	}

	return false
}

// RemoveNode deletes the node and every edge touching it.
func (s *Surface) RemoveNode(id string) error {
	if _, ok := s.nodes[id]; !ok {
		return ErrNodeNotFound
	}

	delete(s.nodes, id)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == id })
	s.edges = slices.DeleteFunc(s.edges, func(e Edge) bool { return e.Source == id || e.Target == id })

	if s.selected == id {
		s.selected = ""
	}

	return nil
}

// RemoveEdge deletes a single edge.
func (s *Surface) RemoveEdge(id string) error {
	before := len(s.edges)
	s.edges = slices.DeleteFunc(s.edges, func(e Edge) bool { return e.ID == id })

	if len(s.edges) == before {
		return ErrEdgeNotFound
	}

	return nil
}

// UpdateNodeData shallow-merges the patch into the node data. Keys absent
// from the patch are untouched; a nil value clears the field.
func (s *Surface) UpdateNodeData(id string, values map[string]any) error {
	node, ok := s.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}

	if node.IsRoot() {
		return ErrRootNode
	}

	data := node.Data

	if err := patch.Apply(&data, values, "mapstructure"); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPatch, err)
	}

	if data.EntityRef != nil && data.ToolRef != nil {
		return fmt.Errorf("%w: a node links either an entity or a tool", ErrInvalidPatch)
	}

	node.Data = data

	return nil
}

// MoveNode updates a node position.
func (s *Surface) MoveNode(id string, pos Position) error {
	node, ok := s.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}

	node.Position = pos

	return nil
}

// Select marks one node as selected, replacing any previous selection.
func (s *Surface) Select(id string) error {
	if _, ok := s.nodes[id]; !ok {
		return ErrNodeNotFound
	}

	s.selected = id

	return nil
}

func (s *Surface) ClearSelection() {
	s.selected = ""
}

// Selected returns the selected node id, or "" when nothing is selected.
func (s *Surface) Selected() string {
	return s.selected
}

// Node returns a copy of the node.
func (s *Surface) Node(id string) (Node, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}

	return *n, true
}

// Nodes returns copies of all nodes in creation order.
func (s *Surface) Nodes() []Node {
	nodes := make([]Node, 0, len(s.order))
	for _, id := range s.order {
		nodes = append(nodes, *s.nodes[id])
	}

	return nodes
}

// Edges returns the edges in insertion order.
func (s *Surface) Edges() []Edge {
	return slices.Clone(s.edges)
}

// Snapshot returns the serializable graph.
func (s *Surface) Snapshot() Graph {
	return Graph{Nodes: s.Nodes(), Edges: s.Edges()}
}

// Load replaces the surface content with a snapshot and clears selection.
// Edges that reference unknown nodes are dropped and repeated edge ids are
// renamed.
func (s *Surface) Load(g Graph) {
	s.nodes = make(map[string]*Node, len(g.Nodes))
	s.order = nil
	s.edges = nil
	s.selected = ""
	s.seq = 0

	sorted := slices.Clone(g.Nodes)
	slices.SortStableFunc(sorted, func(a, b Node) int { return a.Seq - b.Seq })

	for _, n := range sorted {
		node := n
		s.seq++
		node.Seq = s.seq
		s.nodes[node.ID] = &node
		s.order = append(s.order, node.ID)
	}

	for _, e := range g.Edges {
		_, srcOK := s.nodes[e.Source]
		_, dstOK := s.nodes[e.Target]

		if !srcOK || !dstOK {
			continue
		}

		if e.ID == "" || s.hasEdge(e.ID) {
			e.ID = EdgeID(e.Source, e.Target, s.hasEdge)
		}

		s.edges = append(s.edges, e)
	}
}
