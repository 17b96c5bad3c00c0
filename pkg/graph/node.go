// Package graph implements the editable node/edge surface used to compose plans.
package graph

import (
	"fmt"

	"github.com/dukex/composer/pkg/models"
)

// NodeKind distinguishes rendered node shapes.
type NodeKind string

const (
	NodeKindEntity NodeKind = "entityNode"
	NodeKindTool   NodeKind = "toolNode"
	NodeKindRoot   NodeKind = "root"
)

// RootID is the id of the synthetic node representing the edited entity.
const RootID = "root"

// NodeTypeTool marks tool nodes in NodeData.Type.
const NodeTypeTool = "tool"

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type EntityRef struct {
	ID   string            `json:"id"             mapstructure:"id"`
	Name string            `json:"name,omitempty" mapstructure:"name"`
	Type models.EntityType `json:"type,omitempty" mapstructure:"type"`
}

type ToolRef struct {
	ToolID string `json:"tool_id"        mapstructure:"tool_id"`
	Name   string `json:"name,omitempty" mapstructure:"name"`
}

// NodeData is the editable payload of a node. At most one reference is set.
type NodeData struct {
	Label         string     `json:"label"                mapstructure:"label"`
	Description   string     `json:"description"          mapstructure:"description"`
	Type          string     `json:"type"                 mapstructure:"type"`
	EntityRef     *EntityRef `json:"entity_ref,omitempty" mapstructure:"entity_ref"`
	ToolRef       *ToolRef   `json:"tool_ref,omitempty"   mapstructure:"tool_ref"`
	Required      *bool      `json:"required,omitempty"   mapstructure:"required"`
	ChildrenCount int        `json:"children_count"       mapstructure:"children_count"`
	ToolsCount    int        `json:"tools_count"          mapstructure:"tools_count"`
}

// IsRequired defaults to true when unset.
func (d NodeData) IsRequired() bool {
	return d.Required == nil || *d.Required
}

// Resolved reports whether the node points at an entity or a tool.
func (d NodeData) Resolved() bool {
	return d.EntityRef != nil || d.ToolRef != nil
}

type Node struct {
	ID       string   `json:"id"`
	Kind     NodeKind `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
	Seq      int      `json:"seq"`
}

// IsRoot reports whether the node is the synthetic entity root.
func (n Node) IsRoot() bool {
	return n.Kind == NodeKindRoot || n.ID == RootID
}

// Edge means Target executes after Source.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// EdgeID names the edge from source to target as "e-<source>-<target>".
// Node ids may contain '-', so two pairs can render the same name; taken
// reports ids already in use and a numeric suffix is added until it is free.
func EdgeID(source, target string, taken func(id string) bool) string {
	base := fmt.Sprintf("e-%s-%s", source, target)
	id := base

	for n := 2; taken(id); n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}

	return id
}

// Graph is the serializable form of a surface. Selection is not part of it.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NodeByID finds a node in a snapshot.
func (g Graph) NodeByID(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}

	return Node{}, false
}
