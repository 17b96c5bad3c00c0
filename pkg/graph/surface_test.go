package graph_test

import (
	"fmt"
	"testing"

	"github.com/dukex/composer/pkg/graph"
	"github.com/dukex/composer/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() graph.Option {
	n := 0

	return graph.WithIDGenerator(func() string {
		n++

		return fmt.Sprintf("n%d", n)
	})
}

func TestSurface_AddNode(t *testing.T) {
	s := graph.NewSurface(sequentialIDs())

	node := s.AddNode(string(models.EntityTypeSkill), graph.Position{X: 10, Y: 20})

	assert.Equal(t, "n1", node.ID)
	assert.Equal(t, graph.NodeKindEntity, node.Kind)
	assert.Equal(t, "New SKILL", node.Data.Label)
	assert.False(t, node.Data.Resolved())
	assert.True(t, node.Data.IsRequired())

	tool := s.AddNode(graph.NodeTypeTool, graph.Position{})
	assert.Equal(t, graph.NodeKindTool, tool.Kind)
	assert.Len(t, s.Nodes(), 2)
}

func TestSurface_AddLibraryItems(t *testing.T) {
	s := graph.NewSurface(sequentialIDs())

	entityNode := s.AddLibraryEntity(models.EntitySummary{ID: "e1", Name: "search", Type: models.EntityTypeSkill}, graph.Position{})
	require.NotNil(t, entityNode.Data.EntityRef)
	assert.Equal(t, "e1", entityNode.Data.EntityRef.ID)
	assert.Equal(t, "search", entityNode.Data.Label)

	toolNode := s.AddLibraryTool(models.Tool{Name: "web_search"}, graph.Position{})
	require.NotNil(t, toolNode.Data.ToolRef)
	assert.Equal(t, "web_search", toolNode.Data.ToolRef.ToolID)
}

func TestSurface_Connect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   [][2]string
		connect [2]string
		wantErr error
	}{
		{name: "simple", connect: [2]string{"n1", "n2"}},
		{name: "self loop", connect: [2]string{"n1", "n1"}, wantErr: graph.ErrSelfLoop},
		{name: "unknown target", connect: [2]string{"n1", "nope"}, wantErr: graph.ErrNodeNotFound},
		{name: "back edge", setup: [][2]string{{"n1", "n2"}}, connect: [2]string{"n2", "n1"}, wantErr: graph.ErrCycle},
		{name: "long cycle", setup: [][2]string{{"n1", "n2"}, {"n2", "n3"}}, connect: [2]string{"n3", "n1"}, wantErr: graph.ErrCycle},
		{name: "duplicate", setup: [][2]string{{"n1", "n2"}}, connect: [2]string{"n1", "n2"}, wantErr: graph.ErrDuplicateEdge},
		{name: "diamond is acyclic", setup: [][2]string{{"n1", "n2"}, {"n1", "n3"}, {"n2", "n3"}}, connect: [2]string{"n3", "n3"}, wantErr: graph.ErrSelfLoop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := graph.NewSurface(sequentialIDs())
			for range 3 {
				s.AddNode(string(models.EntityTypeAction), graph.Position{})
			}

			for _, pair := range tt.setup {
				_, err := s.Connect(pair[0], pair[1])
				require.NoError(t, err)
			}

			before := s.Edges()

			edge, err := s.Connect(tt.connect[0], tt.connect[1])
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, edge)
				assert.Equal(t, before, s.Edges())

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.connect[0], edge.Source)
			assert.Len(t, s.Edges(), len(before)+1)
		})
	}
}

func TestSurface_RemoveNodeCascadesEdges(t *testing.T) {
	s := graph.NewSurface(sequentialIDs())
	for range 3 {
		s.AddNode(string(models.EntityTypeAction), graph.Position{})
	}

	_, err := s.Connect("n1", "n2")
	require.NoError(t, err)
	_, err = s.Connect("n2", "n3")
	require.NoError(t, err)
	require.NoError(t, s.Select("n2"))

	require.NoError(t, s.RemoveNode("n2"))

	for _, e := range s.Edges() {
		assert.NotEqual(t, "n2", e.Source)
		assert.NotEqual(t, "n2", e.Target)
	}

	assert.Empty(t, s.Edges())
	assert.Empty(t, s.Selected())
	assert.Len(t, s.Nodes(), 2)
	require.ErrorIs(t, s.RemoveNode("n2"), graph.ErrNodeNotFound)
}

func TestSurface_RemoveEdge(t *testing.T) {
	s := graph.NewSurface(sequentialIDs())
	s.AddNode(graph.NodeTypeTool, graph.Position{})
	s.AddNode(graph.NodeTypeTool, graph.Position{})

	edge, err := s.Connect("n1", "n2")
	require.NoError(t, err)

	require.NoError(t, s.RemoveEdge(edge.ID))
	assert.Empty(t, s.Edges())
	require.ErrorIs(t, s.RemoveEdge(edge.ID), graph.ErrEdgeNotFound)
}

func TestSurface_EdgeIDsStayUniqueForDashedNodeIDs(t *testing.T) {
	ids := []string{"a-b", "c", "a", "b-c"}
	s := graph.NewSurface(graph.WithIDGenerator(func() string {
		id := ids[0]
		ids = ids[1:]

		return id
	}))

	for range 4 {
		s.AddNode(graph.NodeTypeTool, graph.Position{})
	}

	first, err := s.Connect("a-b", "c")
	require.NoError(t, err)
	second, err := s.Connect("a", "b-c")
	require.NoError(t, err)

	assert.Equal(t, "e-a-b-c", first.ID)
	assert.NotEqual(t, first.ID, second.ID)

	require.NoError(t, s.RemoveEdge(first.ID))
	require.Len(t, s.Edges(), 1)
	assert.Equal(t, "a", s.Edges()[0].Source)
	assert.Equal(t, "b-c", s.Edges()[0].Target)
}

func TestSurface_LoadRenamesRepeatedEdgeIDs(t *testing.T) {
	s := graph.NewSurface()
	s.Load(graph.Graph{
		Nodes: []graph.Node{{ID: "a-b", Seq: 1}, {ID: "c", Seq: 2}, {ID: "a", Seq: 3}, {ID: "b-c", Seq: 4}},
		Edges: []graph.Edge{
			{ID: "e-a-b-c", Source: "a-b", Target: "c"},
			{ID: "e-a-b-c", Source: "a", Target: "b-c"},
		},
	})

	edges := s.Edges()
	require.Len(t, edges, 2)
	assert.Equal(t, "e-a-b-c", edges[0].ID)
	assert.Equal(t, "e-a-b-c-2", edges[1].ID)
}

func TestEdgeID(t *testing.T) {
	taken := map[string]bool{"e-a-b": true, "e-a-b-2": true}

	assert.Equal(t, "e-x-y", graph.EdgeID("x", "y", func(string) bool { return false }))
	assert.Equal(t, "e-a-b-3", graph.EdgeID("a", "b", func(id string) bool { return taken[id] }))
}

func TestSurface_UpdateNodeData(t *testing.T) {
	s := graph.NewSurface(sequentialIDs())
	s.AddNode(string(models.EntityTypeSkill), graph.Position{})

	err := s.UpdateNodeData("n1", map[string]any{
		"label":      "Research",
		"entity_ref": map[string]any{"id": "e1", "name": "research", "type": "SKILL"},
	})
	require.NoError(t, err)

	node, ok := s.Node("n1")
	require.True(t, ok)
	assert.Equal(t, "Research", node.Data.Label)
	assert.Equal(t, "Configure this node...", node.Data.Description)
	require.NotNil(t, node.Data.EntityRef)
	assert.Equal(t, models.EntityTypeSkill, node.Data.EntityRef.Type)

	err = s.UpdateNodeData("n1", map[string]any{"required": false})
	require.NoError(t, err)

	node, _ = s.Node("n1")
	assert.False(t, node.Data.IsRequired())
	assert.Equal(t, "Research", node.Data.Label)
	assert.NotNil(t, node.Data.EntityRef)

	err = s.UpdateNodeData("n1", map[string]any{"entity_ref": nil})
	require.NoError(t, err)

	node, _ = s.Node("n1")
	assert.Nil(t, node.Data.EntityRef)
}

func TestSurface_UpdateNodeData_Rejects(t *testing.T) {
	s := graph.NewSurface(sequentialIDs())
	s.AddNode(string(models.EntityTypeSkill), graph.Position{})

	require.ErrorIs(t, s.UpdateNodeData("missing", map[string]any{}), graph.ErrNodeNotFound)
	require.ErrorIs(t, s.UpdateNodeData("n1", map[string]any{"colour": "red"}), graph.ErrInvalidPatch)

	err := s.UpdateNodeData("n1", map[string]any{
		"entity_ref": map[string]any{"id": "e1"},
		"tool_ref":   map[string]any{"tool_id": "t1"},
	})
	require.ErrorIs(t, err, graph.ErrInvalidPatch)

	node, _ := s.Node("n1")
	assert.Nil(t, node.Data.EntityRef)
}

func TestSurface_Selection(t *testing.T) {
	s := graph.NewSurface(sequentialIDs())
	s.AddNode(graph.NodeTypeTool, graph.Position{})
	s.AddNode(graph.NodeTypeTool, graph.Position{})

	require.NoError(t, s.Select("n1"))
	require.NoError(t, s.Select("n2"))
	assert.Equal(t, "n2", s.Selected())

	s.ClearSelection()
	assert.Empty(t, s.Selected())
	require.ErrorIs(t, s.Select("n9"), graph.ErrNodeNotFound)
}

func TestSurface_SnapshotAndLoad(t *testing.T) {
	s := graph.NewSurface(sequentialIDs())
	s.AddNode(graph.NodeTypeTool, graph.Position{X: 1})
	s.AddNode(graph.NodeTypeTool, graph.Position{X: 2})
	_, err := s.Connect("n1", "n2")
	require.NoError(t, err)
	require.NoError(t, s.MoveNode("n2", graph.Position{X: 5, Y: 5}))

	snapshot := s.Snapshot()
	snapshot.Edges = append(snapshot.Edges, graph.Edge{ID: "dangling", Source: "n1", Target: "gone"})

	restored := graph.NewSurface()
	restored.Load(snapshot)

	assert.Equal(t, s.Nodes(), restored.Nodes())
	assert.Equal(t, s.Edges(), restored.Edges())
	assert.Empty(t, restored.Selected())
}
