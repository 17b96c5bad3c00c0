package trace

import "sync"

// DefaultExpandDepth is the depth below which nodes start expanded.
const DefaultExpandDepth = 2

// ExpandState is per-view display state. It is never serialized with the run
// and never causes a fetch.
type ExpandState struct {
	mu       sync.RWMutex
	expanded map[string]bool
	logs     map[string]bool
	all      *bool
}

func NewExpandState() *ExpandState {
	return &ExpandState{
		expanded: map[string]bool{},
		logs:     map[string]bool{},
	}
}

// IsExpanded reports whether the node at depth is expanded. An explicit toggle
// wins over ExpandAll/CollapseAll, which win over the depth default.
func (s *ExpandState) IsExpanded(runID string, depth int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.expanded[runID]; ok {
		return v
	}

	if s.all != nil {
		return *s.all
	}

	return depth < DefaultExpandDepth
}

// Toggle flips the node and returns the new state.
func (s *ExpandState) Toggle(runID string, depth int) bool {
	next := !s.IsExpanded(runID, depth)

	s.mu.Lock()
	s.expanded[runID] = next
	s.mu.Unlock()

	return next
}

func (s *ExpandState) ExpandAll() {
	s.setAll(true)
}

func (s *ExpandState) CollapseAll() {
	s.setAll(false)
}

func (s *ExpandState) setAll(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.all = &v
	s.expanded = map[string]bool{}
}

// ShowLogs reports whether LLM and tool interactions are shown for the node.
func (s *ExpandState) ShowLogs(runID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.logs[runID]
}

func (s *ExpandState) ToggleLogs(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[runID] = !s.logs[runID]

	return s.logs[runID]
}
