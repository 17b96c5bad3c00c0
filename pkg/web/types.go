// Package web provides the HTTP surface of the console backend: editing
// sessions, the library palette, trace views and HITL checkpoints.
package web

import (
	"github.com/dukex/composer/pkg/graph"
	"github.com/dukex/composer/pkg/models"
)

type OpenSessionRequest struct {
	EntityID   string            `json:"entity_id,omitempty"`
	EntityType models.EntityType `json:"entity_type,omitempty"`
}

// AddNodeRequest places a node. EntityID or ToolName link it to the library;
// otherwise a placeholder of Type is created.
type AddNodeRequest struct {
	Type     string  `json:"type"                validate:"required_without_all=EntityID ToolName"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	EntityID string  `json:"entity_id,omitempty"`
	ToolName string  `json:"tool_name,omitempty"`
}

// UpdateNodeRequest patches node data and/or moves the node.
type UpdateNodeRequest struct {
	Data     map[string]any  `json:"data,omitempty"`
	Position *graph.Position `json:"position,omitempty"`
}

type ConnectRequest struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

type SelectRequest struct {
	ID string `json:"id"`
}

type StatusRequest struct {
	Status models.EntityStatus `json:"status" validate:"required"`
}

type PromptRequest struct {
	PromptTemplate string `json:"prompt_template"`
}

type MoveStepRequest struct {
	Delta int `json:"delta" validate:"required,min=-100,max=100"`
}

type TriggerRunResponse struct {
	RunID string `json:"run_id"`
}
