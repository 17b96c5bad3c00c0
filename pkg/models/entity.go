// Package models defines the core domain models for hierarchical entity composition
package models

import "time"

// EntityType is the discriminant of the entity union.
type EntityType string

const (
	EntityTypeAction  EntityType = "ACTION"  // Atomic unit, one prompt step
	EntityTypeSkill   EntityType = "SKILL"   // Composite of actions and tools
	EntityTypeAgent   EntityType = "AGENT"   // Composite with persona and capabilities
	EntityTypeProcess EntityType = "PROCESS" // Top level orchestration
)

// EntityTypes lists the types in hierarchy order.
var EntityTypes = []EntityType{EntityTypeAction, EntityTypeSkill, EntityTypeAgent, EntityTypeProcess}

// EntityStatus represents the lifecycle state of an entity.
type EntityStatus string

const (
	EntityStatusDraft      EntityStatus = "DRAFT"
	EntityStatusActive     EntityStatus = "ACTIVE"
	EntityStatusDeprecated EntityStatus = "DEPRECATED"
	EntityStatusArchived   EntityStatus = "ARCHIVED"
)

// Entity is a composable unit of automation.
type Entity struct {
	ID          string       `json:"id,omitempty"`
	Name        string       `json:"name"                    validate:"required,max=64"`
	DisplayName string       `json:"display_name,omitempty"`
	Description string       `json:"description,omitempty"`
	Type        EntityType   `json:"entity_type"             validate:"required,oneof=ACTION SKILL AGENT PROCESS"`
	Version     string       `json:"version"                 validate:"required"`
	Status      EntityStatus `json:"status"                  validate:"required,oneof=DRAFT ACTIVE DEPRECATED ARCHIVED"`
	Tags        []string     `json:"tags,omitempty"`
	CompanyID   string       `json:"company_id,omitempty"`

	Identity     *Identity     `json:"identity,omitempty"`
	LogicGate    *LogicGate    `json:"logic_gate,omitempty"`
	Planning     *Planning     `json:"planning,omitempty"`
	Capabilities *Capabilities `json:"capabilities,omitempty"`
	Governance   *Governance   `json:"governance,omitempty"`
	Hierarchy    *Hierarchy    `json:"hierarchy,omitempty"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Label returns the display name, falling back to the slug.
func (e *Entity) Label() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}

	return e.Name
}

// Steps returns the static plan steps, nil when the entity has no plan.
func (e *Entity) Steps() []Step {
	if e.Planning == nil || e.Planning.StaticPlan == nil {
		return nil
	}

	return e.Planning.StaticPlan.Steps
}

// SetSteps replaces the static plan, creating the planning section when missing.
func (e *Entity) SetSteps(steps []Step) {
	if e.Planning == nil {
		e.Planning = &Planning{}
	}

	if e.Planning.StaticPlan == nil {
		e.Planning.StaticPlan = &StaticPlan{Enabled: true}
	}

	e.Planning.StaticPlan.Steps = steps
}

// Summary projects the entity to its library form.
func (e *Entity) Summary() EntitySummary {
	return EntitySummary{
		ID:          e.ID,
		Name:        e.Name,
		DisplayName: e.DisplayName,
		Description: e.Description,
		Type:        e.Type,
		Status:      e.Status,
		Version:     e.Version,
	}
}

// EntitySummary is the reference form of an entity used by the library and traces.
type EntitySummary struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name,omitempty"`
	Description string       `json:"description,omitempty"`
	Type        EntityType   `json:"entity_type"`
	Status      EntityStatus `json:"status,omitempty"`
	Version     string       `json:"version,omitempty"`
}

type Identity struct {
	Persona *Persona `json:"persona,omitempty"`
}

type Persona struct {
	SystemPrompt          string           `json:"system_prompt,omitempty"`
	Examples              []PersonaExample `json:"examples,omitempty"`
	BehavioralConstraints []string         `json:"behavioral_constraints,omitempty"`
}

type PersonaExample struct {
	Scenario      string `json:"scenario"`
	IdealResponse string `json:"ideal_response"`
}

// ReasoningMode selects how the executor drives the model.
type ReasoningMode string

const (
	ReasoningModeReact          ReasoningMode = "REACT"
	ReasoningModeChainOfThought ReasoningMode = "CHAIN_OF_THOUGHT"
	ReasoningModeDirect         ReasoningMode = "DIRECT"
)

type LogicGate struct {
	ReasoningConfig *ReasoningConfig `json:"reasoning_config,omitempty"`
	RetryPolicy     *RetryPolicy     `json:"retry_policy,omitempty"`
	ReviewMechanism *ReviewMechanism `json:"review_mechanism,omitempty"`
}

type ReasoningConfig struct {
	ModelProvider string        `json:"model_provider,omitempty"`
	ModelName     string        `json:"model_name,omitempty"`
	Temperature   *float64      `json:"temperature,omitempty"    validate:"omitempty,gte=0,lte=2"`
	TopP          *float64      `json:"top_p,omitempty"          validate:"omitempty,gte=0,lte=1"`
	MaxTokens     int           `json:"max_tokens,omitempty"     validate:"gte=0"`
	ReasoningMode ReasoningMode `json:"reasoning_mode,omitempty" validate:"omitempty,oneof=REACT CHAIN_OF_THOUGHT DIRECT"`
}

type RetryPolicy struct {
	MaxRetries      int    `json:"max_retries"                validate:"gte=0"`
	BackoffStrategy string `json:"backoff_strategy,omitempty" validate:"omitempty,oneof=FIXED LINEAR EXPONENTIAL"`
}

type ReviewMechanism struct {
	Enabled      bool   `json:"enabled"`
	ReviewPrompt string `json:"review_prompt,omitempty"`
}

type Planning struct {
	StaticPlan      *StaticPlan      `json:"static_plan,omitempty"`
	DynamicPlanning *DynamicPlanning `json:"dynamic_planning,omitempty"`
	LoopControl     *LoopControl     `json:"loop_control,omitempty"`
}

type StaticPlan struct {
	Enabled bool   `json:"enabled"`
	Steps   []Step `json:"steps"`
}

type DynamicPlanning struct {
	Enabled        bool   `json:"enabled"`
	PlanningPrompt string `json:"planning_prompt,omitempty"`
}

type LoopControl struct {
	MaxIterations int `json:"max_iterations" validate:"gte=0"`
}

type Capabilities struct {
	Tools              []ToolBinding       `json:"tools,omitempty"`
	Memory             *Memory             `json:"memory,omitempty"`
	ContextEngineering *ContextEngineering `json:"context_engineering,omitempty"`
}

type ToolBinding struct {
	ToolID string `json:"tool_id"`
}

type Memory struct {
	Enabled bool   `json:"enabled"`
	Scope   string `json:"scope,omitempty" validate:"omitempty,oneof=SESSION PERSISTENT NONE"`
}

type ContextEngineering struct {
	MaxContextTokens int `json:"max_context_tokens" validate:"gte=0"`
}

type Governance struct {
	MaxCostUSD      float64          `json:"max_cost_usd,omitempty" validate:"gte=0"`
	TimeoutMS       int64            `json:"timeout_ms,omitempty"   validate:"gte=0"`
	ExecutionLimits *ExecutionLimits `json:"execution_limits,omitempty"`
	HITLCheckpoints []HITLCheckpoint `json:"hitl_checkpoints,omitempty"`
}

type ExecutionLimits struct {
	MaxRecursionDepth int `json:"max_recursion_depth" validate:"gte=0"`
	MaxToolCalls      int `json:"max_tool_calls"      validate:"gte=0"`
}

// HITLCheckpoint declares where a run pauses for human approval.
type HITLCheckpoint struct {
	Name        string `json:"name"`
	Trigger     string `json:"trigger"`
	Description string `json:"description,omitempty"`
}

// ChildRelationship describes how a child is invoked by its parent.
type ChildRelationship string

const ChildRelationshipSequential ChildRelationship = "SEQUENTIAL"

// Hierarchy is derived from the plan; it is never edited directly.
type Hierarchy struct {
	Children []HierarchyChild `json:"children"`
	IsAtomic bool             `json:"is_atomic"`
}

type HierarchyChild struct {
	ChildID      string            `json:"child_id"`
	ChildType    EntityType        `json:"child_type"`
	Relationship ChildRelationship `json:"relationship"`
}
