// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/composer/pkg/models"
	"github.com/google/uuid"
)

// CreateTestEntity creates a draft SKILL with an empty plan that can be overridden.
func CreateTestEntity(overrides ...func(*models.Entity)) *models.Entity {
	entity := &models.Entity{
		ID:          uuid.New().String(),
		Name:        "test_skill",
		DisplayName: "Test Skill",
		Description: "An entity for testing",
		Type:        models.EntityTypeSkill,
		Version:     "1.0.0",
		Status:      models.EntityStatusDraft,
		Planning: &models.Planning{
			StaticPlan: &models.StaticPlan{Enabled: true, Steps: []models.Step{}},
		},
	}

	for _, override := range overrides {
		override(entity)
	}

	return entity
}

// CreateTestAction creates a valid ACTION entity with a single prompt step.
func CreateTestAction(overrides ...func(*models.Entity)) *models.Entity {
	action := CreateTestEntity(
		WithType(models.EntityTypeAction),
		WithName("test_action"),
		WithSteps(PromptStep("prompt", "Summarize {{text}}")),
	)
	action.LogicGate = &models.LogicGate{
		ReasoningConfig: &models.ReasoningConfig{
			ModelProvider: "openai",
			ModelName:     "gpt-4o",
			ReasoningMode: models.ReasoningModeDirect,
		},
	}

	for _, override := range overrides {
		override(action)
	}

	return action
}

// WithID sets the entity ID.
func WithID(id string) func(*models.Entity) {
	return func(e *models.Entity) {
		e.ID = id
	}
}

// WithName sets the entity slug.
func WithName(name string) func(*models.Entity) {
	return func(e *models.Entity) {
		e.Name = name
	}
}

// WithType sets the entity type.
func WithType(entityType models.EntityType) func(*models.Entity) {
	return func(e *models.Entity) {
		e.Type = entityType
	}
}

// WithStatus sets the entity status.
func WithStatus(status models.EntityStatus) func(*models.Entity) {
	return func(e *models.Entity) {
		e.Status = status
	}
}

// WithSteps replaces the static plan, numbering steps in the given order.
func WithSteps(steps ...models.Step) func(*models.Entity) {
	return func(e *models.Entity) {
		for i := range steps {
			steps[i].Order = i + 1
		}

		e.SetSteps(steps)
	}
}

// EntityStep builds a required step invoking a child entity.
func EntityStep(stepID, entityID string) models.Step {
	return models.Step{
		StepID:   stepID,
		Name:     stepID,
		Type:     models.StepTypeChildEntity,
		Target:   models.StepTarget{EntityID: entityID},
		Required: true,
	}
}

// ToolStep builds a required step calling a tool.
func ToolStep(stepID, toolID string) models.Step {
	return models.Step{
		StepID:   stepID,
		Name:     stepID,
		Type:     models.StepTypeToolCall,
		Target:   models.StepTarget{ToolID: toolID},
		Required: true,
	}
}

// PromptStep builds a required inline prompt step.
func PromptStep(stepID, prompt string) models.Step {
	return models.Step{
		StepID:   stepID,
		Name:     stepID,
		Type:     models.StepTypeAction,
		Target:   models.StepTarget{PromptTemplate: prompt},
		Required: true,
	}
}

// CreateTestRun creates a completed run with timing and no logs.
func CreateTestRun(overrides ...func(*models.ExecutionRun)) *models.ExecutionRun {
	started := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(2 * time.Second)

	run := &models.ExecutionRun{
		ID:          uuid.New().String(),
		EntityID:    uuid.New().String(),
		Status:      models.RunStatusCompleted,
		StartedAt:   &started,
		CompletedAt: &completed,
	}

	for _, override := range overrides {
		override(run)
	}

	return run
}

// WithRunStatus sets the run status.
func WithRunStatus(status models.RunStatus) func(*models.ExecutionRun) {
	return func(r *models.ExecutionRun) {
		r.Status = status
	}
}

// WithLLMLog appends an LLM interaction with the given cost and token counts.
func WithLLMLog(costUSD float64, promptTokens, completionTokens int64) func(*models.ExecutionRun) {
	return func(r *models.ExecutionRun) {
		r.LLMLogs = append(r.LLMLogs, models.LLMInteractionLog{
			ModelProvider:    "openai",
			ModelName:        "gpt-4o",
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			LatencyMS:        250,
			CostUSD:          &costUSD,
		})
	}
}

// WithChildren attaches child runs.
func WithChildren(children ...*models.ExecutionRun) func(*models.ExecutionRun) {
	return func(r *models.ExecutionRun) {
		for _, child := range children {
			parent := r.ID
			child.ParentRunID = &parent
		}

		r.ChildRuns = append(r.ChildRuns, children...)
	}
}

// WithReportedTotals sets the executor-reported cost and tokens.
func WithReportedTotals(costUSD float64, tokens int64) func(*models.ExecutionRun) {
	return func(r *models.ExecutionRun) {
		r.TotalCostUSD = &costUSD
		r.TotalTokens = &tokens
	}
}
