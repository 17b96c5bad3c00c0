package models

import "time"

// RunStatus is the execution state reported by the executor.
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusRepairing RunStatus = "REPAIRING" // Executor is retrying after a failure
)

// IsTerminal reports whether no further transitions are expected.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// ExecutionRun is one execution of one entity. Child runs form a tree.
type ExecutionRun struct {
	ID           string         `json:"id"`
	EntityID     string         `json:"entity_id"`
	ParentRunID  *string        `json:"parent_run_id,omitempty"`
	CompanyID    string         `json:"company_id,omitempty"`
	Status       RunStatus      `json:"status"`
	InputData    map[string]any `json:"input_data,omitempty"`
	ResultData   map[string]any `json:"result_data,omitempty"`
	DynamicPlan  map[string]any `json:"dynamic_plan,omitempty"`
	ContextState map[string]any `json:"context_state,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	CreatedAt    *time.Time     `json:"created_at,omitempty"`

	LLMLogs   []LLMInteractionLog  `json:"llm_logs,omitempty"`
	ToolLogs  []ToolInteractionLog `json:"tool_logs,omitempty"`
	ChildRuns []*ExecutionRun      `json:"child_runs,omitempty"`
	Entity    *EntitySummary       `json:"entity,omitempty"`

	// Executor-reported totals. Nil means not reported.
	TotalCostUSD    *float64 `json:"total_cost_usd,omitempty"`
	TotalTokens     *int64   `json:"total_tokens,omitempty"`
	ExecutionTimeMS *int64   `json:"execution_time_ms,omitempty"`
}

// Reasoning returns context_state.reasoning when it is a string.
func (r *ExecutionRun) Reasoning() string {
	if r.ContextState == nil {
		return ""
	}

	reasoning, _ := r.ContextState["reasoning"].(string)

	return reasoning
}

// DisplayName names the run by its entity when the executor embedded one.
func (r *ExecutionRun) DisplayName() string {
	if r.Entity != nil {
		if r.Entity.DisplayName != "" {
			return r.Entity.DisplayName
		}

		if r.Entity.Name != "" {
			return r.Entity.Name
		}
	}

	return r.EntityID
}

type LLMInteractionLog struct {
	ID               string   `json:"id,omitempty"`
	ModelProvider    string   `json:"model_provider"`
	ModelName        string   `json:"model_name"`
	InputPrompt      string   `json:"input_prompt,omitempty"`
	OutputResponse   string   `json:"output_response,omitempty"`
	PromptTokens     int64    `json:"prompt_tokens"`
	CompletionTokens int64    `json:"completion_tokens"`
	LatencyMS        int64    `json:"latency_ms"`
	CostUSD          *float64 `json:"cost_usd,omitempty"`
}

type ToolInteractionLog struct {
	ID        string         `json:"id,omitempty"`
	ToolName  string         `json:"tool_name"`
	Input     map[string]any `json:"input,omitempty"`
	Output    any            `json:"output,omitempty"`
	Tokens    int64          `json:"tokens,omitempty"`
	CostUSD   *float64       `json:"cost_usd,omitempty"`
	LatencyMS int64          `json:"latency_ms"`
	Error     string         `json:"error,omitempty"`
}
