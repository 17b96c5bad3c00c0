package models

import "encoding/json"

// StepType is derived from the step target.
type StepType string

const (
	StepTypeChildEntity StepType = "CHILD_ENTITY_INVOCATION"
	StepTypeToolCall    StepType = "TOOL_CALL"
	StepTypeAction      StepType = "ACTION"
)

// Step is one ordered unit of a static plan. Exactly one target field is set.
type Step struct {
	StepID      string     `json:"step_id"     validate:"required"`
	Order       int        `json:"order"       validate:"gte=1"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	Type        StepType   `json:"type,omitempty"`
	Target      StepTarget `json:"target"`
	Required    bool       `json:"required"`
}

type StepTarget struct {
	EntityID       string `json:"entity_id,omitempty"`
	ToolID         string `json:"tool_id,omitempty"`
	PromptTemplate string `json:"prompt_template,omitempty"`
}

// Count returns how many target fields are set.
func (t StepTarget) Count() int {
	n := 0

	for _, v := range []string{t.EntityID, t.ToolID, t.PromptTemplate} {
		if v != "" {
			n++
		}
	}

	return n
}

// Kind returns the step type implied by the target.
func (t StepTarget) Kind() StepType {
	switch {
	case t.EntityID != "":
		return StepTypeChildEntity
	case t.ToolID != "":
		return StepTypeToolCall
	default:
		return StepTypeAction
	}
}

// UnmarshalJSON defaults Required to true when the field is absent.
func (s *Step) UnmarshalJSON(data []byte) error {
	type alias Step

	aux := struct {
		*alias
		Required *bool `json:"required"`
	}{alias: (*alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	s.Required = aux.Required == nil || *aux.Required

	if s.Type == "" {
		s.Type = s.Target.Kind()
	}

	return nil
}
