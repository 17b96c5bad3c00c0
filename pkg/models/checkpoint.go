package models

import "time"

type CheckpointStatus string

const (
	CheckpointStatusPending  CheckpointStatus = "PENDING"
	CheckpointStatusApproved CheckpointStatus = "APPROVED"
	CheckpointStatusRejected CheckpointStatus = "REJECTED"
)

// Checkpoint is a human-in-the-loop pause point awaiting a decision.
type Checkpoint struct {
	ID                string           `json:"id"`
	RunID             string           `json:"run_id"`
	CheckpointTrigger string           `json:"checkpoint_trigger"`
	Status            CheckpointStatus `json:"status"`
	RequestedAt       time.Time        `json:"requested_at"`
	RespondedAt       *time.Time       `json:"responded_at,omitempty"`
	Notes             string           `json:"notes,omitempty"`
}

// CheckpointResponse is the decision sent back to the executor.
type CheckpointResponse struct {
	Status CheckpointStatus `json:"status"          validate:"required,oneof=APPROVED REJECTED"`
	Notes  string           `json:"notes,omitempty"`
}

// Tool is an executable capability exposed by the executor.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
