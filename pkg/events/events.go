// Package events defines the notifications exchanged between the trace pollers,
// the checkpoint watcher, editor sessions and the browser streams.
package events

import (
	"errors"
	"time"

	"github.com/dukex/composer/pkg/models"
	"github.com/dukex/composer/pkg/trace"
)

type EventType string

const Topic = "composer.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Trace view events.
	TraceSnapshotEvent EventType = "trace.snapshot"
	TraceFinishedEvent EventType = "trace.finished"

	// HITL checkpoint events.
	CheckpointsRefreshedEvent EventType = "checkpoints.refreshed"
	CheckpointRespondedEvent  EventType = "checkpoint.responded"

	// Editor events.
	EntitySavedEvent EventType = "entity.saved"
)

var (
	ErrRunIDRequired        = errors.New("run_id is required")
	ErrRunRequired          = errors.New("run is required")
	ErrCheckpointIDRequired = errors.New("checkpoint_id is required")
	ErrSessionIDRequired    = errors.New("session_id is required")
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func newBase(eventType EventType) BaseEvent {
	return BaseEvent{Type: eventType, Timestamp: time.Now().UTC()}
}

// TraceSnapshot carries the full tree of one poll tick. Each tick replaces
// the previous snapshot wholesale.
type TraceSnapshot struct {
	BaseEvent

	RunID             string               `json:"run_id"`
	Run               *models.ExecutionRun `json:"run"`
	Totals            trace.Totals         `json:"totals"`
	FailedDescendants []string             `json:"failed_descendants,omitempty"`
}

func NewTraceSnapshot(run *models.ExecutionRun) *TraceSnapshot {
	snapshot := &TraceSnapshot{BaseEvent: newBase(TraceSnapshotEvent), Run: run}

	if run != nil {
		snapshot.RunID = run.ID
		snapshot.Totals = trace.Aggregate(run)
		snapshot.FailedDescendants = trace.FailedDescendants(run)
	}

	return snapshot
}

func (e TraceSnapshot) GetType() EventType {
	return TraceSnapshotEvent
}

func (e *TraceSnapshot) Validate() error {
	if e.RunID == "" {
		return ErrRunIDRequired
	}

	if e.Run == nil {
		return ErrRunRequired
	}

	return nil
}

// TraceFinished is published once when a poller stops, with the final
// status it observed or the error that ended it.
type TraceFinished struct {
	BaseEvent

	RunID  string           `json:"run_id"`
	Status models.RunStatus `json:"status,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func NewTraceFinished(runID string, status models.RunStatus, err error) *TraceFinished {
	finished := &TraceFinished{BaseEvent: newBase(TraceFinishedEvent), RunID: runID, Status: status}
	if err != nil {
		finished.Error = err.Error()
	}

	return finished
}

func (e TraceFinished) GetType() EventType {
	return TraceFinishedEvent
}

func (e *TraceFinished) Validate() error {
	if e.RunID == "" {
		return ErrRunIDRequired
	}

	return nil
}

type CheckpointsRefreshed struct {
	BaseEvent

	Pending []models.Checkpoint `json:"pending"`
}

func NewCheckpointsRefreshed(pending []models.Checkpoint) *CheckpointsRefreshed {
	if pending == nil {
		pending = []models.Checkpoint{}
	}

	return &CheckpointsRefreshed{BaseEvent: newBase(CheckpointsRefreshedEvent), Pending: pending}
}

func (e CheckpointsRefreshed) GetType() EventType {
	return CheckpointsRefreshedEvent
}

type CheckpointResponded struct {
	BaseEvent

	CheckpointID string                  `json:"checkpoint_id"`
	Status       models.CheckpointStatus `json:"status"`
	Notes        string                  `json:"notes,omitempty"`
}

func NewCheckpointResponded(checkpointID string, response models.CheckpointResponse) *CheckpointResponded {
	return &CheckpointResponded{
		BaseEvent:    newBase(CheckpointRespondedEvent),
		CheckpointID: checkpointID,
		Status:       response.Status,
		Notes:        response.Notes,
	}
}

func (e CheckpointResponded) GetType() EventType {
	return CheckpointRespondedEvent
}

func (e *CheckpointResponded) Validate() error {
	if e.CheckpointID == "" {
		return ErrCheckpointIDRequired
	}

	return nil
}

type EntitySaved struct {
	BaseEvent

	SessionID  string            `json:"session_id"`
	EntityID   string            `json:"entity_id"`
	EntityType models.EntityType `json:"entity_type"`
	Created    bool              `json:"created"`
}

func NewEntitySaved(sessionID string, entity *models.Entity, created bool) *EntitySaved {
	return &EntitySaved{
		BaseEvent:  newBase(EntitySavedEvent),
		SessionID:  sessionID,
		EntityID:   entity.ID,
		EntityType: entity.Type,
		Created:    created,
	}
}

func (e EntitySaved) GetType() EventType {
	return EntitySavedEvent
}

func (e *EntitySaved) Validate() error {
	if e.SessionID == "" {
		return ErrSessionIDRequired
	}

	return nil
}
