package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukex/composer/pkg/eventbus"
	"github.com/dukex/composer/pkg/events"
	"github.com/dukex/composer/pkg/metrics"
	"github.com/dukex/composer/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// DefaultCheckpointSchedule refreshes pending HITL checkpoints.
const DefaultCheckpointSchedule = "@every 10s"

type CheckpointsConfig struct {
	API       API
	Publisher eventbus.EventPublisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Checkpoints lists and answers human-in-the-loop checkpoints and keeps the
// last pending list for the console.
type Checkpoints struct {
	api       API
	publisher eventbus.EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	validate  *validator.Validate

	mu          sync.RWMutex
	pending     []models.Checkpoint
	refreshedAt time.Time
	cron        *cron.Cron
}

func NewCheckpoints(cfg CheckpointsConfig) *Checkpoints {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Checkpoints{
		api:       cfg.API,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    logger.With("module", "checkpoints_service"),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Pending fetches the current list from the execution API.
func (c *Checkpoints) Pending(ctx context.Context) ([]models.Checkpoint, error) {
	pending, err := c.api.ListPendingCheckpoints(ctx)
	if err != nil {
		return nil, fromAPI("ListPendingCheckpoints", err, nil)
	}

	if pending == nil {
		pending = []models.Checkpoint{}
	}

	c.mu.Lock()
	c.pending = slices.Clone(pending)
	c.refreshedAt = time.Now().UTC()
	c.mu.Unlock()

	return pending, nil
}

// Cached returns the list from the last refresh and when it was taken.
func (c *Checkpoints) Cached() ([]models.Checkpoint, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.pending), c.refreshedAt
}

// Refresh fetches the pending list and announces it on the event bus.
func (c *Checkpoints) Refresh(ctx context.Context) error {
	pending, err := c.Pending(ctx)
	if err != nil {
		return err
	}

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, "checkpoints", events.NewCheckpointsRefreshed(pending)); err != nil {
			return fmt.Errorf("failed to publish checkpoints: %w", err)
		}
	}

	return nil
}

// Respond approves or rejects a checkpoint.
func (c *Checkpoints) Respond(ctx context.Context, id string, resp models.CheckpointResponse) (*models.Checkpoint, error) {
	if id == "" {
		return nil, NewValidationError("Respond", "checkpoint_id_required", "checkpoint id is required", ErrInvalidRequest)
	}

	if err := c.validate.Struct(resp); err != nil {
		return nil, NewValidationError("Respond", "invalid_checkpoint_response", "status must be APPROVED or REJECTED", ErrInvalidCheckpointResponse)
	}

	checkpoint, err := c.api.RespondCheckpoint(ctx, id, resp)
	if err != nil {
		return nil, fromAPI("RespondCheckpoint", err, ErrEntityNotFound)
	}

	c.metrics.CheckpointResponded(string(resp.Status))

	c.mu.Lock()
	c.pending = slices.DeleteFunc(c.pending, func(p models.Checkpoint) bool { return p.ID == id })
	c.mu.Unlock()

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, id, events.NewCheckpointResponded(id, resp)); err != nil {
			c.logger.WarnContext(ctx, "Failed to publish checkpoint response", "checkpoint_id", id, "error", err)
		}
	}

	c.logger.InfoContext(ctx, "Checkpoint answered", "checkpoint_id", id, "status", resp.Status)

	return checkpoint, nil
}

// Start refreshes the pending list on schedule until Stop.
func (c *Checkpoints) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultCheckpointSchedule
	}

	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := scheduler.AddFunc(schedule, func() {
		if err := c.Refresh(ctx); err != nil {
			c.logger.WarnContext(ctx, "Checkpoint refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid checkpoint schedule %q: %w", schedule, err)
	}

	c.mu.Lock()
	c.cron = scheduler
	c.mu.Unlock()

	scheduler.Start()
	c.logger.InfoContext(ctx, "Checkpoint watcher started", "schedule", schedule)

	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (c *Checkpoints) Stop() {
	c.mu.Lock()
	scheduler := c.cron
	c.cron = nil
	c.mu.Unlock()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
}
