package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/composer/pkg/client"
	"github.com/dukex/composer/pkg/eventbus"
	"github.com/dukex/composer/pkg/events"
	"github.com/dukex/composer/pkg/metrics"
	"github.com/dukex/composer/pkg/models"
	"github.com/dukex/composer/pkg/template"
	"github.com/dukex/composer/pkg/trace"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
	streamBuffer     = 8
)

type TracesConfig struct {
	API       API
	Publisher eventbus.EventPublisher
	Poller    trace.PollerConfig
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Traces triggers runs and keeps one poller per watched run. Snapshots go
// out on the event bus and come back to the local streams through Register.
type Traces struct {
	api       API
	publisher eventbus.EventPublisher
	config    trace.PollerConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu      sync.Mutex
	watches map[string]*watch
	streams map[string]map[chan eventbus.Event]struct{}
}

type watch struct {
	poller *trace.Poller
	refs   int
	last   models.RunStatus
}

func NewTraces(cfg TracesConfig) *Traces {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	config := cfg.Poller
	config.Permanent = client.IsNotFound
	config.OnTick = cfg.Metrics.PollTick
	config.Logger = logger

	return &Traces{
		api:       cfg.API,
		publisher: cfg.Publisher,
		config:    config,
		metrics:   cfg.Metrics,
		logger:    logger.With("module", "traces_service"),
		watches:   make(map[string]*watch),
		streams:   make(map[string]map[chan eventbus.Event]struct{}),
	}
}

type TriggerRequest struct {
	EntityID  string         `json:"entity_id"`
	InputData map[string]any `json:"input_data"`
}

// RequiredInputs lists the template variables of every inline prompt of e,
// each once, in order of first occurrence.
func RequiredInputs(e *models.Entity) []string {
	var names []string

	for _, step := range e.Steps() {
		for _, name := range template.ExtractVariables(step.Target.PromptTemplate) {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}

	return names
}

// Trigger starts a run after checking every prompt variable has a value.
func (t *Traces) Trigger(ctx context.Context, req TriggerRequest) (string, error) {
	if req.EntityID == "" {
		return "", NewValidationError("Trigger", "entity_id_required", "entity_id is required", ErrInvalidRequest)
	}

	target, err := t.api.GetEntity(ctx, req.EntityID)
	if err != nil {
		return "", fromAPI("Trigger", err, ErrEntityNotFound)
	}

	var missing []string

	for _, name := range RequiredInputs(target) {
		if _, ok := req.InputData[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return "", &ServiceError{
			Op:      "Trigger",
			Code:    "missing_inputs",
			Message: "missing input values: " + strings.Join(missing, ", "),
			Err:     ErrMissingInputs,
			Details: missing,
		}
	}

	runID, err := t.api.TriggerExecution(ctx, client.TriggerRequest{EntityID: req.EntityID, InputData: req.InputData})
	if err != nil {
		return "", fromAPI("Trigger", err, ErrEntityNotFound)
	}

	t.logger.InfoContext(ctx, "Run triggered", "entity_id", req.EntityID, "run_id", runID)

	return runID, nil
}

// RunView is a run tree with everything the trace view derives from it.
type RunView struct {
	Run               *models.ExecutionRun    `json:"run"`
	Totals            trace.Totals            `json:"totals"`
	Nodes             map[string]trace.Totals `json:"nodes"`
	FailedDescendants []string                `json:"failed_descendants,omitempty"`
}

func NewRunView(run *models.ExecutionRun) *RunView {
	return &RunView{
		Run:               run,
		Totals:            trace.Aggregate(run),
		Nodes:             trace.AggregateTree(run),
		FailedDescendants: trace.FailedDescendants(run),
	}
}

func (t *Traces) Get(ctx context.Context, runID string) (*RunView, error) {
	run, err := t.api.GetRun(ctx, runID)
	if err != nil {
		return nil, fromAPI("GetRun", err, ErrRunNotFound)
	}

	return NewRunView(run), nil
}

// List returns recent runs. limit is clamped to 1..100, default 20.
func (t *Traces) List(ctx context.Context, limit int) ([]models.ExecutionRun, error) {
	switch {
	case limit <= 0:
		limit = defaultRunsLimit
	case limit > maxRunsLimit:
		limit = maxRunsLimit
	}

	runs, err := t.api.ListRuns(ctx, limit)
	if err != nil {
		return nil, fromAPI("ListRuns", err, nil)
	}

	return runs, nil
}

// Watch starts polling runID unless a poller already runs for it. Every
// Watch must be paired with an Unwatch. Polling outlives the caller's
// context; it stops on a terminal status or when the last watcher leaves.
func (t *Traces) Watch(ctx context.Context, runID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if w, ok := t.watches[runID]; ok {
		w.refs++

		return nil
	}

	w := &watch{refs: 1}

	w.poller = trace.NewPoller(t.api, t.config, func(run *models.ExecutionRun) {
		t.mu.Lock()
		w.last = run.Status
		t.mu.Unlock()

		t.publish(ctx, runID, events.NewTraceSnapshot(run))
	})

	if err := w.poller.Start(context.WithoutCancel(ctx), runID); err != nil {
		return fmt.Errorf("failed to start poller: %w", err)
	}

	t.watches[runID] = w
	t.metrics.PollerStarted()

	go t.finish(ctx, runID, w)

	return nil
}

// finish publishes the outcome once the poller exits and forgets it.
func (t *Traces) finish(ctx context.Context, runID string, w *watch) {
	<-w.poller.Done()

	t.mu.Lock()
	if current, ok := t.watches[runID]; ok && current == w {
		delete(t.watches, runID)
	}
	status := w.last
	t.mu.Unlock()

	t.metrics.PollerStopped()

	t.publish(ctx, runID, events.NewTraceFinished(runID, status, w.poller.Err()))
}

// Unwatch releases one Watch. The poller stops when nobody watches.
func (t *Traces) Unwatch(runID string) {
	t.mu.Lock()

	w, ok := t.watches[runID]
	if !ok {
		t.mu.Unlock()

		return
	}

	w.refs--
	if w.refs > 0 {
		t.mu.Unlock()

		return
	}

	delete(t.watches, runID)
	t.mu.Unlock()

	w.poller.Stop()
}

// Watching reports whether a poller runs for runID.
func (t *Traces) Watching(runID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.watches[runID]

	return ok
}

func (t *Traces) publish(ctx context.Context, runID string, event eventbus.Event) {
	if t.publisher == nil {
		t.dispatch(runID, event)

		return
	}

	if err := t.publisher.Publish(context.WithoutCancel(ctx), runID, event); err != nil {
		t.logger.WarnContext(ctx, "Failed to publish trace event", "run_id", runID, "event_type", event.GetType(), "error", err)
	}
}

// Register routes trace events received from the bus to the local streams.
func (t *Traces) Register(sub eventbus.EventSubscriber) error {
	if err := sub.Handle(events.TraceSnapshotEvent, func(_ context.Context, event any) error {
		if snapshot, ok := event.(*events.TraceSnapshot); ok {
			t.dispatch(snapshot.RunID, snapshot)
		}

		return nil
	}); err != nil {
		return err
	}

	return sub.Handle(events.TraceFinishedEvent, func(_ context.Context, event any) error {
		if finished, ok := event.(*events.TraceFinished); ok {
			t.dispatch(finished.RunID, finished)
		}

		return nil
	})
}

// dispatch never blocks: a stream that is behind loses intermediate
// snapshots, which are superseded by the next one anyway.
func (t *Traces) dispatch(runID string, event eventbus.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for ch := range t.streams[runID] {
		select {
		case ch <- event:
		default:
			if event.GetType() == events.TraceFinishedEvent {
				// make room so the stream learns it is over
				select {
				case <-ch:
				default:
				}

				select {
				case ch <- event:
				default:
				}
			}
		}
	}
}

// Stream watches runID and delivers its events until ctx is done or the
// run finishes. The channel is closed afterwards.
func (t *Traces) Stream(ctx context.Context, runID string) (<-chan eventbus.Event, error) {
	in := make(chan eventbus.Event, streamBuffer)

	t.mu.Lock()
	if t.streams[runID] == nil {
		t.streams[runID] = make(map[chan eventbus.Event]struct{})
	}
	t.streams[runID][in] = struct{}{}
	t.mu.Unlock()

	if err := t.Watch(ctx, runID); err != nil {
		t.removeStream(runID, in)

		return nil, err
	}

	out := make(chan eventbus.Event)

	go func() {
		defer close(out)
		defer t.Unwatch(runID)
		defer t.removeStream(runID, in)

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-in:
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}

				if event.GetType() == events.TraceFinishedEvent {
					return
				}
			}
		}
	}()

	return out, nil
}

func (t *Traces) removeStream(runID string, ch chan eventbus.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.streams[runID], ch)

	if len(t.streams[runID]) == 0 {
		delete(t.streams, runID)
	}
}

// Close stops every poller.
func (t *Traces) Close() {
	t.mu.Lock()
	watches := t.watches
	t.watches = make(map[string]*watch)
	t.mu.Unlock()

	for _, w := range watches {
		w.poller.Stop()
	}
}
