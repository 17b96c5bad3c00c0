package client

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/composer/pkg/models"
	"github.com/dukex/composer/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const DefaultBaseURL = "http://localhost:8000/api/v1"

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. "http://localhost:8000/api/v1".
	BaseURL string

	// Credentials carries the session tokens attached to every request.
	Credentials *Credentials

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with Timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration

	// Tracer records a span per call. Defaults to a no-op tracer.
	Tracer trace.Tracer

	// RefreshTimeout bounds a credential refresh. Defaults to 10 seconds.
	RefreshTimeout time.Duration

	Logger *slog.Logger
}

// Client talks to the entity, execution and approval endpoints.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	creds   *Credentials
	tracer  trace.Tracer
	logger  *slog.Logger
	refresh singleflight.Group

	refreshTimeout time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("api: invalid BaseURL %q: %w", baseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}

		httpClient = &http.Client{Timeout: timeout}
	}

	creds := cfg.Credentials
	if creds == nil {
		creds = NewCredentials("", "")
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otelhelper.NoopTracer()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           httpClient,
		creds:          creds,
		tracer:         tracer,
		logger:         logger.With("module", "client"),
		refreshTimeout: cmp.Or(cfg.RefreshTimeout, 10*time.Second),
	}, nil
}

// Credentials exposes the session tokens, e.g. to clear them on sign-out.
func (c *Client) Credentials() *Credentials {
	return c.creds
}

func (c *Client) ListEntities(ctx context.Context) ([]models.Entity, error) {
	var entities []models.Entity

	err := c.call(ctx, "list_entities", http.MethodGet, "/ai/entities", nil, &entities)

	return entities, err
}

func (c *Client) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	var entity models.Entity

	err := c.call(ctx, "get_entity", http.MethodGet, "/ai/entities/"+url.PathEscape(id), nil, &entity,
		attribute.String(otelhelper.EntityIDKey, id))
	if err != nil {
		return nil, err
	}

	return &entity, nil
}

func (c *Client) CreateEntity(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	var created models.Entity

	err := c.call(ctx, "create_entity", http.MethodPost, "/ai/entities", e, &created,
		attribute.String(otelhelper.EntityTypeKey, string(e.Type)))
	if err != nil {
		return nil, err
	}

	return &created, nil
}

func (c *Client) UpdateEntity(ctx context.Context, id string, e *models.Entity) (*models.Entity, error) {
	var updated models.Entity

	err := c.call(ctx, "update_entity", http.MethodPut, "/ai/entities/"+url.PathEscape(id), e, &updated,
		attribute.String(otelhelper.EntityIDKey, id))
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

func (c *Client) DeleteEntity(ctx context.Context, id string) error {
	return c.call(ctx, "delete_entity", http.MethodDelete, "/ai/entities/"+url.PathEscape(id), nil, nil,
		attribute.String(otelhelper.EntityIDKey, id))
}

func (c *Client) ListTools(ctx context.Context) ([]models.Tool, error) {
	var tools []models.Tool

	err := c.call(ctx, "list_tools", http.MethodGet, "/ai/tools", nil, &tools)

	return tools, err
}

// TriggerRequest starts an execution of an entity.
type TriggerRequest struct {
	EntityID  string         `json:"entity_id"  validate:"required"`
	InputData map[string]any `json:"input_data"`
}

type triggerResponse struct {
	RunID string `json:"run_id"`
	ID    string `json:"id"`
}

// TriggerExecution starts a run and returns its id.
func (c *Client) TriggerExecution(ctx context.Context, req TriggerRequest) (string, error) {
	if req.InputData == nil {
		req.InputData = map[string]any{}
	}

	var resp triggerResponse

	err := c.call(ctx, "trigger_execution", http.MethodPost, "/ai/execute", req, &resp,
		attribute.String(otelhelper.EntityIDKey, req.EntityID))
	if err != nil {
		return "", err
	}

	if resp.RunID != "" {
		return resp.RunID, nil
	}

	if resp.ID != "" {
		return resp.ID, nil
	}

	return "", fmt.Errorf("api: trigger response carried no run id")
}

// GetRun fetches the full recursive run tree.
func (c *Client) GetRun(ctx context.Context, id string) (*models.ExecutionRun, error) {
	var run models.ExecutionRun

	err := c.call(ctx, "get_run", http.MethodGet, "/ai/executions/"+url.PathEscape(id), nil, &run,
		attribute.String(otelhelper.RunIDKey, id))
	if err != nil {
		return nil, err
	}

	return &run, nil
}

// ListRuns returns recent root runs, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]models.ExecutionRun, error) {
	path := "/ai/executions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var runs []models.ExecutionRun

	err := c.call(ctx, "list_runs", http.MethodGet, path, nil, &runs)

	return runs, err
}

func (c *Client) ListPendingCheckpoints(ctx context.Context) ([]models.Checkpoint, error) {
	var checkpoints []models.Checkpoint

	err := c.call(ctx, "list_pending_checkpoints", http.MethodGet, "/ai/approvals/pending", nil, &checkpoints)

	return checkpoints, err
}

func (c *Client) RespondCheckpoint(ctx context.Context, id string, resp models.CheckpointResponse) (*models.Checkpoint, error) {
	var checkpoint models.Checkpoint

	err := c.call(ctx, "respond_checkpoint", http.MethodPost, "/ai/approvals/"+url.PathEscape(id)+"/respond", resp, &checkpoint,
		attribute.String(otelhelper.CheckpointIDKey, id))
	if err != nil {
		return nil, err
	}

	return &checkpoint, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges the refresh token for a new pair. Concurrent callers
// share a single request, which runs detached from any caller's context and
// is bounded by the refresh timeout. Credentials are cleared only when the
// API refuses the refresh token; transport failures and 5xx keep them.
func (c *Client) Refresh(ctx context.Context) error {
	result := c.refresh.DoChan("refresh", func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
		defer cancel()

		return nil, c.exchange(refreshCtx)
	})

	select {
	case res := <-result:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("api: refresh: %w", ctx.Err())
	}
}

func (c *Client) exchange(ctx context.Context) error {
	refreshToken := c.creds.RefreshToken()
	if refreshToken == "" {
		c.creds.Clear()

		return ErrSessionExpired
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return fmt.Errorf("api: marshal request body: %w", err)
	}

	var tokens refreshResponse

	err = c.send(ctx, http.MethodPost, "/auth/refresh", body, "", &tokens)

	switch {
	case isClientError(err):
		c.logger.WarnContext(ctx, "Refresh token rejected, clearing session", "error", err)
		c.creds.Clear()

		return errors.Join(ErrSessionExpired, err)
	case err != nil:
		c.logger.WarnContext(ctx, "Credential refresh failed, keeping session", "error", err)

		return err
	case tokens.AccessToken == "":
		c.creds.Clear()

		return fmt.Errorf("%w: refresh response carried no access token", ErrSessionExpired)
	}

	c.creds.Set(tokens.AccessToken, tokens.RefreshToken)

	return nil
}

// call runs one authenticated request with a single refresh-and-retry on 401.
func (c *Client) call(ctx context.Context, op, method, path string, body any, dest any, attrs ...attribute.KeyValue) (err error) {
	attrs = append(attrs,
		attribute.String(otelhelper.HTTPMethodKey, method),
		attribute.String(otelhelper.HTTPPathKey, path),
	)

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "client."+op, attrs...)
	defer func() { otelhelper.Finish(span, err) }()

	var encoded []byte

	if body != nil {
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: marshal request body: %w", err)
		}
	}

	if c.creds.AccessToken() == "" && c.creds.RefreshToken() == "" {
		return ErrNoCredentials
	}

	refreshed := false

	if c.creds.AccessToken() == "" || c.creds.Expired() {
		if err := c.Refresh(ctx); err != nil {
			return err
		}

		refreshed = true
	}

	err = c.send(ctx, method, path, encoded, c.creds.AccessToken(), dest)
	if err == nil || refreshed || !statusIs(err, http.StatusUnauthorized) {
		return err
	}

	c.logger.DebugContext(ctx, "Access token rejected, refreshing", "path", path)

	if err := c.Refresh(ctx); err != nil {
		return err
	}

	err = c.send(ctx, method, path, encoded, c.creds.AccessToken(), dest)
	if statusIs(err, http.StatusUnauthorized) {
		c.creds.Clear()

		return errors.Join(ErrSessionExpired, err)
	}

	return err
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, token string, dest any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w: %w", method, path, ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read response body: %w: %w", ErrTransport, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}

	if err := json.Unmarshal(bodyBytes, dest); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}

	return nil
}

// errorBody covers both {"detail": "..."} and {"code": ..., "message": ...}.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode, Code: http.StatusText(statusCode), Message: string(body)}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return apiErr
	}

	if parsed.Code != "" {
		apiErr.Code = parsed.Code
	}

	switch {
	case parsed.Message != "":
		apiErr.Message = parsed.Message
	case len(parsed.Detail) > 0:
		var detail string
		if json.Unmarshal(parsed.Detail, &detail) == nil {
			apiErr.Message = detail
		} else {
			apiErr.Message = string(parsed.Detail)
		}
	}

	return apiErr
}
