package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/composer/pkg/client"
	"github.com/dukex/composer/pkg/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, mux *http.ServeMux, access, refresh string) *client.Client {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := client.NewClient(client.Config{
		BaseURL:     srv.URL,
		Credentials: client.NewCredentials(access, refresh),
	})
	require.NoError(t, err)

	return c
}

func TestClient_GetRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ai/executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{
			"id":     r.PathValue("id"),
			"status": "RUNNING",
			"child_runs": []map[string]any{
				{"id": "child-1", "status": "COMPLETED", "llm_logs": []map[string]any{{"model_name": "gpt-4o", "prompt_tokens": 10}}},
			},
		})
	})

	c := newTestClient(t, mux, "token-1", "")

	run, err := c.GetRun(t.Context(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	require.Len(t, run.ChildRuns, 1)
	assert.Equal(t, int64(10), run.ChildRuns[0].LLMLogs[0].PromptTokens)
}

func TestClient_TriggerExecution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response map[string]any
		want     string
		wantErr  bool
	}{
		{name: "run_id", response: map[string]any{"run_id": "r1"}, want: "r1"},
		{name: "run record", response: map[string]any{"id": "r2", "status": "PENDING"}, want: "r2"},
		{name: "empty", response: map[string]any{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mux := http.NewServeMux()
			mux.HandleFunc("POST /ai/execute", func(w http.ResponseWriter, r *http.Request) {
				var req client.TriggerRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "entity-1", req.EntityID)
				assert.NotNil(t, req.InputData)
				writeJSON(w, http.StatusOK, tt.response)
			})

			c := newTestClient(t, mux, "token", "")

			runID, err := c.TriggerExecution(t.Context(), client.TriggerRequest{EntityID: "entity-1"})
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, runID)
		})
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ai/entities", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]any{"detail": "Entity name already exists"})
	})
	mux.HandleFunc("GET /ai/entities/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"code": "not_found", "message": "no such entity"})
	})
	mux.HandleFunc("GET /ai/tools", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	c := newTestClient(t, mux, "token", "")

	_, err := c.CreateEntity(t.Context(), &models.Entity{Name: "dup"})
	require.Error(t, err)
	assert.True(t, client.IsConflict(err))
	assert.Contains(t, err.Error(), "Entity name already exists")

	_, err = c.GetEntity(t.Context(), "missing")
	assert.True(t, client.IsNotFound(err))

	_, err = c.ListTools(t.Context())
	assert.True(t, client.IsTransport(err))
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NewServeMux())
	srv.Close()

	c, err := client.NewClient(client.Config{BaseURL: srv.URL, Credentials: client.NewCredentials("t", "")})
	require.NoError(t, err)

	_, err = c.ListEntities(t.Context())
	require.ErrorIs(t, err, client.ErrTransport)
	assert.True(t, client.IsTransport(err))
}

func TestClient_RefreshOnceOn401(t *testing.T) {
	var refreshes atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refresh-1", body["refresh_token"])
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "fresh", "refresh_token": "refresh-2"})
	})
	mux.HandleFunc("GET /ai/tools", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})

			return
		}

		writeJSON(w, http.StatusOK, []models.Tool{{Name: "web_search"}})
	})

	c := newTestClient(t, mux, "stale", "refresh-1")

	tools, err := c.ListTools(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []models.Tool{{Name: "web_search"}}, tools)
	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, "fresh", c.Credentials().AccessToken())
	assert.Equal(t, "refresh-2", c.Credentials().RefreshToken())
}

func TestClient_RefreshFailureClearsSession(t *testing.T) {
	var toolCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "refresh token revoked"})
	})
	mux.HandleFunc("GET /ai/tools", func(w http.ResponseWriter, _ *http.Request) {
		toolCalls.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})
	})

	c := newTestClient(t, mux, "stale", "revoked")

	_, err := c.ListTools(t.Context())
	require.ErrorIs(t, err, client.ErrSessionExpired)
	assert.True(t, client.IsUnauthorized(err))
	assert.Equal(t, int32(1), toolCalls.Load())
	assert.Empty(t, c.Credentials().AccessToken())
	assert.Empty(t, c.Credentials().RefreshToken())

	_, err = c.ListTools(t.Context())
	require.ErrorIs(t, err, client.ErrNoCredentials)
}

func TestClient_ConcurrentRefreshIsCoalesced(t *testing.T) {
	var refreshes atomic.Int32

	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		refreshes.Add(1)
		<-release
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "fresh"})
	})
	mux.HandleFunc("GET /ai/approvals/pending", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []models.Checkpoint{})
	})

	c := newTestClient(t, mux, "", "refresh-1")

	var wg sync.WaitGroup

	for range 5 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := c.ListPendingCheckpoints(t.Context())
			assert.NoError(t, err)
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), refreshes.Load())
}

func TestClient_ExpiredJWTIsRefreshedProactively(t *testing.T) {
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	var sawExpired atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "fresh"})
	})
	mux.HandleFunc("POST /ai/approvals/{id}/respond", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer "+expired {
			sawExpired.Store(true)
		}

		var resp models.CheckpointResponse
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&resp))
		writeJSON(w, http.StatusOK, models.Checkpoint{ID: r.PathValue("id"), Status: resp.Status})
	})

	c := newTestClient(t, mux, expired, "refresh-1")

	checkpoint, err := c.RespondCheckpoint(t.Context(), "cp-1", models.CheckpointResponse{Status: models.CheckpointStatusApproved})
	require.NoError(t, err)
	assert.Equal(t, models.CheckpointStatusApproved, checkpoint.Status)
	assert.False(t, sawExpired.Load())
}

func TestCredentials_Expired(t *testing.T) {
	assert.False(t, client.NewCredentials("opaque-token", "").Expired())
	assert.False(t, client.NewCredentials("", "").Expired())

	valid, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	assert.False(t, client.NewCredentials(valid, "").Expired())
}

func TestClient_CancelledCallerKeepsSession(t *testing.T) {
	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "fresh", "refresh_token": "refresh-2"})
	})
	mux.HandleFunc("GET /ai/tools", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})

			return
		}

		writeJSON(w, http.StatusOK, []models.Tool{})
	})

	c := newTestClient(t, mux, "stale", "refresh-1")

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err := c.ListTools(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, client.IsUnauthorized(err))
	assert.Equal(t, "refresh-1", c.Credentials().RefreshToken())

	close(release)

	assert.Eventually(t, func() bool {
		return c.Credentials().AccessToken() == "fresh"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "refresh-2", c.Credentials().RefreshToken())
}

func TestClient_RefreshOutageKeepsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "auth is down"})
	})
	mux.HandleFunc("GET /ai/tools", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})
	})

	c := newTestClient(t, mux, "stale", "refresh-1")

	_, err := c.ListTools(t.Context())
	require.Error(t, err)
	assert.True(t, client.IsTransport(err))
	assert.NotErrorIs(t, err, client.ErrSessionExpired)
	assert.Equal(t, "stale", c.Credentials().AccessToken())
	assert.Equal(t, "refresh-1", c.Credentials().RefreshToken())
}

func TestClient_RefreshTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := client.NewClient(client.Config{
		BaseURL:        srv.URL,
		Credentials:    client.NewCredentials("", "refresh-1"),
		RefreshTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	err = c.Refresh(t.Context())
	require.ErrorIs(t, err, client.ErrTransport)
	assert.Equal(t, "refresh-1", c.Credentials().RefreshToken())
}
