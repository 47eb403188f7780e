package actor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-token", WithBaseURL(srv.URL), WithRateLimit(0))
}

func TestStartRun(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/acts/harvestapi~linkedin-post-search/runs", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var input map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		assert.Equal(t, "slack pricing", input["query"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(runEnvelope{Data: Run{
			ID:               "run-1",
			Status:           "RUNNING",
			DefaultDatasetID: "ds-1",
		}})
	})

	run, err := c.StartRun(context.Background(), "harvestapi~linkedin-post-search", map[string]any{"query": "slack pricing"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "ds-1", run.DefaultDatasetID)
}

func TestStartRunAPIError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad token"}`))
	})

	_, err := c.StartRun(context.Background(), "a~b", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestGetDatasetItems(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/datasets/ds-1/items", r.URL.Path)
		json.NewEncoder(w).Encode([]any{
			map[string]any{"content": "a"},
			map[string]any{"content": "b"},
		})
	})

	items, err := c.GetDatasetItems(context.Background(), "ds-1")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestPollRunUntilSucceeded(t *testing.T) {
	calls := 0
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		status := "RUNNING"
		if calls >= 3 {
			status = StatusSucceeded
		}
		json.NewEncoder(w).Encode(runEnvelope{Data: Run{ID: "run-1", Status: status, DefaultDatasetID: "ds-1"}})
	})

	run, err := PollRun(context.Background(), c, "run-1", WithPollInterval(0), WithPollCap(0))
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.GreaterOrEqual(t, calls, 3)
}

func TestRunAndFetch(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(runEnvelope{Data: Run{ID: "run-1", Status: "RUNNING", DefaultDatasetID: "ds-1"}})
		case r.URL.Path == "/actor-runs/run-1":
			json.NewEncoder(w).Encode(runEnvelope{Data: Run{ID: "run-1", Status: StatusSucceeded, DefaultDatasetID: "ds-1"}})
		case r.URL.Path == "/datasets/ds-1/items":
			json.NewEncoder(w).Encode([]any{map[string]any{"content": "hello"}})
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	items, err := RunAndFetch(context.Background(), c, "a~b", map[string]any{"q": "x"}, WithPollInterval(0))
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestRunAndFetchFailedRun(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(runEnvelope{Data: Run{ID: "run-1", Status: "RUNNING"}})
			return
		}
		json.NewEncoder(w).Encode(runEnvelope{Data: Run{ID: "run-1", Status: StatusFailed}})
	})

	_, err := RunAndFetch(context.Background(), c, "a~b", nil, WithPollInterval(0))
	assert.Error(t, err)
}
