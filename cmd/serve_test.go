package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/dataset"
	"github.com/sells-group/leadgen-cli/internal/extract"
	"github.com/sells-group/leadgen-cli/internal/mapping"
	"github.com/sells-group/leadgen-cli/internal/registry"
	"github.com/sells-group/leadgen-cli/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, *dataset.Store) {
	t.Helper()
	files := dataset.NewStore(t.TempDir())
	env := &pipelineEnv{
		files:    files,
		mapStore: mapping.NewStore(files),
		regStore: registry.NewStore(files),
	}
	env.extract = extract.New(env.files, env.mapStore, env.regStore)

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	return newRouter(env, st), files
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestExtractEndpoint(t *testing.T) {
	router, files := newTestRouter(t)
	require.NoError(t, files.Save("postData", []any{
		map[string]any{"content": "hello"},
		map[string]any{"content": "world"},
	}))

	body := `{"source": "postData", "path": "content"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	var out extract.Output
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "success", out.Status)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, "hello", out.Data[0].Value)
}

func TestExtractEndpointBadBody(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLinkEndpoint(t *testing.T) {
	router, files := newTestRouter(t)
	require.NoError(t, files.Save(mapping.MappingFile, map[string]any{
		"leads": []any{
			map[string]any{"postIndex": float64(0)},
			map[string]any{"postIndex": float64(1)},
		},
	}))

	body := `{"source_field": "postIndex", "target_field": "profileIndex", "indices": [0, 1]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/link", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	var out mapping.LinkOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "success", out.Status)
	assert.Equal(t, 2, out.Linked)
}

func TestRunsEndpointEmpty(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
