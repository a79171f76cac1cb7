package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/timecamp-tools/timecamp-sync/internal/config"
	"github.com/timecamp-tools/timecamp-sync/internal/metrics"
	"github.com/timecamp-tools/timecamp-sync/internal/model"
	"github.com/timecamp-tools/timecamp-sync/internal/pipeline"
	"github.com/timecamp-tools/timecamp-sync/internal/prepare"
	"github.com/timecamp-tools/timecamp-sync/internal/storage"
	tcsync "github.com/timecamp-tools/timecamp-sync/internal/sync"
	"github.com/timecamp-tools/timecamp-sync/internal/timecamp"
)

type stubAPI struct{}

func (stubAPI) GetUsers(context.Context) ([]timecamp.User, error)       { return nil, nil }
func (stubAPI) GetGroups(context.Context) ([]timecamp.Group, error)     { return nil, nil }
func (stubAPI) AddUser(context.Context, string, string, int) (int, error) {
	return 1, nil
}
func (stubAPI) UpdateUser(context.Context, int, timecamp.UserUpdate) error { return nil }
func (stubAPI) AddGroup(context.Context, string, int) (int, error)         { return 1, nil }
func (stubAPI) SetGroupManager(context.Context, int, int, bool) error      { return nil }
func (stubAPI) SetUserSetting(context.Context, int, string, string) error  { return nil }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	cfg := &config.Config{RootGroupID: 1, UseDepartmentGroups: true, IgnoredUserIDs: map[int]bool{}}
	logger := zap.NewNop()
	store := storage.NewLocalStore(t.TempDir(), logger)

	raw, err := json.Marshal(model.PersonSet{Users: []model.Person{
		{ExternalID: "1", Name: "Jane", Email: "jane@acme.com", Status: "active"},
	}})
	require.NoError(t, err)
	require.NoError(t, store.PutJSON(context.Background(), storage.KeyPersons, raw))

	m := metrics.New()
	p := pipeline.New(store, prepare.New(cfg, logger), tcsync.New(cfg, stubAPI{}, m, logger), m, logger)

	return NewRouter(RouterConfig{Pipeline: p, Metrics: m, Logger: logger})
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Status  string `json:"status"`
			Running bool   `json:"running"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Data.Status)
	assert.False(t, body.Data.Running)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "timecamp_sync_users_created_total")
}

func TestRunEndpointWaits(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run?wait=true", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data pipeline.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Data.RunID)
	assert.Equal(t, 1, body.Data.Sync.Created)
}

func TestRunEndpointDryRun(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run?wait=true&dry_run=true", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data pipeline.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Data.DryRun)
}

func TestRunEndpointAsyncAccepted(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)

	var body struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "started", body.Data.Status)
}

func TestRunEndpointMethod(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/run", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
