package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/timecamp-tools/timecamp-sync/internal/config"
	"github.com/timecamp-tools/timecamp-sync/internal/model"
	"github.com/timecamp-tools/timecamp-sync/internal/prepare"
	"github.com/timecamp-tools/timecamp-sync/internal/storage"
	tcsync "github.com/timecamp-tools/timecamp-sync/internal/sync"
	"github.com/timecamp-tools/timecamp-sync/internal/timecamp"
)

// stubAPI is an empty-account TimeCamp double. blockFor, when set, stalls
// GetUsers so tests can observe an in-flight run.
type stubAPI struct {
	blockFor time.Duration
}

func (s *stubAPI) GetUsers(context.Context) ([]timecamp.User, error) {
	if s.blockFor > 0 {
		time.Sleep(s.blockFor)
	}
	return nil, nil
}
func (s *stubAPI) GetGroups(context.Context) ([]timecamp.Group, error) { return nil, nil }
func (s *stubAPI) AddUser(context.Context, string, string, int) (int, error) {
	return 1, nil
}
func (s *stubAPI) UpdateUser(context.Context, int, timecamp.UserUpdate) error { return nil }
func (s *stubAPI) AddGroup(context.Context, string, int) (int, error)         { return 1, nil }
func (s *stubAPI) SetGroupManager(context.Context, int, int, bool) error      { return nil }
func (s *stubAPI) SetUserSetting(context.Context, int, string, string) error  { return nil }

func newTestPipeline(t *testing.T, api tcsync.API) (*Pipeline, storage.Store) {
	t.Helper()

	cfg := &config.Config{RootGroupID: 1, UseDepartmentGroups: true, IgnoredUserIDs: map[int]bool{}}
	logger := zap.NewNop()
	store := storage.NewLocalStore(t.TempDir(), logger)

	raw, err := json.Marshal(model.PersonSet{Users: []model.Person{
		{ExternalID: "1", Name: "Jane", Email: "jane@acme.com", Status: "active"},
	}})
	require.NoError(t, err)
	require.NoError(t, store.PutJSON(context.Background(), storage.KeyPersons, raw))

	p := New(store, prepare.New(cfg, logger), tcsync.New(cfg, api, nil, logger), nil, logger)
	return p, store
}

func TestRunExecutesBothStages(t *testing.T) {
	t.Parallel()

	p, store := newTestPipeline(t, &stubAPI{})

	res, err := p.Run(context.Background(), false)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.DryRun)
	assert.Equal(t, 1, res.Prepare.Emitted)
	assert.Equal(t, 1, res.Sync.Created)

	// The prepare stage wrote the intermediate artifact.
	ok, err := store.Exists(context.Background(), storage.KeyDesiredUsers)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunRejectsOverlap(t *testing.T) {
	t.Parallel()

	p, _ := newTestPipeline(t, &stubAPI{blockFor: 300 * time.Millisecond})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := p.Run(context.Background(), false)
		assert.NoError(t, err)
	}()

	// Give the first run time to pass the single-flight gate.
	time.Sleep(100 * time.Millisecond)
	assert.True(t, p.Running())

	_, err := p.Run(context.Background(), false)
	assert.ErrorIs(t, err, ErrRunInProgress)

	wg.Wait()
	assert.False(t, p.Running())
}

func TestRunFailsWithoutSourceArtifact(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{RootGroupID: 1, IgnoredUserIDs: map[int]bool{}}
	logger := zap.NewNop()
	store := storage.NewLocalStore(t.TempDir(), logger)

	p := New(store, prepare.New(cfg, logger), tcsync.New(cfg, &stubAPI{}, nil, logger), nil, logger)

	_, err := p.Run(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
