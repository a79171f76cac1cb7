package prepare

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/timecamp-tools/timecamp-sync/internal/config"
	"github.com/timecamp-tools/timecamp-sync/internal/model"
	"github.com/timecamp-tools/timecamp-sync/internal/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		RootGroupID:         100,
		UseDepartmentGroups: true,
		ShowExternalID:      true,
	}
}

func newTestEngine(cfg *config.Config) *Engine {
	return New(cfg, zap.NewNop())
}

func TestDeriveBasics(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testConfig())
	users := e.Derive([]model.Person{
		{ExternalID: "42", Name: "Jane Doe", Email: "Jane@Acme.com", Status: "Active", Department: "HR"},
	})

	require.Len(t, users, 1)
	u := users[0]
	assert.Equal(t, "42", u.ExternalID)
	assert.Equal(t, "Jane Doe (42)", u.Name)
	assert.Equal(t, "jane@acme.com", u.Email)
	assert.Equal(t, "HR", u.GroupBreadcrumb)
	assert.Equal(t, model.PersonStatusActive, u.Status)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.True(t, u.Active())
}

func TestDeriveSkipsIncompleteRecords(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testConfig())
	users := e.Derive([]model.Person{
		{ExternalID: "", Name: "No ID", Email: "noid@acme.com", Status: "active"},
		{ExternalID: "2", Name: "No Email", Email: "", Status: "active"},
		{ExternalID: "3", Name: "Kept", Email: "kept@acme.com", Status: "active"},
	})

	require.Len(t, users, 1)
	assert.Equal(t, "3", users[0].ExternalID)
}

func TestDeriveSortsByEmail(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testConfig())
	users := e.Derive([]model.Person{
		{ExternalID: "1", Name: "Zed", Email: "zed@acme.com", Status: "active"},
		{ExternalID: "2", Name: "Amy", Email: "amy@acme.com", Status: "active"},
		{ExternalID: "3", Name: "Mia", Email: "mia@acme.com", Status: "active"},
	})

	require.Len(t, users, 3)
	assert.Equal(t, "amy@acme.com", users[0].Email)
	assert.Equal(t, "mia@acme.com", users[1].Email)
	assert.Equal(t, "zed@acme.com", users[2].Email)
}

func TestDeriveDedupesByEmailLastWins(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testConfig())
	users := e.Derive([]model.Person{
		{ExternalID: "1", Name: "First", Email: "dup@acme.com", Status: "inactive"},
		{ExternalID: "2", Name: "Second", Email: "dup@acme.com", Status: "active"},
	})

	require.Len(t, users, 1)
	assert.Equal(t, "2", users[0].ExternalID)
	assert.True(t, users[0].Active())
}

func TestDeriveDeterministic(t *testing.T) {
	t.Parallel()

	persons := []model.Person{
		{ExternalID: "1", Name: "Zed", Email: "zed@acme.com", Status: "active", Department: "Eng"},
		{ExternalID: "2", Name: "Amy", Email: "amy@acme.com", Status: "inactive", Department: "HR"},
	}
	e := newTestEngine(testConfig())

	first := e.Derive(persons)
	second := e.Derive(persons)
	assert.Equal(t, first, second)
}

func TestDeriveEmailDomainReplacement(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ReplaceEmailDomain = "corp.example"
	e := newTestEngine(cfg)

	users := e.Derive([]model.Person{
		{
			ExternalID: "1",
			Name:       "Jane",
			Email:      "jane@gmail.com, jane@corp.example",
			RealEmail:  "jane@gmail.com",
			Status:     "active",
		},
	})

	require.Len(t, users, 1)
	assert.Equal(t, "jane@corp.example", users[0].Email, "address on the target domain is preferred")
	// The real email ends up on the same domain and therefore equal to the
	// primary; it is dropped rather than duplicated.
	assert.Equal(t, "", users[0].RealEmail)
}

func TestDeriveRealEmailKeptWhenDistinct(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testConfig())
	users := e.Derive([]model.Person{
		{ExternalID: "1", Name: "Jane", Email: "jane@acme.com", RealEmail: " Jane@Personal.org ", Status: "active"},
	})

	require.Len(t, users, 1)
	assert.Equal(t, "jane@personal.org", users[0].RealEmail)
}

func TestDeriveForceGlobalAdminPinnedToRoot(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testConfig())
	users := e.Derive([]model.Person{
		{ExternalID: "1", Name: "Root Admin", Email: "admin@acme.com", Status: "active", Department: "HR", ForceGlobalAdminRole: true},
	})

	require.Len(t, users, 1)
	assert.Equal(t, "", users[0].GroupBreadcrumb)
	assert.Equal(t, model.RoleAdministrator, users[0].Role)
}

func TestDeriveSupervisorModeOverridesRoleHints(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.UseDepartmentGroups = false
	cfg.UseSupervisorGroups = true
	e := newTestEngine(cfg)

	users := e.Derive([]model.Person{
		{ExternalID: "a", Name: "Alice", Email: "alice@acme.com", Status: "active", RoleID: "3"},
		{ExternalID: "b", Name: "Bob", Email: "bob@acme.com", Status: "active", SupervisorID: "a", RoleID: "1"},
	})

	require.Len(t, users, 2)
	byID := map[string]model.DesiredUser{}
	for _, u := range users {
		byID[u.ExternalID] = u
	}
	assert.Equal(t, model.RoleSupervisor, byID["a"].Role, "heads of groups become supervisors")
	assert.Equal(t, model.RoleUser, byID["b"].Role, "reports are demoted to plain users")
}

func TestDeriveJobTitleUserNames(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.UseJobTitleNameUsers = true
	e := newTestEngine(cfg)

	users := e.Derive([]model.Person{
		{ExternalID: "1", Name: "Jane [x]", Email: "jane@acme.com", Status: "active", JobTitle: "CTO"},
	})

	require.Len(t, users, 1)
	assert.Equal(t, "CTO [Jane x] (1)", users[0].Name)
}

func TestDeriveUnknownStatusIsInactive(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testConfig())
	users := e.Derive([]model.Person{
		{ExternalID: "1", Name: "Jane", Email: "jane@acme.com", Status: "on_leave"},
	})

	require.Len(t, users, 1)
	assert.Equal(t, model.PersonStatusInactive, users[0].Status)
}

func TestRunRoundTrip(t *testing.T) {
	t.Parallel()

	store := storage.NewLocalStore(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	in, err := json.Marshal(model.PersonSet{Users: []model.Person{
		{ExternalID: "1", Name: "Jane", Email: "jane@acme.com", Status: "active", Department: "HR"},
		{ExternalID: "2", Name: "Bob", Email: "bob@acme.com", Status: "inactive"},
	}})
	require.NoError(t, err)
	require.NoError(t, store.PutJSON(ctx, storage.KeyPersons, in))

	e := newTestEngine(testConfig())
	sum, err := e.Run(ctx, store)
	require.NoError(t, err)

	assert.Equal(t, Summary{Persons: 2, Emitted: 2, Active: 1, Inactive: 1, Groups: 1}, sum)

	out, err := store.GetJSON(ctx, storage.KeyDesiredUsers)
	require.NoError(t, err)

	var users []model.DesiredUser
	require.NoError(t, json.Unmarshal(out, &users))
	require.Len(t, users, 2)
	assert.Equal(t, "bob@acme.com", users[0].Email)
	assert.Equal(t, "jane@acme.com", users[1].Email)
}
