package prepare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/timecamp-tools/timecamp-sync/internal/model"
)

func TestResolveRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                string
		person              model.Person
		useIsSupervisorRole bool
		want                model.Role
	}{
		{
			name:   "forced admin wins over everything",
			person: model.Person{ForceGlobalAdminRole: true, ForceSupervisorRole: true, RoleID: "3"},
			want:   model.RoleAdministrator,
		},
		{
			name:   "forced supervisor beats role hint",
			person: model.Person{ForceSupervisorRole: true, RoleID: "3"},
			want:   model.RoleSupervisor,
		},
		{
			name:                "is_supervisor flag when mode enabled",
			person:              model.Person{IsSupervisor: true, RoleID: "1"},
			useIsSupervisorRole: true,
			want:                model.RoleSupervisor,
		},
		{
			name:                "flag mode demotes non-supervisors regardless of hint",
			person:              model.Person{RoleID: "1"},
			useIsSupervisorRole: true,
			want:                model.RoleUser,
		},
		{
			name:   "numeric hint admin",
			person: model.Person{RoleID: "1"},
			want:   model.RoleAdministrator,
		},
		{
			name:   "numeric hint supervisor",
			person: model.Person{RoleID: "2"},
			want:   model.RoleSupervisor,
		},
		{
			name:   "guest hint has no equivalent, defaults to user",
			person: model.Person{RoleID: "5"},
			want:   model.RoleUser,
		},
		{
			name:   "unknown hint defaults to user",
			person: model.Person{RoleID: "42"},
			want:   model.RoleUser,
		},
		{
			name:   "no hint defaults to user",
			person: model.Person{},
			want:   model.RoleUser,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveRole(tt.person, tt.useIsSupervisorRole, zap.NewNop())
			assert.Equal(t, tt.want, got)
		})
	}
}
