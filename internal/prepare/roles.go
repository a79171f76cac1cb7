package prepare

import (
	"go.uber.org/zap"

	"github.com/timecamp-tools/timecamp-sync/internal/model"
)

// roleIDNames maps the numeric TimeCamp role hints some sources carry onto
// pipeline roles. "5" (guest) has no pipeline equivalent and falls through
// to user.
var roleIDNames = map[string]model.Role{
	"1": model.RoleAdministrator,
	"2": model.RoleSupervisor,
	"3": model.RoleUser,
}

// resolveRole applies the role precedence chain: forced admin, forced
// supervisor, the is_supervisor flag (when enabled), the numeric role hint,
// then the default.
func resolveRole(p model.Person, useIsSupervisorRole bool, logger *zap.Logger) model.Role {
	if p.ForceGlobalAdminRole {
		return model.RoleAdministrator
	}
	if p.ForceSupervisorRole {
		return model.RoleSupervisor
	}
	if useIsSupervisorRole {
		if p.IsSupervisor {
			return model.RoleSupervisor
		}
		return model.RoleUser
	}
	if p.RoleID != "" {
		if role, ok := roleIDNames[p.RoleID]; ok {
			return role
		}
		logger.Warn("unknown role id, defaulting to user",
			zap.String("external_id", p.ExternalID),
			zap.String("role_id", p.RoleID),
		)
	}
	return model.RoleUser
}
