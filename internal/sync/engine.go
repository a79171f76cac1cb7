// Package sync implements the third pipeline stage: it reads the live
// TimeCamp state, diffs it against the prepared DesiredUser list, and
// executes the minimal ordered set of create/update/move/activate/deactivate
// operations. Calls are strictly serial; one user's failure never aborts the
// run. The operation order is a hard contract: groups exist before any user
// references them, emails settle before group moves, managers are fixed
// last.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/timecamp-tools/timecamp-sync/internal/config"
	"github.com/timecamp-tools/timecamp-sync/internal/metrics"
	"github.com/timecamp-tools/timecamp-sync/internal/model"
	"github.com/timecamp-tools/timecamp-sync/internal/storage"
	"github.com/timecamp-tools/timecamp-sync/internal/timecamp"
	"github.com/timecamp-tools/timecamp-sync/internal/tree"
)

// Summary counts what a sync run did (or, in dry-run mode, intended).
type Summary struct {
	Created       int `json:"created"`
	Updated       int `json:"updated"`
	Activated     int `json:"activated"`
	Deactivated   int `json:"deactivated"`
	Skipped       int `json:"skipped"`
	GroupsCreated int `json:"groups_created"`
	Errors        int `json:"errors"`
}

// Engine converges TimeCamp on a DesiredUser list.
type Engine struct {
	cfg     *config.Config
	api     API
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New returns a sync engine. metrics may be nil.
func New(cfg *config.Config, api API, m *metrics.Metrics, logger *zap.Logger) *Engine {
	return &Engine{cfg: cfg, api: api, metrics: m, logger: logger.Named("sync")}
}

// Run loads the DesiredUser artifact from the store and syncs it.
func (e *Engine) Run(ctx context.Context, store storage.Store, dryRun bool) (Summary, error) {
	raw, err := store.GetJSON(ctx, storage.KeyDesiredUsers)
	if err != nil {
		return Summary{}, fmt.Errorf("load %s: %w", storage.KeyDesiredUsers, err)
	}
	var desired []model.DesiredUser
	if err := json.Unmarshal(raw, &desired); err != nil {
		return Summary{}, fmt.Errorf("decode %s: %w", storage.KeyDesiredUsers, err)
	}
	return e.Sync(ctx, desired, dryRun)
}

// Sync performs one reconciliation pass. Reads are always live; in dry-run
// mode every write becomes a logged intent while the summary still reports
// the full intended plan.
func (e *Engine) Sync(ctx context.Context, desired []model.DesiredUser, dryRun bool) (Summary, error) {
	var sum Summary

	api := e.api
	if dryRun {
		api = newDryRun(e.api, e.logger)
	}

	live, err := api.GetUsers(ctx)
	if err != nil {
		return sum, fmt.Errorf("snapshot users: %w", err)
	}
	groups, err := api.GetGroups(ctx)
	if err != nil {
		return sum, fmt.Errorf("snapshot groups: %w", err)
	}

	nodes := make([]tree.Node, 0, len(groups))
	for _, g := range groups {
		nodes = append(nodes, tree.Node{ID: g.ID, Name: g.Name, ParentID: g.ParentID})
	}
	t := tree.New(e.cfg.RootGroupID, nodes)

	m := newMatcher(live)

	// Pair every DesiredUser with its live match up front; the phases below
	// reuse these pairings.
	matched := make(map[int]timecamp.User, len(desired)) // desired index -> live
	liveTaken := make(map[int]bool)                      // live id -> claimed by a DesiredUser
	for i, d := range desired {
		if u, ok := m.match(d); ok && !liveTaken[u.ID] {
			matched[i] = u
			liveTaken[u.ID] = true
		}
	}

	// Phase 1: groups, parents before children. Only paths referenced by
	// active DesiredUsers are required; with new-user creation disabled the
	// set narrows further to users that already exist live.
	required := make(map[string]bool)
	for i, d := range desired {
		if !d.Active() || d.GroupBreadcrumb == "" {
			continue
		}
		if _, has := matched[i]; !has && e.cfg.DisableNewUsers {
			continue
		}
		required[d.GroupBreadcrumb] = true
	}
	plan := e.ensureGroups(ctx, api, t, required, &sum)

	// Phase 2: create new users.
	createdIDs := make(map[int]int) // desired index -> new live id
	for i, d := range desired {
		if _, has := matched[i]; has || !d.Active() {
			continue
		}
		if e.cfg.DisableNewUsers {
			e.logger.Info("skipping new user, creation disabled", zap.String("email", d.Email))
			sum.Skipped++
			e.metrics.UserSkipped()
			continue
		}
		id, ok := e.createUser(ctx, api, d, plan, &sum)
		if ok {
			createdIDs[i] = id
		}
	}

	// Phase 3: update existing users — attributes first, then group moves.
	for i, d := range desired {
		u, has := matched[i]
		if !has || !d.Active() {
			continue
		}
		e.updateUser(ctx, api, d, u, plan, &sum)
	}

	// Phase 4: re-enable returning users.
	for i, d := range desired {
		u, has := matched[i]
		if !has || !d.Active() || u.Enabled {
			continue
		}
		if e.skipUser(u) {
			continue
		}
		active := true
		if err := api.UpdateUser(ctx, u.ID, timecamp.UserUpdate{Active: &active}); err != nil {
			e.logger.Error("failed to activate user", zap.String("email", d.Email), zap.Error(err))
			sum.Errors++
			continue
		}
		e.logger.Info("activated user", zap.String("email", d.Email))
		sum.Activated++
	}

	// Phase 5: deactivate users missing from the source or marked inactive.
	e.deactivate(ctx, api, desired, live, matched, liveTaken, &sum)

	// Phase 6: group managers, after all moves have settled.
	if e.cfg.UseSupervisorGroups {
		e.fixManagers(ctx, api, desired, matched, createdIDs, plan, &sum)
	}

	e.logger.Info("sync finished",
		zap.Int("created", sum.Created),
		zap.Int("updated", sum.Updated),
		zap.Int("activated", sum.Activated),
		zap.Int("deactivated", sum.Deactivated),
		zap.Int("skipped", sum.Skipped),
		zap.Int("groups_created", sum.GroupsCreated),
		zap.Int("errors", sum.Errors),
		zap.Bool("dry_run", dryRun),
	)
	return sum, nil
}

// skipUser reports whether a live user must never be mutated: ignored ids
// always, manually added users when the deployment says so.
func (e *Engine) skipUser(u timecamp.User) bool {
	if e.cfg.IgnoredUserIDs[u.ID] {
		e.logger.Debug("skipping ignored user", zap.Int("user_id", u.ID))
		return true
	}
	if u.AddedManually && e.cfg.DisableManualUserUpdates {
		e.logger.Info("skipping manually added user", zap.Int("user_id", u.ID), zap.String("email", u.Email))
		return true
	}
	return false
}

// createUser creates one user plus the follow-up updates for attributes the
// create endpoint does not accept.
func (e *Engine) createUser(ctx context.Context, api API, d model.DesiredUser, plan *groupPlan, sum *Summary) (int, bool) {
	groupID, placeable := plan.resolve(d.GroupBreadcrumb)
	if !placeable {
		e.logger.Warn("skipping user, target group could not be created",
			zap.String("email", d.Email),
			zap.String("path", d.GroupBreadcrumb),
		)
		sum.Skipped++
		e.metrics.UserSkipped()
		return 0, false
	}

	id, err := api.AddUser(ctx, d.Email, d.Name, groupID)
	if err != nil {
		e.logger.Error("failed to create user", zap.String("email", d.Email), zap.Error(err))
		sum.Errors++
		return 0, false
	}
	e.logger.Info("created user",
		zap.String("email", d.Email),
		zap.Int("user_id", id),
		zap.String("path", d.GroupBreadcrumb),
	)

	followUp := timecamp.UserUpdate{}
	if d.ExternalID != "" && !e.cfg.DisableExternalIDSync {
		followUp.ExternalID = &d.ExternalID
	}
	if d.RealEmail != "" && !e.cfg.DisableAdditionalEmailSync {
		followUp.AdditionalEmail = &d.RealEmail
	}
	if roleID := roleID(d.Role); roleID != timecamp.RoleIDUser {
		followUp.RoleID = &roleID
	}
	if !followUp.Empty() {
		if err := api.UpdateUser(ctx, id, followUp); err != nil {
			e.logger.Error("failed to finalize new user", zap.String("email", d.Email), zap.Error(err))
			sum.Errors++
		}
	}

	// New users are system-managed from the start.
	if err := api.SetUserSetting(ctx, id, timecamp.SettingAddedManually, "0"); err != nil {
		e.logger.Error("failed to clear added_manually", zap.String("email", d.Email), zap.Error(err))
		sum.Errors++
	}

	sum.Created++
	e.metrics.UserCreated()
	return id, true
}

// updateUser diffs one matched pair and writes the minimal updates:
// attribute patch first, group move second, added_manually cleared last.
func (e *Engine) updateUser(ctx context.Context, api API, d model.DesiredUser, u timecamp.User, plan *groupPlan, sum *Summary) {
	if e.skipUser(u) {
		sum.Skipped++
		e.metrics.UserSkipped()
		return
	}

	var patch timecamp.UserUpdate
	var changes []string

	if u.Name != d.Name {
		patch.Name = &d.Name
		changes = append(changes, fmt.Sprintf("name %q -> %q", u.Name, d.Name))
	}

	if !strings.EqualFold(u.Email, d.Email) {
		patch.Email = &d.Email
		changes = append(changes, fmt.Sprintf("email %q -> %q", u.Email, d.Email))
		// Keep the old address reachable for matching across the rename.
		if u.AdditionalEmail == "" {
			old := strings.ToLower(u.Email)
			patch.AdditionalEmail = &old
			changes = append(changes, fmt.Sprintf("additional email -> %q", old))
		}
	}

	if d.RealEmail != "" && !e.cfg.DisableAdditionalEmailSync && !strings.EqualFold(u.AdditionalEmail, d.RealEmail) {
		patch.AdditionalEmail = &d.RealEmail
		changes = append(changes, fmt.Sprintf("additional email -> %q", d.RealEmail))
	}

	if d.ExternalID != "" && !e.cfg.DisableExternalIDSync && u.ExternalID != d.ExternalID {
		patch.ExternalID = &d.ExternalID
		changes = append(changes, fmt.Sprintf("external id -> %q", d.ExternalID))
	}

	if !e.cfg.DisableRoleUpdates {
		if want := roleID(d.Role); u.RoleID != "" && u.RoleID != want {
			patch.RoleID = &want
			changes = append(changes, fmt.Sprintf("role -> %s", d.Role))
		} else if u.RoleID == "" && want != timecamp.RoleIDUser {
			patch.RoleID = &want
			changes = append(changes, fmt.Sprintf("role -> %s", d.Role))
		}
	}

	updated := false
	if !patch.Empty() {
		if err := api.UpdateUser(ctx, u.ID, patch); err != nil {
			e.logger.Error("failed to update user", zap.String("email", d.Email), zap.Error(err))
			sum.Errors++
			return
		}
		e.logger.Info("updated user",
			zap.String("email", d.Email),
			zap.String("changes", strings.Join(changes, ", ")),
		)
		updated = true
	}

	// Group move runs after the attribute patch so matching keys are stable
	// before the user changes place in the hierarchy.
	if !e.cfg.DisableGroupUpdates {
		if target, placeable := plan.resolve(d.GroupBreadcrumb); placeable && target != u.GroupID {
			if err := api.UpdateUser(ctx, u.ID, timecamp.UserUpdate{GroupID: &target}); err != nil {
				e.logger.Error("failed to move user", zap.String("email", d.Email), zap.Error(err))
				sum.Errors++
			} else {
				e.logger.Info("moved user",
					zap.String("email", d.Email),
					zap.String("path", d.GroupBreadcrumb),
					zap.Int("group_id", target),
				)
				updated = true
			}
		}
	}

	if updated {
		if u.AddedManually {
			if err := api.SetUserSetting(ctx, u.ID, timecamp.SettingAddedManually, "0"); err != nil {
				e.logger.Error("failed to clear added_manually", zap.String("email", d.Email), zap.Error(err))
				sum.Errors++
			}
		}
		sum.Updated++
		e.metrics.UserUpdated()
	}
}

// deactivate disables live users that no DesiredUser claims, or whose
// DesiredUser is inactive. When a disabled-users group is configured the
// move rides in the same patch.
func (e *Engine) deactivate(ctx context.Context, api API, desired []model.DesiredUser, live []timecamp.User, matched map[int]timecamp.User, liveTaken map[int]bool, sum *Summary) {
	if e.cfg.DisableUserDeactivation {
		return
	}

	// Live ids claimed by an active DesiredUser stay untouched here.
	activeClaim := make(map[int]bool)
	for i, d := range desired {
		if u, has := matched[i]; has && d.Active() {
			activeClaim[u.ID] = true
		}
	}

	for _, u := range live {
		if activeClaim[u.ID] || !u.Enabled {
			continue
		}
		if e.skipUser(u) {
			continue
		}

		reason := "not present in source"
		if liveTaken[u.ID] {
			reason = "marked inactive in source"
		}

		active := false
		patch := timecamp.UserUpdate{Active: &active}
		if e.cfg.DisabledUsersGroupID != 0 {
			patch.GroupID = &e.cfg.DisabledUsersGroupID
		}
		if err := api.UpdateUser(ctx, u.ID, patch); err != nil {
			e.logger.Error("failed to deactivate user", zap.String("email", u.Email), zap.Error(err))
			sum.Errors++
			continue
		}
		e.logger.Info("deactivated user", zap.String("email", u.Email), zap.String("reason", reason))
		sum.Deactivated++
		e.metrics.UserDeactivated()
	}
}

// fixManagers grants the manager flag to supervisors on their own group and
// revokes it from users that lost the role. Administrators are not made
// group managers.
func (e *Engine) fixManagers(ctx context.Context, api API, desired []model.DesiredUser, matched map[int]timecamp.User, createdIDs map[int]int, plan *groupPlan, sum *Summary) {
	for i, d := range desired {
		if !d.Active() {
			continue
		}

		var userID int
		var wasManager bool
		if u, has := matched[i]; has {
			if e.skipUser(u) {
				continue
			}
			userID = u.ID
			wasManager = u.RoleID == timecamp.RoleIDSupervisor
		} else if id, has := createdIDs[i]; has {
			userID = id
		} else {
			continue
		}

		groupID, placeable := plan.resolve(d.GroupBreadcrumb)
		if !placeable {
			continue
		}

		switch {
		case d.Role == model.RoleSupervisor && !wasManager:
			if err := api.SetGroupManager(ctx, groupID, userID, true); err != nil {
				e.logger.Error("failed to set group manager", zap.String("email", d.Email), zap.Error(err))
				sum.Errors++
			}
		case d.Role != model.RoleSupervisor && wasManager:
			if err := api.SetGroupManager(ctx, groupID, userID, false); err != nil {
				e.logger.Error("failed to clear group manager", zap.String("email", d.Email), zap.Error(err))
				sum.Errors++
			}
		}
	}
}

// roleID maps a pipeline role to the server's numeric role id.
func roleID(role model.Role) string {
	switch role {
	case model.RoleAdministrator:
		return timecamp.RoleIDAdministrator
	case model.RoleSupervisor:
		return timecamp.RoleIDSupervisor
	default:
		return timecamp.RoleIDUser
	}
}
