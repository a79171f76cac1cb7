// Package prepare implements the second pipeline stage: it turns the flat
// Person set produced by a source fetcher into the sorted DesiredUser list
// the sync stage converges on. The derivation is deterministic and free of
// I/O apart from reading and writing the two blob artifacts.
package prepare

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/timecamp-tools/timecamp-sync/internal/config"
	"github.com/timecamp-tools/timecamp-sync/internal/model"
	"github.com/timecamp-tools/timecamp-sync/internal/storage"
)

// Summary reports what a prepare run produced.
type Summary struct {
	Persons  int `json:"persons"`
	Emitted  int `json:"emitted"`
	Skipped  int `json:"skipped"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
	Groups   int `json:"groups"`
}

// Engine derives DesiredUsers from Persons under the configured policies.
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger
}

// New returns a prepare engine.
func New(cfg *config.Config, logger *zap.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger.Named("prepare")}
}

// Run reads the Person artifact, derives the DesiredUser list and writes it
// back to the store.
func (e *Engine) Run(ctx context.Context, store storage.Store) (Summary, error) {
	raw, err := store.GetJSON(ctx, storage.KeyPersons)
	if err != nil {
		return Summary{}, fmt.Errorf("load %s: %w", storage.KeyPersons, err)
	}

	var persons model.PersonSet
	if err := json.Unmarshal(raw, &persons); err != nil {
		return Summary{}, fmt.Errorf("decode %s: %w", storage.KeyPersons, err)
	}

	users := e.Derive(persons.Users)

	out, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return Summary{}, fmt.Errorf("encode desired users: %w", err)
	}
	out = append(out, '\n')

	if err := store.PutJSON(ctx, storage.KeyDesiredUsers, out); err != nil {
		return Summary{}, fmt.Errorf("store %s: %w", storage.KeyDesiredUsers, err)
	}

	summary := summarize(persons.Users, users)
	e.logger.Info("prepare finished",
		zap.Int("persons", summary.Persons),
		zap.Int("emitted", summary.Emitted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("active", summary.Active),
		zap.Int("groups", summary.Groups),
	)
	return summary, nil
}

// Derive computes the sorted DesiredUser list for persons. It is pure: given
// identical input and configuration it yields identical output.
func (e *Engine) Derive(persons []model.Person) []model.DesiredUser {
	dir := newDirectory(persons, e.cfg.SkipDepartmentPrefixes(), e.cfg.UseJobTitleNameGroups, e.logger)
	strategy := newStrategy(e.cfg.UseDepartmentGroups, e.cfg.UseSupervisorGroups, dir)

	// In supervisor-derived modes the numeric role hint is recomputed from
	// the reporting graph: heads of groups become supervisors.
	overrideRoleIDs := e.cfg.UseSupervisorGroups

	byEmail := make(map[string]model.DesiredUser)
	order := make([]string, 0, len(persons))

	for _, p := range persons {
		email := PickEmail(p.Email, e.cfg.ReplaceEmailDomain)
		if p.ExternalID == "" || email == "" {
			e.logger.Warn("skipping person without external id or email",
				zap.String("external_id", p.ExternalID),
				zap.String("name", p.Name),
			)
			continue
		}

		if overrideRoleIDs {
			if dir.hasReports[p.ExternalID] {
				p.RoleID = "2"
			} else {
				p.RoleID = "3"
			}
		}

		breadcrumb := strategy.breadcrumb(p)
		// Global admins are pinned to the root group.
		if p.ForceGlobalAdminRole {
			breadcrumb = ""
		}

		status := model.PersonStatusInactive
		if strings.EqualFold(string(p.Status), string(model.PersonStatusActive)) {
			status = model.PersonStatusActive
		}

		primary := ReplaceEmailDomain(email, e.cfg.ReplaceEmailDomain)

		user := model.DesiredUser{
			ExternalID:      p.ExternalID,
			Name:            e.displayName(p),
			Email:           primary,
			GroupBreadcrumb: breadcrumb,
			Status:          status,
			Role:            resolveRole(p, e.cfg.UseIsSupervisorRole, e.logger),
		}

		if p.RealEmail != "" {
			real := ReplaceEmailDomain(strings.ToLower(strings.TrimSpace(p.RealEmail)), e.cfg.ReplaceEmailDomain)
			if !strings.EqualFold(real, primary) {
				user.RealEmail = real
			}
		}

		if _, seen := byEmail[primary]; !seen {
			order = append(order, primary)
		}
		byEmail[primary] = user
	}

	users := make([]model.DesiredUser, 0, len(byEmail))
	for _, email := range order {
		users = append(users, byEmail[email])
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Email != users[j].Email {
			return users[i].Email < users[j].Email
		}
		return users[i].ExternalID < users[j].ExternalID
	})
	return users
}

// displayName formats the user-facing name: scrubbed base name, optional
// "<title> [<name>]" decoration, optional " (<external_id>)" suffix.
func (e *Engine) displayName(p model.Person) string {
	name := ScrubName(p.Name)
	if e.cfg.UseJobTitleNameUsers && p.JobTitle != "" {
		name = CleanName(p.JobTitle) + " [" + name + "]"
	}
	if e.cfg.ShowExternalID && p.ExternalID != "" {
		name += " (" + p.ExternalID + ")"
	}
	return name
}

func summarize(persons []model.Person, users []model.DesiredUser) Summary {
	s := Summary{Persons: len(persons), Emitted: len(users)}
	s.Skipped = s.Persons - s.Emitted
	groups := make(map[string]bool)
	for _, u := range users {
		if u.Active() {
			s.Active++
		} else {
			s.Inactive++
		}
		if u.GroupBreadcrumb != "" {
			groups[u.GroupBreadcrumb] = true
		}
	}
	s.Groups = len(groups)
	return s
}
