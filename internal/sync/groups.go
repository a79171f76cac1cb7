package sync

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/timecamp-tools/timecamp-sync/internal/tree"
)

// groupPlan maps breadcrumbs to resolved live group ids. Paths whose
// creation failed are recorded so users routed through them can be skipped
// instead of landing in the wrong group.
type groupPlan struct {
	rootID int
	ids    map[string]int
	failed map[string]bool
}

// resolve returns the group id for a breadcrumb and whether the user can be
// placed at all. Unknown paths fall back to the root group, which covers
// both the disabled-creation mode and paths that were never required.
func (p *groupPlan) resolve(breadcrumb string) (int, bool) {
	if breadcrumb == "" {
		return p.rootID, true
	}
	if p.failed[breadcrumb] {
		return 0, false
	}
	if id, ok := p.ids[breadcrumb]; ok {
		return id, true
	}
	return p.rootID, true
}

// countingCreator forwards group creation to the API while keeping the run
// summary and metrics in step.
type countingCreator struct {
	api    API
	engine *Engine
	sum    *Summary
}

func (c countingCreator) AddGroup(ctx context.Context, name string, parentID int) (int, error) {
	id, err := c.api.AddGroup(ctx, name, parentID)
	if err == nil {
		c.sum.GroupsCreated++
		c.engine.metrics.GroupCreated()
	}
	return id, err
}

// ensureGroups makes every required breadcrumb resolvable, creating missing
// segments shallowest-first so parents always exist before their children.
func (e *Engine) ensureGroups(ctx context.Context, api API, t *tree.Tree, required map[string]bool, sum *Summary) *groupPlan {
	plan := &groupPlan{
		rootID: t.RootID(),
		ids:    make(map[string]int),
		failed: make(map[string]bool),
	}

	paths := make([]string, 0, len(required))
	for path := range required {
		if path != "" {
			paths = append(paths, path)
		}
	}
	sort.Slice(paths, func(i, j int) bool {
		di, dj := strings.Count(paths[i], "/"), strings.Count(paths[j], "/")
		if di != dj {
			return di < dj
		}
		return paths[i] < paths[j]
	})

	creator := countingCreator{api: api, engine: e, sum: sum}

	for _, path := range paths {
		if e.cfg.DisableGroupsCreation {
			if id, ok := t.LookupByPath(path); ok {
				plan.ids[path] = id
			} else {
				e.logger.Info("group creation disabled, users fall back to root",
					zap.String("path", path),
				)
			}
			continue
		}

		id, err := t.EnsurePath(ctx, path, creator)
		if err != nil {
			// Creation failure is fatal for every user routed through
			// this path; they are skipped rather than misplaced.
			e.logger.Error("failed to ensure group path",
				zap.String("path", path),
				zap.Error(err),
			)
			plan.failed[path] = true
			sum.Errors++
			continue
		}
		plan.ids[path] = id
	}

	return plan
}
