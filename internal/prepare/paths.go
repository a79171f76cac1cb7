package prepare

import (
	"strings"

	"go.uber.org/zap"

	"github.com/timecamp-tools/timecamp-sync/internal/model"
)

// pathStrategy derives a person's group breadcrumb. The four variants map to
// the (use_department_groups, use_supervisor_groups) configuration pairs.
type pathStrategy interface {
	breadcrumb(p model.Person) string
}

// directory indexes the person set for supervisor chain walks. It treats the
// people as a directed graph: supervisor pointers are edges, and every walk
// carries a visited set so cycles and dangling pointers terminate cleanly.
type directory struct {
	byID       map[string]model.Person
	hasReports map[string]bool
	prefixes   []string
	jobTitles  bool // decorate supervisor segments with job titles
	logger     *zap.Logger
}

func newDirectory(persons []model.Person, prefixes []string, jobTitles bool, logger *zap.Logger) *directory {
	d := &directory{
		byID:       make(map[string]model.Person, len(persons)),
		hasReports: make(map[string]bool),
		prefixes:   prefixes,
		jobTitles:  jobTitles,
		logger:     logger,
	}
	for _, p := range persons {
		if p.ExternalID != "" {
			d.byID[p.ExternalID] = p
		}
	}
	for _, p := range persons {
		if p.SupervisorID != "" {
			if _, ok := d.byID[p.SupervisorID]; ok {
				d.hasReports[p.SupervisorID] = true
			} else {
				logger.Warn("dangling supervisor pointer",
					zap.String("external_id", p.ExternalID),
					zap.String("supervisor_id", p.SupervisorID),
				)
			}
		}
	}
	return d
}

// isSupervisor reports whether p heads a group: either the source flags them
// or someone reports to them.
func (d *directory) isSupervisor(p model.Person) bool {
	return p.IsSupervisor || d.hasReports[p.ExternalID]
}

// segment formats one supervisor's group segment: "<title> [<name>]" when
// job-title decoration is on and a title exists, plain "<name>" otherwise.
func (d *directory) segment(p model.Person) string {
	name := ScrubName(p.Name)
	if d.jobTitles && p.JobTitle != "" {
		return CleanName(p.JobTitle) + " [" + name + "]"
	}
	return name
}

// ancestors returns the supervisor chain of p, root-most first. The walk
// stops at the first missing or already-visited ancestor.
func (d *directory) ancestors(p model.Person) []model.Person {
	visited := map[string]bool{p.ExternalID: true}
	var chain []model.Person
	current := p
	for current.SupervisorID != "" {
		next, ok := d.byID[current.SupervisorID]
		if !ok {
			break
		}
		if visited[next.ExternalID] {
			d.logger.Warn("supervisor cycle detected",
				zap.String("external_id", p.ExternalID),
				zap.String("at", next.ExternalID),
			)
			break
		}
		visited[next.ExternalID] = true
		chain = append([]model.Person{next}, chain...)
		current = next
	}
	return chain
}

// supervisorPath builds the supervisor-derived breadcrumb of p: the chain of
// ancestor segments root-most first, with p's own segment appended when p is
// a supervisor. Non-supervisors with no supervisor land at the root.
func (d *directory) supervisorPath(p model.Person) string {
	var segments []string
	for _, ancestor := range d.ancestors(p) {
		segments = append(segments, d.segment(ancestor))
	}
	if d.isSupervisor(p) {
		segments = append(segments, d.segment(p))
	}
	return strings.Join(segments, "/")
}

// department returns p's normalised department with skip prefixes removed.
func (d *directory) department(p model.Person) string {
	return StripSkipPrefixes(NormalizeDepartment(p.Department), d.prefixes)
}

// ─── Strategies ──────────────────────────────────────────────────────────────

// departmentStrategy: the breadcrumb is the stripped department path.
type departmentStrategy struct{ dir *directory }

func (s departmentStrategy) breadcrumb(p model.Person) string {
	return s.dir.department(p)
}

// supervisorStrategy: the breadcrumb follows the supervisor hierarchy, with
// skip prefixes applied to the derived path as well.
type supervisorStrategy struct{ dir *directory }

func (s supervisorStrategy) breadcrumb(p model.Person) string {
	return StripSkipPrefixes(s.dir.supervisorPath(p), s.dir.prefixes)
}

// hybridStrategy: departments form the outer structure and the supervisor
// hierarchy hangs beneath each department leaf. A supervisor sits in their
// own subgroup; a report sits in their immediate supervisor's subgroup.
// Without a department the supervisor-only derivation applies.
type hybridStrategy struct{ dir *directory }

func (s hybridStrategy) breadcrumb(p model.Person) string {
	dept := s.dir.department(p)
	if dept == "" {
		return StripSkipPrefixes(s.dir.supervisorPath(p), s.dir.prefixes)
	}
	if s.dir.isSupervisor(p) {
		return dept + "/" + s.dir.segment(p)
	}
	if supervisor, ok := s.dir.byID[p.SupervisorID]; ok && p.SupervisorID != "" {
		return dept + "/" + s.dir.segment(supervisor)
	}
	return dept
}

// flatStrategy: every user lands at the root group.
type flatStrategy struct{}

func (flatStrategy) breadcrumb(model.Person) string { return "" }

// newStrategy picks the variant for the configured mode pair.
func newStrategy(useDepartments, useSupervisors bool, dir *directory) pathStrategy {
	switch {
	case useDepartments && useSupervisors:
		return hybridStrategy{dir: dir}
	case useSupervisors:
		return supervisorStrategy{dir: dir}
	case useDepartments:
		return departmentStrategy{dir: dir}
	default:
		return flatStrategy{}
	}
}
