package prepare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/timecamp-tools/timecamp-sync/internal/model"
)

// reportingChain is a five person org: Alice heads everything, Bob reports
// to Alice and has his own report Carol, Dave reports to Alice without
// reports of his own, and Eve is unrelated.
func reportingChain() []model.Person {
	return []model.Person{
		{ExternalID: "a", Name: "Alice", IsSupervisor: true},
		{ExternalID: "b", Name: "Bob", SupervisorID: "a"},
		{ExternalID: "c", Name: "Carol", SupervisorID: "b"},
		{ExternalID: "d", Name: "Dave", SupervisorID: "a"},
		{ExternalID: "e", Name: "Eve"},
	}
}

func TestSupervisorStrategy(t *testing.T) {
	t.Parallel()

	dir := newDirectory(reportingChain(), nil, false, zap.NewNop())
	s := supervisorStrategy{dir: dir}

	byID := make(map[string]model.Person)
	for _, p := range reportingChain() {
		byID[p.ExternalID] = p
	}

	assert.Equal(t, "Alice", s.breadcrumb(byID["a"]), "supervisor sits in their own group")
	assert.Equal(t, "Alice/Bob", s.breadcrumb(byID["b"]), "mid-chain supervisor nests under their own chain")
	assert.Equal(t, "Alice/Bob", s.breadcrumb(byID["c"]), "report lands in the immediate supervisor's group")
	assert.Equal(t, "Alice", s.breadcrumb(byID["d"]), "leaf report lands in the supervisor's group")
	assert.Equal(t, "", s.breadcrumb(byID["e"]), "unrelated person lands at the root")
}

func TestSupervisorPathCycleTerminates(t *testing.T) {
	t.Parallel()

	persons := []model.Person{
		{ExternalID: "a", Name: "Alice", SupervisorID: "b"},
		{ExternalID: "b", Name: "Bob", SupervisorID: "a"},
	}
	dir := newDirectory(persons, nil, false, zap.NewNop())

	// Both are supervisors (each has a report); the walk must stop at the
	// first repeated id instead of looping.
	assert.Equal(t, "Bob/Alice", dir.supervisorPath(persons[0]))
	assert.Equal(t, "Alice/Bob", dir.supervisorPath(persons[1]))
}

func TestSupervisorPathDanglingPointer(t *testing.T) {
	t.Parallel()

	persons := []model.Person{
		{ExternalID: "a", Name: "Alice", SupervisorID: "ghost"},
	}
	dir := newDirectory(persons, nil, false, zap.NewNop())

	assert.Equal(t, "", dir.supervisorPath(persons[0]), "dangling supervisor treated as none")
}

func TestHybridStrategy(t *testing.T) {
	t.Parallel()

	persons := []model.Person{
		{ExternalID: "a", Name: "Alice", Department: "Engineering", IsSupervisor: true},
		{ExternalID: "b", Name: "Bob", Department: "Engineering", SupervisorID: "a"},
		{ExternalID: "c", Name: "Carol", Department: "Engineering"},
		{ExternalID: "d", Name: "Dave", SupervisorID: "a"},
	}
	dir := newDirectory(persons, nil, false, zap.NewNop())
	s := hybridStrategy{dir: dir}

	assert.Equal(t, "Engineering/Alice", s.breadcrumb(persons[0]), "supervisor gets own subgroup under the department")
	assert.Equal(t, "Engineering/Alice", s.breadcrumb(persons[1]), "report lands in the supervisor's subgroup")
	assert.Equal(t, "Engineering", s.breadcrumb(persons[2]), "no supervisor, department only")
	assert.Equal(t, "Alice", s.breadcrumb(persons[3]), "no department, supervisor derivation applies")
}

func TestDepartmentStrategyStripsPrefixes(t *testing.T) {
	t.Parallel()

	persons := []model.Person{
		{ExternalID: "a", Name: "Alice", Department: "Acme / HR"},
	}
	dir := newDirectory(persons, []string{"Acme"}, false, zap.NewNop())
	s := departmentStrategy{dir: dir}

	assert.Equal(t, "HR", s.breadcrumb(persons[0]))
}

func TestSegmentJobTitleDecoration(t *testing.T) {
	t.Parallel()

	persons := []model.Person{
		{ExternalID: "a", Name: "Alice (x)", JobTitle: " Head of  Engineering "},
	}

	plain := newDirectory(persons, nil, false, zap.NewNop())
	assert.Equal(t, "Alice x", plain.segment(persons[0]))

	decorated := newDirectory(persons, nil, true, zap.NewNop())
	assert.Equal(t, "Head of Engineering [Alice x]", decorated.segment(persons[0]))
}

func TestNewStrategySelection(t *testing.T) {
	t.Parallel()

	dir := newDirectory(nil, nil, false, zap.NewNop())

	assert.IsType(t, hybridStrategy{}, newStrategy(true, true, dir))
	assert.IsType(t, supervisorStrategy{}, newStrategy(false, true, dir))
	assert.IsType(t, departmentStrategy{}, newStrategy(true, false, dir))
	assert.IsType(t, flatStrategy{}, newStrategy(false, false, dir))
}
