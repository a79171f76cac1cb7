package sync

import (
	"strings"

	"github.com/timecamp-tools/timecamp-sync/internal/model"
	"github.com/timecamp-tools/timecamp-sync/internal/timecamp"
)

// matcher resolves DesiredUsers to live users. The three indexes are tried
// in order: primary email, additional email, external id — all stable
// across renames in at least one dimension.
type matcher struct {
	byEmail      map[string]int
	byAdditional map[string]int
	byExternalID map[string]int
	users        map[int]timecamp.User
}

func newMatcher(live []timecamp.User) *matcher {
	m := &matcher{
		byEmail:      make(map[string]int, len(live)),
		byAdditional: make(map[string]int),
		byExternalID: make(map[string]int),
		users:        make(map[int]timecamp.User, len(live)),
	}
	for _, u := range live {
		m.users[u.ID] = u
		if u.Email != "" {
			m.byEmail[strings.ToLower(u.Email)] = u.ID
		}
		if u.AdditionalEmail != "" {
			m.byAdditional[strings.ToLower(u.AdditionalEmail)] = u.ID
		}
		if u.ExternalID != "" {
			m.byExternalID[u.ExternalID] = u.ID
		}
	}
	return m
}

// match returns the live user for desired, or false when none of the three
// keys hit.
func (m *matcher) match(desired model.DesiredUser) (timecamp.User, bool) {
	email := strings.ToLower(desired.Email)
	if id, ok := m.byEmail[email]; ok {
		return m.users[id], true
	}
	if id, ok := m.byAdditional[email]; ok {
		return m.users[id], true
	}
	if desired.ExternalID != "" {
		if id, ok := m.byExternalID[desired.ExternalID]; ok {
			return m.users[id], true
		}
	}
	return timecamp.User{}, false
}
