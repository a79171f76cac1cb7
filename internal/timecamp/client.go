// Package timecamp is the typed adapter over the TimeCamp REST API. It
// translates the wire shapes (string-typed ids, per-user settings bags,
// people_picker role nesting) into the flat Group/User records the sync
// engine works with, and maps HTTP failures onto a small error taxonomy.
package timecamp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/timecamp-tools/timecamp-sync/internal/httpclient"
)

// settingsBatchSize bounds how many user ids go into one bulk settings query.
const settingsBatchSize = 50

// Setting names used by the sync engine.
const (
	SettingDisabledUser    = "disabled_user"
	SettingAddedManually   = "added_manually"
	SettingAdditionalEmail = "additional_email"
	SettingExternalID      = "external_id"
)

// API exposes the TimeCamp operations the pipeline needs. All calls are
// serial; the adapter holds no shared mutable state beyond its HTTP client.
type API struct {
	http        *httpclient.Client
	baseURL     string
	header      http.Header
	rootGroupID int
	logger      *zap.Logger
}

// New returns an adapter for the account behind apiKey on domain.
func New(client *httpclient.Client, domain, apiKey string, rootGroupID int, logger *zap.Logger) *API {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)
	return &API{
		http:        client,
		baseURL:     fmt.Sprintf("https://%s/third_party/api", domain),
		header:      header,
		rootGroupID: rootGroupID,
		logger:      logger.Named("timecamp"),
	}
}

func (a *API) url(endpoint string) string {
	return a.baseURL + "/" + strings.TrimPrefix(endpoint, "/")
}

// GetUsers returns all live users with their enabled flag, settings-backed
// fields and the role held in their own group. The plain listing is the
// source of truth for existence; settings and roles only enrich it.
func (a *API) GetUsers(ctx context.Context) ([]User, error) {
	var listing []wireUser
	err := a.http.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    a.url("users"),
		Header: a.header,
	}, &listing)
	if err != nil {
		return nil, classify(err)
	}

	ids := make([]int, 0, len(listing))
	for _, u := range listing {
		ids = append(ids, int(u.UserID))
	}

	disabled, err := a.GetUserSettings(ctx, ids, SettingDisabledUser)
	if err != nil {
		return nil, err
	}
	manual, err := a.GetUserSettings(ctx, ids, SettingAddedManually)
	if err != nil {
		return nil, err
	}
	additional, err := a.GetUserSettings(ctx, ids, SettingAdditionalEmail)
	if err != nil {
		return nil, err
	}
	external, err := a.GetUserSettings(ctx, ids, SettingExternalID)
	if err != nil {
		return nil, err
	}
	roles, err := a.GetUserRoles(ctx)
	if err != nil {
		return nil, err
	}

	users := make([]User, 0, len(listing))
	for _, w := range listing {
		id := int(w.UserID)
		u := User{
			ID:              id,
			Email:           w.Email,
			Name:            w.DisplayName,
			GroupID:         int(w.GroupID),
			AdditionalEmail: additional[id],
			ExternalID:      external[id],
			Enabled:         disabled[id] != "1",
			AddedManually:   manual[id] == "1",
		}
		for _, assignment := range roles[id] {
			if assignment.GroupID == u.GroupID {
				u.RoleID = assignment.RoleID
				break
			}
		}
		users = append(users, u)
	}
	return users, nil
}

// GetGroups returns all live groups with breadcrumb paths computed by
// walking parent links up to the configured root group.
func (a *API) GetGroups(ctx context.Context) ([]Group, error) {
	var listing []wireGroup
	err := a.http.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    a.url("group"),
		Header: a.header,
	}, &listing)
	if err != nil {
		return nil, classify(err)
	}

	byID := make(map[int]wireGroup, len(listing))
	for _, g := range listing {
		byID[int(g.GroupID)] = g
	}

	groups := make([]Group, 0, len(listing))
	for _, g := range listing {
		groups = append(groups, Group{
			ID:       int(g.GroupID),
			ParentID: int(g.ParentID),
			Name:     strings.TrimSpace(g.Name),
			Path:     a.breadcrumb(int(g.GroupID), byID),
		})
	}
	return groups, nil
}

// breadcrumb walks parent links from id up to the root group. Groups outside
// the root subtree yield an empty path. The visited set guards against
// malformed parent links forming a cycle.
func (a *API) breadcrumb(id int, byID map[int]wireGroup) string {
	var segments []string
	visited := make(map[int]bool)
	current := id
	for current != 0 && current != a.rootGroupID {
		if visited[current] {
			return ""
		}
		visited[current] = true
		g, ok := byID[current]
		if !ok {
			return ""
		}
		segments = append([]string{strings.TrimSpace(g.Name)}, segments...)
		current = int(g.ParentID)
	}
	if current != a.rootGroupID {
		return ""
	}
	return strings.Join(segments, "/")
}

// AddUser creates a user in groupID. The request always carries send_email=0
// so the SaaS never mails an invitation during sync runs.
func (a *API) AddUser(ctx context.Context, email, name string, groupID int) (int, error) {
	body := map[string]any{
		"email":                       []string{email},
		"display_name":                name,
		"tt_global_admin":             "0",
		"tt_can_create_level_1_tasks": "0",
		"can_view_rates":              "0",
		"add_to_all_projects":         "0",
		"send_email":                  "0",
	}
	var resp struct {
		UserID flexInt `json:"user_id"`
	}
	err := a.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    a.url(fmt.Sprintf("group/%d/user", groupID)),
		Header: a.header,
		Body:   body,
	}, &resp)
	if err != nil {
		return 0, classify(err)
	}
	return int(resp.UserID), nil
}

// UpdateUser sends a single PATCH-like request carrying only the fields set
// on update. The server leaves absent fields untouched.
func (a *API) UpdateUser(ctx context.Context, userID int, update UserUpdate) error {
	if update.Empty() {
		return nil
	}
	body := map[string]any{"user_id": strconv.Itoa(userID)}
	if update.Name != nil {
		body["display_name"] = *update.Name
	}
	if update.Email != nil {
		body["email"] = *update.Email
	}
	if update.AdditionalEmail != nil {
		body[SettingAdditionalEmail] = *update.AdditionalEmail
	}
	if update.ExternalID != nil {
		body[SettingExternalID] = *update.ExternalID
	}
	if update.RoleID != nil {
		body["role_id"] = *update.RoleID
	}
	if update.GroupID != nil {
		body["group_id"] = strconv.Itoa(*update.GroupID)
	}
	if update.Active != nil {
		if *update.Active {
			body[SettingDisabledUser] = "0"
		} else {
			body[SettingDisabledUser] = "1"
		}
	}

	err := a.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    a.url("user"),
		Header: a.header,
		Body:   body,
	}, nil)
	return classify(err)
}

// AddGroup creates a group under parentID and returns its id. The endpoint
// intermittently answers 403 while the account is throttled, so 403 joins
// the retryable statuses; a 403 that survives all retries is told apart from
// a real permission problem by its response body.
func (a *API) AddGroup(ctx context.Context, name string, parentID int) (int, error) {
	var resp struct {
		GroupID flexInt `json:"group_id"`
	}
	err := a.http.Do(ctx, httpclient.Request{
		Method:        http.MethodPut,
		URL:           a.url("group"),
		Header:        a.header,
		Body:          map[string]string{"name": name, "parent_id": strconv.Itoa(parentID)},
		RetryStatuses: []int{http.StatusForbidden},
		Attempts:      5,
	}, &resp)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusForbidden {
			if looksRateLimited(statusErr.Body) {
				return 0, fmt.Errorf("%w: group %q: %s", ErrRateLimited, name, statusErr)
			}
			return 0, fmt.Errorf("%w: group %q: %s", ErrPermissionDenied, name, statusErr)
		}
		return 0, classify(err)
	}
	a.logger.Debug("created group", zap.String("name", name), zap.Int("group_id", int(resp.GroupID)))
	return int(resp.GroupID), nil
}

// SetGroupManager grants or revokes the manager role of userID inside
// groupID. The call is idempotent on the server side.
func (a *API) SetGroupManager(ctx context.Context, groupID, userID int, manager bool) error {
	roleID := RoleIDUser
	if manager {
		roleID = RoleIDSupervisor
	}
	err := a.http.Do(ctx, httpclient.Request{
		Method: http.MethodPut,
		URL:    a.url(fmt.Sprintf("group/%d/user", groupID)),
		Header: a.header,
		Body:   map[string]string{"user_id": strconv.Itoa(userID), "role_id": roleID},
	}, nil)
	return classify(err)
}

// SetUserSetting writes one key of a user's settings bag.
func (a *API) SetUserSetting(ctx context.Context, userID int, name, value string) error {
	err := a.http.Do(ctx, httpclient.Request{
		Method: http.MethodPut,
		URL:    a.url(fmt.Sprintf("user/%d/setting", userID)),
		Header: a.header,
		Body:   map[string]string{"name": name, "value": value},
	}, nil)
	return classify(err)
}

// GetUserSettings bulk-fetches one setting for many users, batching ids to
// keep URLs bounded. Users without the setting are absent from the result.
func (a *API) GetUserSettings(ctx context.Context, userIDs []int, name string) (map[int]string, error) {
	result := make(map[int]string)
	for start := 0; start < len(userIDs); start += settingsBatchSize {
		end := start + settingsBatchSize
		if end > len(userIDs) {
			end = len(userIDs)
		}
		batch := userIDs[start:end]

		idList := make([]string, len(batch))
		for i, id := range batch {
			idList[i] = strconv.Itoa(id)
		}

		query := url.Values{}
		query.Set("name[]", name)

		var settings map[string][]wireSetting
		err := a.http.Do(ctx, httpclient.Request{
			Method: http.MethodGet,
			URL:    a.url(fmt.Sprintf("user/%s/setting", strings.Join(idList, ","))),
			Header: a.header,
			Query:  query,
		}, &settings)
		if err != nil {
			return nil, classify(err)
		}

		for _, id := range batch {
			for _, s := range settings[strconv.Itoa(id)] {
				if s.Name == name {
					result[id] = s.Value
					break
				}
			}
		}
	}
	return result, nil
}

// GetUserRoles returns every (group, role) assignment per user id, extracted
// from the people_picker response. Groups whose user list comes back as a
// JSON array are empty and skipped.
func (a *API) GetUserRoles(ctx context.Context) (map[int][]RoleAssignment, error) {
	var picker wirePeoplePicker
	err := a.http.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    a.url("people_picker"),
		Header: a.header,
	}, &picker)
	if err != nil {
		return nil, classify(err)
	}

	roles := make(map[int][]RoleAssignment)
	for _, group := range picker.Groups {
		var users map[string]struct {
			RoleID string `json:"role_id"`
		}
		if len(group.Users) == 0 || group.Users[0] == '[' {
			continue
		}
		if err := json.Unmarshal(group.Users, &users); err != nil {
			continue
		}
		for rawID, entry := range users {
			id, err := strconv.Atoi(rawID)
			if err != nil {
				continue
			}
			roles[id] = append(roles[id], RoleAssignment{
				GroupID: int(group.GroupID),
				RoleID:  entry.RoleID,
			})
		}
	}
	return roles, nil
}

// looksRateLimited decides whether a 403 body describes throttling rather
// than a permission problem.
func looksRateLimited(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "rate") ||
		strings.Contains(lower, "limit") ||
		strings.Contains(lower, "too many")
}
