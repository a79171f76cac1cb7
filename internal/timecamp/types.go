package timecamp

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Role ids as the TimeCamp API reports them. 5 ("guest") exists server-side
// but is never produced by the pipeline.
const (
	RoleIDAdministrator = "1"
	RoleIDSupervisor    = "2"
	RoleIDUser          = "3"
)

// Group is a live TimeCamp group. Path is the slash-separated breadcrumb
// relative to the configured root group; it is empty for the root itself and
// for groups outside the root's subtree.
type Group struct {
	ID       int
	ParentID int
	Name     string
	Path     string
}

// User is the merged view of a live TimeCamp user: the listing entry plus
// the per-user settings the sync engine needs.
type User struct {
	ID              int
	Email           string
	AdditionalEmail string
	Name            string
	ExternalID      string
	GroupID         int
	RoleID          string
	Enabled         bool
	AddedManually   bool
}

// UserUpdate carries the fields of a PATCH-like user update. Only non-nil
// fields are sent.
type UserUpdate struct {
	Name            *string
	Email           *string
	AdditionalEmail *string
	ExternalID      *string
	RoleID          *string
	GroupID         *int
	Active          *bool
}

// Empty reports whether the update carries no fields.
func (u UserUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.AdditionalEmail == nil &&
		u.ExternalID == nil && u.RoleID == nil && u.GroupID == nil && u.Active == nil
}

// flexInt tolerates the API's habit of returning numeric ids as either JSON
// numbers or strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// wireUser is one entry of the GET /users listing.
type wireUser struct {
	UserID      flexInt `json:"user_id"`
	Email       string  `json:"email"`
	DisplayName string  `json:"display_name"`
	GroupID     flexInt `json:"group_id"`
}

// wireGroup is one entry of the GET /group listing.
type wireGroup struct {
	GroupID  flexInt `json:"group_id"`
	Name     string  `json:"name"`
	ParentID flexInt `json:"parent_id"`
}

// wireSetting is one name/value pair of a user's settings bag.
type wireSetting struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// wirePeoplePicker is the GET /people_picker response, which nests per-group
// role assignments.
type wirePeoplePicker struct {
	Groups map[string]struct {
		GroupID flexInt         `json:"group_id"`
		Users   json.RawMessage `json:"users"`
	} `json:"groups"`
}

// RoleAssignment is one (group, role) pair of a live user.
type RoleAssignment struct {
	GroupID int
	RoleID  string
}
