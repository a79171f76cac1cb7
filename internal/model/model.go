// Package model defines the record types exchanged between the pipeline
// stages. Fetchers write a PersonSet ("users.json"), the prepare stage turns
// it into a sorted DesiredUser list ("timecamp_users.json"), and the sync
// stage converges TimeCamp on that list.
package model

// ─── Person ──────────────────────────────────────────────────────────────────

// PersonStatus is the employment state reported by the source system.
type PersonStatus string

const (
	PersonStatusActive   PersonStatus = "active"
	PersonStatusInactive PersonStatus = "inactive"
)

// Person is one record of the intermediate set emitted by a source fetcher
// (BambooHR, Entra ID, LDAP, FactorialHR). ExternalID is the stable key that
// survives renames and email changes.
type Person struct {
	ExternalID string       `json:"external_id"`
	Name       string       `json:"name"`
	Email      string       `json:"email"`
	RealEmail  string       `json:"real_email,omitempty"`
	Status     PersonStatus `json:"status"`

	// Department is a slash-separated path, e.g. "R&D/Information Security".
	Department string `json:"department,omitempty"`

	// SupervisorID points at another Person's ExternalID. Dangling pointers
	// are tolerated and treated as "no supervisor".
	SupervisorID string `json:"supervisor_id,omitempty"`
	IsSupervisor bool   `json:"is_supervisor,omitempty"`

	JobTitle string `json:"job_title,omitempty"`

	ForceGlobalAdminRole bool `json:"force_global_admin_role,omitempty"`
	ForceSupervisorRole  bool `json:"force_supervisor_role,omitempty"`

	// RoleID is a numeric TimeCamp role hint carried by some sources.
	RoleID string `json:"role_id,omitempty"`
}

// PersonSet is the shape of the users.json artifact.
type PersonSet struct {
	Users []Person `json:"users"`
}

// ─── DesiredUser ─────────────────────────────────────────────────────────────

// Role is the TimeCamp role a user should hold.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleSupervisor    Role = "supervisor"
	RoleUser          Role = "user"
)

// DesiredUser is the policy-applied projection of a Person onto TimeCamp's
// schema. The timecamp_users.json artifact is a JSON array of these, sorted
// ascending by Email so that identical inputs produce byte-identical output.
type DesiredUser struct {
	ExternalID string `json:"timecamp_external_id"`
	Name       string `json:"timecamp_user_name"`
	Email      string `json:"timecamp_email"`
	RealEmail  string `json:"timecamp_real_email,omitempty"`

	// GroupBreadcrumb is the slash-separated group path under the configured
	// root group. Empty means the root group itself.
	GroupBreadcrumb string `json:"timecamp_groups_breadcrumb"`

	Status PersonStatus `json:"timecamp_status"`
	Role   Role         `json:"timecamp_role"`
}

// Active reports whether the user should be enabled in TimeCamp.
func (u DesiredUser) Active() bool { return u.Status == PersonStatusActive }
