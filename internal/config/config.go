// Package config resolves the typed configuration for all pipeline stages
// from environment variables. It is consulted exactly once at process start;
// the resulting Config value is immutable and passed down explicitly.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// ErrConfig wraps every configuration failure. Config errors are fatal at
// process level — the stages refuse to start on a bad environment.
var ErrConfig = errors.New("config: invalid configuration")

// legacyAliases maps renamed environment variables that earlier deployments
// used to the canonical name. Setting one is refused with a clear error
// instead of being silently ignored or honoured.
var legacyAliases = map[string]string{
	"TIMECAMP_SKIP_NEW_USERS_CREATION":  "TIMECAMP_DISABLE_NEW_USERS",
	"TIMECAMP_SKIP_USER_DEACTIVATION":   "TIMECAMP_DISABLE_USER_DEACTIVATION",
	"TIMECAMP_SKIP_GROUP_UPDATES":       "TIMECAMP_DISABLE_GROUP_UPDATES",
	"TIMECAMP_SKIP_ROLE_UPDATES":        "TIMECAMP_DISABLE_ROLE_UPDATES",
	"TIMECAMP_SKIP_GROUPS_CREATION":     "TIMECAMP_DISABLE_GROUPS_CREATION",
	"TIMECAMP_SKIP_EXTERNAL_ID_SYNC":    "TIMECAMP_DISABLE_EXTERNAL_ID_SYNC",
	"TIMECAMP_SKIP_MANUAL_USER_UPDATES": "TIMECAMP_DISABLE_MANUAL_USER_UPDATES",
}

// Config is the resolved configuration shared by the prepare and sync stages.
type Config struct {
	APIKey      string
	Domain      string
	RootGroupID int

	// IgnoredUserIDs lists live TimeCamp user ids that are never mutated.
	IgnoredUserIDs map[int]bool

	ShowExternalID        bool
	UseSupervisorGroups   bool
	UseDepartmentGroups   bool
	UseJobTitleNameUsers  bool
	UseJobTitleNameGroups bool
	UseIsSupervisorRole   bool

	// SkipDepartments is a comma-separated list of alternative department
	// prefixes stripped during group-path derivation.
	SkipDepartments string

	// ReplaceEmailDomain forces every synced email onto this domain.
	// Stored without the leading "@".
	ReplaceEmailDomain string

	DisableNewUsers            bool
	DisableUserDeactivation    bool
	DisableExternalIDSync      bool
	DisableAdditionalEmailSync bool
	DisableManualUserUpdates   bool
	DisableGroupUpdates        bool
	DisableRoleUpdates         bool
	DisableGroupsCreation      bool

	// DisabledUsersGroupID is where deactivated users are moved; 0 disables
	// the move.
	DisabledUsersGroupID int

	Storage StorageConfig

	// Schedule is an optional cron expression for the in-process scheduler;
	// empty disables scheduled runs.
	Schedule string

	// HTTPAddr is the listen address of the trigger/health service.
	HTTPAddr string
}

// StorageConfig selects and parameterises the blob store backend.
type StorageConfig struct {
	UseS3            bool
	LocalDir         string
	S3Endpoint       string
	S3Region         string
	S3Bucket         string
	S3AccessKeyID    string
	S3SecretKey      string
	S3PathPrefix     string
	S3ForcePathStyle bool
}

// Load reads the environment and returns the validated configuration.
func Load() (*Config, error) {
	for legacy, canonical := range legacyAliases {
		if _, set := os.LookupEnv(legacy); set {
			return nil, fmt.Errorf("%w: %s was renamed, set %s instead", ErrConfig, legacy, canonical)
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("TIMECAMP_DOMAIN", "app.timecamp.com")
	v.SetDefault("TIMECAMP_SHOW_EXTERNAL_ID", true)
	v.SetDefault("TIMECAMP_USE_DEPARTMENT_GROUPS", true)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("SYNC_WORK_DIR", ".")
	v.SetDefault("SYNC_HTTP_ADDR", ":8080")

	apiKey := v.GetString("TIMECAMP_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing TIMECAMP_API_KEY", ErrConfig)
	}

	rootGroup := v.GetString("TIMECAMP_ROOT_GROUP_ID")
	if rootGroup == "" {
		return nil, fmt.Errorf("%w: missing TIMECAMP_ROOT_GROUP_ID", ErrConfig)
	}
	rootGroupID, err := strconv.Atoi(strings.TrimSpace(rootGroup))
	if err != nil {
		return nil, fmt.Errorf("%w: TIMECAMP_ROOT_GROUP_ID must be numeric, got %q", ErrConfig, rootGroup)
	}

	ignored, err := parseIDSet(v.GetString("TIMECAMP_IGNORED_USER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("%w: TIMECAMP_IGNORED_USER_IDS: %s", ErrConfig, err)
	}

	disabledGroupID := 0
	if raw := strings.TrimSpace(v.GetString("TIMECAMP_DISABLED_USERS_GROUP_ID")); raw != "" {
		disabledGroupID, err = strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: TIMECAMP_DISABLED_USERS_GROUP_ID must be numeric, got %q", ErrConfig, raw)
		}
	}

	cfg := &Config{
		APIKey:         apiKey,
		Domain:         v.GetString("TIMECAMP_DOMAIN"),
		RootGroupID:    rootGroupID,
		IgnoredUserIDs: ignored,

		ShowExternalID:        v.GetBool("TIMECAMP_SHOW_EXTERNAL_ID"),
		UseSupervisorGroups:   v.GetBool("TIMECAMP_USE_SUPERVISOR_GROUPS"),
		UseDepartmentGroups:   v.GetBool("TIMECAMP_USE_DEPARTMENT_GROUPS"),
		UseJobTitleNameUsers:  v.GetBool("TIMECAMP_USE_JOB_TITLE_NAME_USERS"),
		UseJobTitleNameGroups: v.GetBool("TIMECAMP_USE_JOB_TITLE_NAME_GROUPS"),
		UseIsSupervisorRole:   v.GetBool("TIMECAMP_USE_IS_SUPERVISOR_ROLE"),

		SkipDepartments:    strings.TrimSpace(v.GetString("TIMECAMP_SKIP_DEPARTMENTS")),
		ReplaceEmailDomain: strings.TrimPrefix(strings.TrimSpace(v.GetString("TIMECAMP_REPLACE_EMAIL_DOMAIN")), "@"),

		DisableNewUsers:            v.GetBool("TIMECAMP_DISABLE_NEW_USERS"),
		DisableUserDeactivation:    v.GetBool("TIMECAMP_DISABLE_USER_DEACTIVATION"),
		DisableExternalIDSync:      v.GetBool("TIMECAMP_DISABLE_EXTERNAL_ID_SYNC"),
		DisableAdditionalEmailSync: v.GetBool("TIMECAMP_DISABLE_ADDITIONAL_EMAIL_SYNC"),
		DisableManualUserUpdates:   v.GetBool("TIMECAMP_DISABLE_MANUAL_USER_UPDATES"),
		DisableGroupUpdates:        v.GetBool("TIMECAMP_DISABLE_GROUP_UPDATES"),
		DisableRoleUpdates:         v.GetBool("TIMECAMP_DISABLE_ROLE_UPDATES"),
		DisableGroupsCreation:      v.GetBool("TIMECAMP_DISABLE_GROUPS_CREATION"),

		DisabledUsersGroupID: disabledGroupID,

		Storage: StorageConfig{
			UseS3:            v.GetBool("USE_S3_STORAGE"),
			LocalDir:         v.GetString("SYNC_WORK_DIR"),
			S3Endpoint:       v.GetString("S3_ENDPOINT_URL"),
			S3Region:         v.GetString("S3_REGION"),
			S3Bucket:         v.GetString("S3_BUCKET_NAME"),
			S3AccessKeyID:    v.GetString("S3_ACCESS_KEY_ID"),
			S3SecretKey:      v.GetString("S3_SECRET_ACCESS_KEY"),
			S3PathPrefix:     v.GetString("S3_PATH_PREFIX"),
			S3ForcePathStyle: v.GetBool("S3_FORCE_PATH_STYLE"),
		},

		Schedule: strings.TrimSpace(v.GetString("SYNC_SCHEDULE")),
		HTTPAddr: v.GetString("SYNC_HTTP_ADDR"),
	}

	if cfg.Storage.UseS3 && cfg.Storage.S3Bucket == "" {
		return nil, fmt.Errorf("%w: USE_S3_STORAGE is enabled but S3_BUCKET_NAME is empty", ErrConfig)
	}

	return cfg, nil
}

// SkipDepartmentPrefixes returns the configured prefix alternatives in order,
// empty entries dropped.
func (c *Config) SkipDepartmentPrefixes() []string {
	if c.SkipDepartments == "" {
		return nil
	}
	var prefixes []string
	for _, p := range strings.Split(c.SkipDepartments, ",") {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}

func parseIDSet(raw string) (map[int]bool, error) {
	ids := make(map[int]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad user id %q", part)
		}
		ids[id] = true
	}
	return ids, nil
}
