package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/timecamp-tools/timecamp-sync/internal/timecamp"
)

// dryRunAPI passes reads through to the live adapter and replaces every
// write with a logged intent. Create operations hand out synthetic negative
// ids so the rest of the plan (group trees, follow-up updates) still links
// up.
type dryRunAPI struct {
	real   API
	logger *zap.Logger
	nextID int
}

func newDryRun(real API, logger *zap.Logger) *dryRunAPI {
	return &dryRunAPI{real: real, logger: logger.Named("dry-run"), nextID: -1}
}

func (d *dryRunAPI) GetUsers(ctx context.Context) ([]timecamp.User, error) {
	return d.real.GetUsers(ctx)
}

func (d *dryRunAPI) GetGroups(ctx context.Context) ([]timecamp.Group, error) {
	return d.real.GetGroups(ctx)
}

func (d *dryRunAPI) AddUser(_ context.Context, email, name string, groupID int) (int, error) {
	id := d.nextID
	d.nextID--
	d.logger.Info("would create user",
		zap.String("email", email),
		zap.String("name", name),
		zap.Int("group_id", groupID),
	)
	return id, nil
}

func (d *dryRunAPI) UpdateUser(_ context.Context, userID int, update timecamp.UserUpdate) error {
	fields := []zap.Field{zap.Int("user_id", userID)}
	if update.Name != nil {
		fields = append(fields, zap.String("name", *update.Name))
	}
	if update.Email != nil {
		fields = append(fields, zap.String("email", *update.Email))
	}
	if update.AdditionalEmail != nil {
		fields = append(fields, zap.String("additional_email", *update.AdditionalEmail))
	}
	if update.ExternalID != nil {
		fields = append(fields, zap.String("external_id", *update.ExternalID))
	}
	if update.RoleID != nil {
		fields = append(fields, zap.String("role_id", *update.RoleID))
	}
	if update.GroupID != nil {
		fields = append(fields, zap.Int("group_id", *update.GroupID))
	}
	if update.Active != nil {
		fields = append(fields, zap.Bool("active", *update.Active))
	}
	d.logger.Info("would update user", fields...)
	return nil
}

func (d *dryRunAPI) AddGroup(_ context.Context, name string, parentID int) (int, error) {
	id := d.nextID
	d.nextID--
	d.logger.Info("would create group", zap.String("name", name), zap.Int("parent_id", parentID))
	return id, nil
}

func (d *dryRunAPI) SetGroupManager(_ context.Context, groupID, userID int, manager bool) error {
	d.logger.Info("would set group manager",
		zap.Int("group_id", groupID),
		zap.Int("user_id", userID),
		zap.Bool("manager", manager),
	)
	return nil
}

func (d *dryRunAPI) SetUserSetting(_ context.Context, userID int, name, value string) error {
	d.logger.Info("would set user setting",
		zap.Int("user_id", userID),
		zap.String("name", name),
		zap.String("value", value),
	)
	return nil
}
