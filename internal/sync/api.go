package sync

import (
	"context"

	"github.com/timecamp-tools/timecamp-sync/internal/timecamp"
)

// API is the slice of the TimeCamp adapter the sync engine consumes. The
// real adapter satisfies it; tests use an in-memory fake and dry runs wrap
// it to swallow writes.
type API interface {
	GetUsers(ctx context.Context) ([]timecamp.User, error)
	GetGroups(ctx context.Context) ([]timecamp.Group, error)
	AddUser(ctx context.Context, email, name string, groupID int) (int, error)
	UpdateUser(ctx context.Context, userID int, update timecamp.UserUpdate) error
	AddGroup(ctx context.Context, name string, parentID int) (int, error)
	SetGroupManager(ctx context.Context, groupID, userID int, manager bool) error
	SetUserSetting(ctx context.Context, userID int, name, value string) error
}
