package instance

import (
	"context"
	"time"
)

type Repo interface {
	// Upsert creates the instance or refreshes an existing row with the
	// same name, resetting it to active with a current heartbeat.
	Upsert(ctx context.Context, inst *Instance) error

	GetByName(ctx context.Context, name string) (*Instance, error)
	ListActive(ctx context.Context) ([]*Instance, error)

	// FindExpired returns instances whose last heartbeat is older than
	// the threshold and that are not already inactive.
	FindExpired(ctx context.Context, threshold time.Duration, now time.Time) ([]*Instance, error)

	// UpdateHeartbeat refreshes last_heartbeat; affected rows reported.
	UpdateHeartbeat(ctx context.Context, id uint64, now time.Time) (int64, error)

	// UpdateStatusFrom flips status only when the current status matches
	// from; the row count makes the transition a CAS.
	UpdateStatusFrom(ctx context.Context, id uint64, from, to InstanceStatus) (int64, error)
}
