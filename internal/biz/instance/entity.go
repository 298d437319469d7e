package instance

import (
	"errors"
	"time"
)

var ErrInstanceNotFound = errors.New("instance not found")

type InstanceStatus string

const (
	InstanceStatusActive   InstanceStatus = "active"
	InstanceStatusInactive InstanceStatus = "inactive"
)

// Instance is one running worker process, tracked by heartbeat. An
// instance whose heartbeat goes stale is marked inactive by a peer and
// its task assignments are stolen; it is never deleted automatically.
type Instance struct {
	ID            uint64
	Name          string
	Address       string
	Status        InstanceStatus
	LastHeartbeat time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (i *Instance) Active() bool {
	return i != nil && i.Status == InstanceStatusActive
}
