package instancerepo

import (
	"time"

	domain "github.com/timerd/scheduler/internal/biz/instance"
	"github.com/timerd/scheduler/internal/infra/persistence/commonrepo"
)

type InstancePo struct {
	commonrepo.Mode
	Name          string                `gorm:"column:name;size:255;not null;uniqueIndex"`
	Address       string                `gorm:"column:address;size:255;not null"`
	Status        domain.InstanceStatus `gorm:"column:status;size:20;not null;index"`
	LastHeartbeat time.Time             `gorm:"column:last_heartbeat;not null;index"`
}

func (InstancePo) TableName() string {
	return "timer_instances"
}
