package commonrepo

import "time"

// Mode is the embedded base for numeric-keyed tables.
type Mode struct {
	ID        uint64    `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index;autoCreateTime"`
	UpdatedAt time.Time `gorm:"index;autoUpdateTime"`
}
