package instancerepo

import (
	"context"
	"errors"
	"time"

	"github.com/google/wire"
	"github.com/samber/lo"
	domain "github.com/timerd/scheduler/internal/biz/instance"
	"github.com/timerd/scheduler/internal/infra/persistence/commonrepo"
	"gorm.io/gorm"
)

var Provider = wire.NewSet(NewMysqlRepositoryImpl)

type MysqlRepositoryImpl struct {
	commonrepo.DefaultRepo
}

func NewMysqlRepositoryImpl(db commonrepo.DB) domain.Repo {
	return &MysqlRepositoryImpl{DefaultRepo: commonrepo.NewDefaultRepo(db)}
}

// Upsert registers the instance by name, reviving an existing row to
// active with a fresh heartbeat. Called once at process start.
func (r *MysqlRepositoryImpl) Upsert(ctx context.Context, inst *domain.Instance) error {
	var existing InstancePo
	err := r.Db(ctx).Where("name = ?", inst.Name).First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		po := new(InstancePo).FromDomain(inst)
		if err := r.Db(ctx).Create(po).Error; err != nil {
			return err
		}
		inst.ID = po.ID
		inst.CreatedAt = po.CreatedAt
		inst.UpdatedAt = po.UpdatedAt
		return nil
	}

	existing.Address = inst.Address
	existing.Status = domain.InstanceStatusActive
	existing.LastHeartbeat = inst.LastHeartbeat
	if err := r.Db(ctx).Save(&existing).Error; err != nil {
		return err
	}
	inst.ID = existing.ID
	inst.Status = existing.Status
	inst.CreatedAt = existing.CreatedAt
	inst.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r *MysqlRepositoryImpl) GetByName(ctx context.Context, name string) (*domain.Instance, error) {
	var po InstancePo
	if err := r.Db(ctx).Where("name = ?", name).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return po.ToDomain(), nil
}

func (r *MysqlRepositoryImpl) ListActive(ctx context.Context) ([]*domain.Instance, error) {
	var pos []InstancePo
	if err := r.Db(ctx).Where("status = ?", domain.InstanceStatusActive).Find(&pos).Error; err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po InstancePo, _ int) *domain.Instance {
		return po.ToDomain()
	}), nil
}

func (r *MysqlRepositoryImpl) FindExpired(ctx context.Context, threshold time.Duration, now time.Time) ([]*domain.Instance, error) {
	cutoff := now.Add(-threshold)
	var pos []InstancePo
	err := r.Db(ctx).
		Where("last_heartbeat < ? AND status <> ?", cutoff, domain.InstanceStatusInactive).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po InstancePo, _ int) *domain.Instance {
		return po.ToDomain()
	}), nil
}

func (r *MysqlRepositoryImpl) UpdateHeartbeat(ctx context.Context, id uint64, now time.Time) (int64, error) {
	res := r.Db(ctx).Model(&InstancePo{}).
		Where("id = ?", id).
		Update("last_heartbeat", now)
	return res.RowsAffected, res.Error
}

func (r *MysqlRepositoryImpl) UpdateStatusFrom(ctx context.Context, id uint64, from, to domain.InstanceStatus) (int64, error) {
	res := r.Db(ctx).Model(&InstancePo{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}
