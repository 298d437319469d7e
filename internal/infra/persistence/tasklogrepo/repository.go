package tasklogrepo

import (
	"context"
	"errors"

	"github.com/google/wire"
	"github.com/samber/lo"
	domain "github.com/timerd/scheduler/internal/biz/tasklog"
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

func (r *MysqlRepositoryImpl) Create(ctx context.Context, log *domain.TaskLog) error {
	po := new(TaskLogPo).FromDomain(log)
	if err := r.Db(ctx).Create(po).Error; err != nil {
		return err
	}
	log.CreatedAt = po.CreatedAt
	return nil
}

func (r *MysqlRepositoryImpl) FindLatestByTask(ctx context.Context, taskID string) (*domain.TaskLog, error) {
	var po TaskLogPo
	err := r.Db(ctx).Where("task_id = ?", taskID).Order("created_at DESC").First(&po).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return po.ToDomain(), nil
}

func (r *MysqlRepositoryImpl) FindByTask(ctx context.Context, taskID string, offset, limit int) ([]*domain.TaskLog, error) {
	var pos []TaskLogPo
	err := r.Db(ctx).
		Where("task_id = ?", taskID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po TaskLogPo, _ int) *domain.TaskLog {
		return po.ToDomain()
	}), nil
}

func (r *MysqlRepositoryImpl) CountByTask(ctx context.Context, taskID string) (int64, error) {
	var count int64
	err := r.Db(ctx).Model(&TaskLogPo{}).Where("task_id = ?", taskID).Count(&count).Error
	return count, err
}
