package taskrepo

import (
	"context"
	"errors"
	"time"

	"github.com/google/wire"
	"github.com/samber/lo"
	domain "github.com/timerd/scheduler/internal/biz/task"
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

func (r *MysqlRepositoryImpl) Create(ctx context.Context, task *domain.Task) error {
	po := new(TaskPo).FromDomain(task)
	if err := r.Db(ctx).Create(po).Error; err != nil {
		return err
	}
	task.CreatedAt = po.CreatedAt
	task.UpdatedAt = po.UpdatedAt
	return nil
}

func (r *MysqlRepositoryImpl) GetByID(ctx context.Context, taskID string) (*domain.Task, error) {
	var po TaskPo
	if err := r.Db(ctx).Where("task_id = ?", taskID).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return po.ToDomain(), nil
}

func (r *MysqlRepositoryImpl) Delete(ctx context.Context, taskID string) error {
	return r.Db(ctx).Delete(&TaskPo{}, "task_id = ?", taskID).Error
}

func (r *MysqlRepositoryImpl) FindDue(ctx context.Context, taskIDs []string, now time.Time, limit int) ([]*domain.Task, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	var pos []TaskPo
	err := r.Db(ctx).
		Where("task_id IN ? AND status IN ? AND next_run_time IS NOT NULL AND next_run_time <= ?",
			taskIDs, domain.SchedulableStatuses, now).
		Order("next_run_time ASC").
		Limit(limit).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po TaskPo, _ int) *domain.Task {
		return po.ToDomain()
	}), nil
}

func (r *MysqlRepositoryImpl) FindByUser(ctx context.Context, userID int, filter *domain.TaskFilter, offset, limit int) ([]*domain.Task, error) {
	query := r.Db(ctx).Model(&TaskPo{}).Where("user_id = ?", userID)
	if filter != nil && filter.Status.IsPresent() {
		query = query.Where("status = ?", filter.Status.MustGet())
	}
	var pos []TaskPo
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&pos).Error; err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po TaskPo, _ int) *domain.Task {
		return po.ToDomain()
	}), nil
}

func (r *MysqlRepositoryImpl) CountRunning(ctx context.Context, userID int) (int64, error) {
	var count int64
	err := r.Db(ctx).Model(&TaskPo{}).
		Where("user_id = ? AND status = ?", userID, domain.TaskStatusRunning).
		Count(&count).Error
	return count, err
}

func (r *MysqlRepositoryImpl) FindUnassigned(ctx context.Context, limit int) ([]*domain.Task, error) {
	var pos []TaskPo
	err := r.Db(ctx).Model(&TaskPo{}).
		Joins("LEFT JOIN timer_task_assignments a ON a.task_id = timer_tasks.task_id").
		Where("a.id IS NULL AND timer_tasks.status IN ? AND timer_tasks.next_run_time IS NOT NULL",
			domain.SchedulableStatuses).
		Limit(limit).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po TaskPo, _ int) *domain.Task {
		return po.ToDomain()
	}), nil
}

// ClaimDue is the at-most-one-execution guard. Clearing next_run_time in
// the same conditional update makes the row invisible to every other
// claimant and to subsequent scan cycles until the runner reschedules it.
func (r *MysqlRepositoryImpl) ClaimDue(ctx context.Context, taskID string, now time.Time) (int64, error) {
	res := r.Db(ctx).Model(&TaskPo{}).
		Where("task_id = ? AND status IN ? AND next_run_time IS NOT NULL AND next_run_time <= ?",
			taskID, domain.SchedulableStatuses, now).
		Updates(map[string]any{
			"status":        domain.TaskStatusRunning,
			"next_run_time": nil,
		})
	return res.RowsAffected, res.Error
}

func (r *MysqlRepositoryImpl) UpdateStatusFrom(ctx context.Context, taskID string, from []domain.TaskStatus, to domain.TaskStatus, nextRun *time.Time) (int64, error) {
	values := map[string]any{"status": to}
	if nextRun != nil {
		values["next_run_time"] = *nextRun
	} else {
		values["next_run_time"] = nil
	}
	res := r.Db(ctx).Model(&TaskPo{}).
		Where("task_id = ? AND status IN ?", taskID, from).
		Updates(values)
	return res.RowsAffected, res.Error
}

func (r *MysqlRepositoryImpl) CreateAssignment(ctx context.Context, assignment *domain.TaskAssignment) error {
	po := new(TaskAssignmentPo).FromDomain(assignment)
	if err := r.Db(ctx).Create(po).Error; err != nil {
		return err
	}
	assignment.ID = po.ID
	assignment.CreatedAt = po.CreatedAt
	assignment.UpdatedAt = po.UpdatedAt
	return nil
}

func (r *MysqlRepositoryImpl) GetAssignmentByTaskID(ctx context.Context, taskID string) (*domain.TaskAssignment, error) {
	var po TaskAssignmentPo
	if err := r.Db(ctx).Where("task_id = ?", taskID).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return po.ToDomain(), nil
}

func (r *MysqlRepositoryImpl) ListAssignmentsByInstance(ctx context.Context, instanceID uint64) ([]*domain.TaskAssignment, error) {
	var pos []TaskAssignmentPo
	if err := r.Db(ctx).Where("instance_id = ?", instanceID).Find(&pos).Error; err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po TaskAssignmentPo, _ int) *domain.TaskAssignment {
		return po.ToDomain()
	}), nil
}

func (r *MysqlRepositoryImpl) DeleteAssignmentByTaskID(ctx context.Context, taskID string) error {
	return r.Db(ctx).Delete(&TaskAssignmentPo{}, "task_id = ?", taskID).Error
}
