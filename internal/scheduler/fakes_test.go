package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/timerd/scheduler/internal/biz/instance"
	"github.com/timerd/scheduler/internal/biz/task"
	"github.com/timerd/scheduler/internal/biz/tasklog"
)

// In-memory repositories mirroring the SQL semantics of the mysql
// implementations, including the row counts of the conditional updates.

type fakeTaskRepo struct {
	mu          sync.Mutex
	tasks       map[string]*task.Task
	assignments map[string]*task.TaskAssignment
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{
		tasks:       make(map[string]*task.Task),
		assignments: make(map[string]*task.TaskAssignment),
	}
}

func (r *fakeTaskRepo) Create(_ context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tasks[t.TaskID] = &cp
	return nil
}

func (r *fakeTaskRepo) GetByID(_ context.Context, taskID string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTaskRepo) Delete(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, taskID)
	return nil
}

func (r *fakeTaskRepo) FindDue(_ context.Context, taskIDs []string, now time.Time, limit int) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*task.Task
	for _, id := range taskIDs {
		t, ok := r.tasks[id]
		if !ok || !t.Schedulable() || t.NextRunTime == nil || t.NextRunTime.After(now) {
			continue
		}
		cp := *t
		due = append(due, &cp)
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (r *fakeTaskRepo) FindByUser(_ context.Context, userID int, filter *task.TaskFilter, offset, limit int) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*task.Task
	for _, t := range r.tasks {
		if t.UserID != userID {
			continue
		}
		if filter != nil {
			if st, ok := filter.Status.Get(); ok && t.Status != st {
				continue
			}
		}
		cp := *t
		out = append(out, &cp)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeTaskRepo) CountRunning(_ context.Context, userID int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tasks {
		if t.UserID == userID && t.Status == task.TaskStatusRunning {
			n++
		}
	}
	return n, nil
}

func (r *fakeTaskRepo) FindUnassigned(_ context.Context, limit int) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*task.Task
	for _, t := range r.tasks {
		if !t.Schedulable() {
			continue
		}
		if _, assigned := r.assignments[t.TaskID]; assigned {
			continue
		}
		cp := *t
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) ClaimDue(_ context.Context, taskID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok || !t.Schedulable() || t.NextRunTime == nil || t.NextRunTime.After(now) {
		return 0, nil
	}
	t.Status = task.TaskStatusRunning
	t.NextRunTime = nil
	return 1, nil
}

func (r *fakeTaskRepo) UpdateStatusFrom(_ context.Context, taskID string, from []task.TaskStatus, to task.TaskStatus, nextRun *time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok || !lo.Contains(from, t.Status) {
		return 0, nil
	}
	t.Status = to
	t.NextRunTime = nextRun
	return 1, nil
}

func (r *fakeTaskRepo) CreateAssignment(_ context.Context, a *task.TaskAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.assignments[a.TaskID]; exists {
		return fmt.Errorf("duplicate assignment for task %s", a.TaskID)
	}
	cp := *a
	r.assignments[a.TaskID] = &cp
	return nil
}

func (r *fakeTaskRepo) GetAssignmentByTaskID(_ context.Context, taskID string) (*task.TaskAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[taskID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *fakeTaskRepo) ListAssignmentsByInstance(_ context.Context, instanceID uint64) ([]*task.TaskAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*task.TaskAssignment
	for _, a := range r.assignments {
		if a.InstanceID == instanceID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) DeleteAssignmentByTaskID(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assignments, taskID)
	return nil
}

type fakeInstanceRepo struct {
	mu     sync.Mutex
	nextID uint64
	byName map[string]*instance.Instance
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{byName: make(map[string]*instance.Instance)}
}

func (r *fakeInstanceRepo) Upsert(_ context.Context, inst *instance.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byName[inst.Name]; ok {
		existing.Address = inst.Address
		existing.Status = instance.InstanceStatusActive
		existing.LastHeartbeat = inst.LastHeartbeat
		inst.ID = existing.ID
		return nil
	}
	r.nextID++
	inst.ID = r.nextID
	cp := *inst
	cp.Status = instance.InstanceStatusActive
	r.byName[inst.Name] = &cp
	return nil
}

func (r *fakeInstanceRepo) GetByName(_ context.Context, name string) (*instance.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.byName[name]
	if !ok {
		return nil, nil
	}
	cp := *inst
	return &cp, nil
}

func (r *fakeInstanceRepo) ListActive(_ context.Context) ([]*instance.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*instance.Instance
	for _, inst := range r.byName {
		if inst.Status == instance.InstanceStatusActive {
			cp := *inst
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeInstanceRepo) FindExpired(_ context.Context, threshold time.Duration, now time.Time) ([]*instance.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*instance.Instance
	for _, inst := range r.byName {
		if inst.Status == instance.InstanceStatusInactive {
			continue
		}
		if inst.LastHeartbeat.Before(now.Add(-threshold)) {
			cp := *inst
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeInstanceRepo) UpdateHeartbeat(_ context.Context, id uint64, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.byName {
		if inst.ID == id {
			inst.LastHeartbeat = now
			return 1, nil
		}
	}
	return 0, nil
}

func (r *fakeInstanceRepo) UpdateStatusFrom(_ context.Context, id uint64, from, to instance.InstanceStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.byName {
		if inst.ID == id && inst.Status == from {
			inst.Status = to
			return 1, nil
		}
	}
	return 0, nil
}

type fakeLogRepo struct {
	mu   sync.Mutex
	logs []*tasklog.TaskLog
}

func newFakeLogRepo() *fakeLogRepo {
	return &fakeLogRepo{}
}

func (r *fakeLogRepo) Create(_ context.Context, log *tasklog.TaskLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *log
	cp.CreatedAt = time.Now()
	r.logs = append(r.logs, &cp)
	return nil
}

func (r *fakeLogRepo) FindLatestByTask(_ context.Context, taskID string) (*tasklog.TaskLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].TaskID == taskID {
			cp := *r.logs[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeLogRepo) FindByTask(_ context.Context, taskID string, offset, limit int) ([]*tasklog.TaskLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*tasklog.TaskLog
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].TaskID == taskID {
			cp := *r.logs[i]
			out = append(out, &cp)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeLogRepo) CountByTask(_ context.Context, taskID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, l := range r.logs {
		if l.TaskID == taskID {
			n++
		}
	}
	return n, nil
}
