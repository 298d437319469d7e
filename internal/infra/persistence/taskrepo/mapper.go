package taskrepo

import (
	"encoding/json"

	domain "github.com/timerd/scheduler/internal/biz/task"
	"github.com/timerd/scheduler/internal/infra/persistence/commonrepo"
	"gorm.io/datatypes"
)

func (po *TaskPo) FromDomain(in *domain.Task) *TaskPo {
	var headers datatypes.JSON
	if in.Headers != nil {
		headers, _ = json.Marshal(in.Headers)
	}
	var stop datatypes.JSON
	if in.StopCondition != nil {
		stop, _ = json.Marshal(in.StopCondition)
	}
	return &TaskPo{
		TaskID:          in.TaskID,
		UserID:          in.UserID,
		Type:            in.Type,
		HTTPEndpoint:    in.HTTPEndpoint,
		Method:          in.Method,
		Headers:         headers,
		RequestBody:     in.RequestBody,
		IntervalSeconds: in.IntervalSeconds,
		CronExpression:  in.CronExpression,
		StartTime:       in.StartTime,
		Status:          in.Status,
		NextRunTime:     in.NextRunTime,
		StopCondition:   stop,
		CreatedAt:       in.CreatedAt,
		UpdatedAt:       in.UpdatedAt,
	}
}

func (po *TaskPo) ToDomain() *domain.Task {
	var headers map[string]string
	if len(po.Headers) > 0 {
		_ = json.Unmarshal(po.Headers, &headers)
	}
	var stop *domain.StopCondition
	if len(po.StopCondition) > 0 {
		stop = new(domain.StopCondition)
		if err := json.Unmarshal(po.StopCondition, stop); err != nil {
			stop = nil
		}
	}
	return &domain.Task{
		TaskID:          po.TaskID,
		UserID:          po.UserID,
		Type:            po.Type,
		HTTPEndpoint:    po.HTTPEndpoint,
		Method:          po.Method,
		Headers:         headers,
		RequestBody:     po.RequestBody,
		IntervalSeconds: po.IntervalSeconds,
		CronExpression:  po.CronExpression,
		StartTime:       po.StartTime,
		Status:          po.Status,
		NextRunTime:     po.NextRunTime,
		StopCondition:   stop,
		CreatedAt:       po.CreatedAt,
		UpdatedAt:       po.UpdatedAt,
	}
}

func (po *TaskAssignmentPo) FromDomain(in *domain.TaskAssignment) *TaskAssignmentPo {
	return &TaskAssignmentPo{
		Mode: commonrepo.Mode{
			ID:        in.ID,
			CreatedAt: in.CreatedAt,
			UpdatedAt: in.UpdatedAt,
		},
		TaskID:     in.TaskID,
		InstanceID: in.InstanceID,
	}
}

func (po *TaskAssignmentPo) ToDomain() *domain.TaskAssignment {
	return &domain.TaskAssignment{
		ID:         po.ID,
		TaskID:     po.TaskID,
		InstanceID: po.InstanceID,
		CreatedAt:  po.CreatedAt,
		UpdatedAt:  po.UpdatedAt,
	}
}
