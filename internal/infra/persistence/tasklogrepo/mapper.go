package tasklogrepo

import (
	domain "github.com/timerd/scheduler/internal/biz/tasklog"
)

func (po *TaskLogPo) FromDomain(in *domain.TaskLog) *TaskLogPo {
	return &TaskLogPo{
		LogID:        in.LogID,
		TaskID:       in.TaskID,
		UserID:       in.UserID,
		HTTPStatus:   in.HTTPStatus,
		ResponseBody: in.ResponseBody,
		ElapsedMs:    in.ElapsedMs,
		CreatedAt:    in.CreatedAt,
	}
}

func (po *TaskLogPo) ToDomain() *domain.TaskLog {
	return &domain.TaskLog{
		LogID:        po.LogID,
		TaskID:       po.TaskID,
		UserID:       po.UserID,
		HTTPStatus:   po.HTTPStatus,
		ResponseBody: po.ResponseBody,
		ElapsedMs:    po.ElapsedMs,
		CreatedAt:    po.CreatedAt,
	}
}
