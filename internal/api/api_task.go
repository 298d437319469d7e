package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"github.com/timerd/scheduler/internal/biz/task"
	"github.com/timerd/scheduler/internal/biz/tasklog"
	"github.com/timerd/scheduler/internal/service"
)

type CreateTaskReq struct {
	UserID          int               `json:"user_id"`
	Type            string            `json:"type" binding:"required"`
	HTTPEndpoint    string            `json:"http_endpoint" binding:"required"`
	Method          string            `json:"method"`
	Headers         map[string]string `json:"headers"`
	RequestBody     string            `json:"request_body"`
	IntervalSeconds int               `json:"interval_seconds"`
	CronExpression  string            `json:"cron_expression"`
	StartTime       *time.Time        `json:"start_time"`
	StopCondition   *StopConditionReq `json:"stop_condition"`
}

type StopConditionReq struct {
	MaxCount int `json:"maxCount"`
}

type TaskResp struct {
	TaskID          string            `json:"task_id"`
	UserID          int               `json:"user_id"`
	Type            string            `json:"type"`
	HTTPEndpoint    string            `json:"http_endpoint"`
	Method          string            `json:"method"`
	Headers         map[string]string `json:"headers,omitempty"`
	RequestBody     string            `json:"request_body,omitempty"`
	IntervalSeconds int               `json:"interval_seconds,omitempty"`
	CronExpression  string            `json:"cron_expression,omitempty"`
	StartTime       *time.Time        `json:"start_time,omitempty"`
	Status          string            `json:"status"`
	NextRunTime     *time.Time        `json:"next_run_time,omitempty"`
	StopCondition   *StopConditionReq `json:"stop_condition,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type TaskDetailResp struct {
	Task      TaskResp     `json:"task"`
	LatestLog *TaskLogResp `json:"latest_log,omitempty"`
}

type TaskLogResp struct {
	LogID        string    `json:"log_id"`
	TaskID       string    `json:"task_id"`
	HTTPStatus   int       `json:"http_status"`
	ResponseBody string    `json:"response_body,omitempty"`
	ElapsedMs    int       `json:"elapsed_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

type TaskAPI struct {
	svc service.ITaskService
}

func NewTaskAPI(svc service.ITaskService) *TaskAPI {
	return &TaskAPI{svc: svc}
}

func (a *TaskAPI) BindAll(r *gin.Engine) {
	g := r.Group("/api/v1/tasks")
	g.POST("", a.Create)
	g.GET("", a.List)
	g.GET("/running-count", a.RunningCount)
	g.GET("/:id", a.Get)
	g.POST("/:id/cancel", a.Cancel)
	g.DELETE("/:id", a.Delete)
	g.GET("/:id/logs", a.Logs)
}

func (a *TaskAPI) Create(c *gin.Context) {
	var req CreateTaskReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := &service.CreateTaskInput{
		UserID:          req.UserID,
		Type:            task.TaskType(req.Type),
		HTTPEndpoint:    req.HTTPEndpoint,
		Method:          req.Method,
		Headers:         req.Headers,
		RequestBody:     req.RequestBody,
		IntervalSeconds: req.IntervalSeconds,
		CronExpression:  req.CronExpression,
		StartTime:       req.StartTime,
	}
	if req.StopCondition != nil {
		input.StopCondition = &task.StopCondition{MaxCount: req.StopCondition.MaxCount}
	}

	t, err := a.svc.Create(c.Request.Context(), input)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, toTaskResp(t))
}

func (a *TaskAPI) Get(c *gin.Context) {
	detail, err := a.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	resp := TaskDetailResp{Task: toTaskResp(detail.Task)}
	if detail.LatestLog != nil {
		log := toLogResp(detail.LatestLog)
		resp.LatestLog = &log
	}
	c.JSON(http.StatusOK, resp)
}

func (a *TaskAPI) Cancel(c *gin.Context) {
	if err := a.svc.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (a *TaskAPI) Delete(c *gin.Context) {
	if err := a.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (a *TaskAPI) List(c *gin.Context) {
	userID := cast.ToInt(c.Query("user_id"))
	page := cast.ToInt(c.DefaultQuery("page", "1"))
	size := cast.ToInt(c.DefaultQuery("size", "20"))

	tasks, err := a.svc.List(c.Request.Context(), userID, c.Query("status"), page, size)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(tasks, func(t *task.Task, _ int) TaskResp {
		return toTaskResp(t)
	}))
}

func (a *TaskAPI) RunningCount(c *gin.Context) {
	userID := cast.ToInt(c.Query("user_id"))
	count, err := a.svc.RunningCount(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (a *TaskAPI) Logs(c *gin.Context) {
	page := cast.ToInt(c.DefaultQuery("page", "1"))
	size := cast.ToInt(c.DefaultQuery("size", "20"))

	logs, err := a.svc.Logs(c.Request.Context(), c.Param("id"), page, size)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(logs, func(l *tasklog.TaskLog, _ int) TaskLogResp {
		return toLogResp(l)
	}))
}

func toTaskResp(t *task.Task) TaskResp {
	resp := TaskResp{
		TaskID:          t.TaskID,
		UserID:          t.UserID,
		Type:            string(t.Type),
		HTTPEndpoint:    t.HTTPEndpoint,
		Method:          t.Method,
		Headers:         t.Headers,
		RequestBody:     t.RequestBody,
		IntervalSeconds: t.IntervalSeconds,
		CronExpression:  t.CronExpression,
		StartTime:       t.StartTime,
		Status:          string(t.Status),
		NextRunTime:     t.NextRunTime,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
	if t.StopCondition != nil {
		resp.StopCondition = &StopConditionReq{MaxCount: t.StopCondition.MaxCount}
	}
	return resp
}

func toLogResp(l *tasklog.TaskLog) TaskLogResp {
	return TaskLogResp{
		LogID:        l.LogID,
		TaskID:       l.TaskID,
		HTTPStatus:   l.HTTPStatus,
		ResponseBody: l.ResponseBody,
		ElapsedMs:    l.ElapsedMs,
		CreatedAt:    l.CreatedAt,
	}
}
