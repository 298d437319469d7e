package scheduler

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timerd/scheduler/internal/biz/task"
	"github.com/timerd/scheduler/internal/biz/tasklog"
	"github.com/timerd/scheduler/internal/schedule"
	"github.com/timerd/scheduler/pkg/config"
	"go.uber.org/zap"
)

const taskLockPrefix = "timer:task:"

// Runner executes dispatched tasks on a bounded worker pool. Every
// status transition it writes is a conditional update; a zero row count
// means another process (or a cancel) got there first and the write is
// silently dropped.
type Runner struct {
	cfg        config.ExecutorConfig
	limiter    *RateLimiter
	locker     Locker
	calc       *schedule.Calculator
	taskRepo   task.Repo
	logRepo    tasklog.Repo
	httpClient *http.Client
	logger     *zap.Logger

	maxWorkers int
	taskCh     chan *task.Task
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

func NewRunner(
	cfg config.Config,
	limiter *RateLimiter,
	locker Locker,
	calc *schedule.Calculator,
	taskRepo task.Repo,
	logRepo tasklog.Repo,
	logger *zap.Logger,
) *Runner {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.Executor.ConnectTimeout,
		}).DialContext,
		MaxIdleConns:        cfg.Executor.HTTPPoolSize,
		MaxIdleConnsPerHost: cfg.Executor.HTTPPoolSize,
		IdleConnTimeout:     5 * time.Minute,
	}
	return &Runner{
		cfg:     cfg.Executor,
		limiter: limiter,
		locker:  locker,
		calc:    calc,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Executor.RequestTimeout,
		},
		taskRepo:   taskRepo,
		logRepo:    logRepo,
		logger:     logger,
		maxWorkers: cfg.Scheduler.MaxWorkers,
		taskCh:     make(chan *task.Task, cfg.Scheduler.MaxWorkers*2),
		stopCh:     make(chan struct{}),
	}
}

func (r *Runner) Start() {
	for i := 0; i < r.maxWorkers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.logger.Info("runner started", zap.Int("workers", r.maxWorkers))
}

func (r *Runner) Stop() {
	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("runner stopped")
}

// Submit hands a due task to the pool without blocking. A full queue
// drops the dispatch; the task's next_run_time is untouched so the next
// scan cycle picks it up again.
func (r *Runner) Submit(t *task.Task) {
	select {
	case r.taskCh <- t:
		r.logger.Debug("task submitted", zap.String("task_id", t.TaskID))
	default:
		r.logger.Warn("runner queue full, deferring task to next cycle",
			zap.String("task_id", t.TaskID))
	}
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("worker started", zap.Int("worker_id", id))
	for {
		select {
		case t := <-r.taskCh:
			r.Execute(context.Background(), t)
		case <-r.stopCh:
			r.logger.Debug("worker stopped", zap.Int("worker_id", id))
			return
		}
	}
}

// Execute runs the full engine pipeline for one dispatched task: rate
// check, claim, HTTP call with retries, log, stop-condition evaluation
// and reschedule.
func (r *Runner) Execute(ctx context.Context, t *task.Task) {
	if !r.limiter.Allow() {
		r.logger.Debug("task rate limited, deferring to next cycle",
			zap.String("task_id", t.TaskID))
		return
	}

	lockKey := taskLockPrefix + t.TaskID
	locked, err := r.locker.TryLock(ctx, lockKey, r.cfg.RequestTimeout)
	if err != nil {
		// Advisory only; the claim below is the real guard.
		r.logger.Warn("task lock unavailable, relying on status CAS",
			zap.String("task_id", t.TaskID),
			zap.Error(err))
	} else if !locked {
		r.logger.Debug("task locked by another runner",
			zap.String("task_id", t.TaskID))
		return
	} else {
		defer func() {
			if err := r.locker.Unlock(ctx, lockKey); err != nil {
				r.logger.Warn("failed to release task lock",
					zap.String("task_id", t.TaskID),
					zap.Error(err))
			}
		}()
	}

	rows, err := r.taskRepo.ClaimDue(ctx, t.TaskID, time.Now())
	if err != nil {
		r.logger.Error("failed to claim task",
			zap.String("task_id", t.TaskID),
			zap.Error(err))
		return
	}
	if rows == 0 {
		r.logger.Debug("task already claimed",
			zap.String("task_id", t.TaskID))
		return
	}

	r.logger.Info("executing task",
		zap.String("task_id", t.TaskID),
		zap.String("endpoint", t.HTTPEndpoint))

	var lastErr error
	executed := false
	for attempt := 0; attempt <= r.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			r.logger.Info("retrying task execution",
				zap.String("task_id", t.TaskID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))
			time.Sleep(backoff)
		}

		status, body, elapsed, err := r.call(ctx, t)
		if err != nil {
			lastErr = err
			r.appendLog(ctx, t, http.StatusInternalServerError,
				fmt.Sprintf("execution error: %v", err), elapsed)
			continue
		}

		// A delivered response is a logged outcome, 2xx or not.
		r.appendLog(ctx, t, status, body, elapsed)
		executed = true
		break
	}

	if !executed {
		r.logger.Error("task failed after retries",
			zap.String("task_id", t.TaskID),
			zap.Int("attempts", r.cfg.RetryCount+1),
			zap.Error(lastErr))
		r.finalize(ctx, t, task.TaskStatusFailed, nil)
		return
	}

	if r.stopConditionMet(ctx, t) {
		r.logger.Info("stop condition reached, completing task",
			zap.String("task_id", t.TaskID))
		r.finalize(ctx, t, task.TaskStatusCompleted, nil)
		return
	}

	r.reschedule(ctx, t)
}

func (r *Runner) call(ctx context.Context, t *task.Task) (status int, body string, elapsed time.Duration, err error) {
	method := strings.ToUpper(t.Method)
	if method == "" {
		method = http.MethodGet
	}

	var reqBody io.Reader
	if t.RequestBody != "" && method != http.MethodGet {
		reqBody = strings.NewReader(t.RequestBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.HTTPEndpoint, reqBody)
	if err != nil {
		return 0, "", 0, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	if reqBody != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	elapsed = time.Since(start)
	if err != nil {
		return 0, "", elapsed, fmt.Errorf("failed to call endpoint: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", time.Since(start), fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, string(data), time.Since(start), nil
}

func (r *Runner) appendLog(ctx context.Context, t *task.Task, status int, body string, elapsed time.Duration) {
	entry := &tasklog.TaskLog{
		LogID:        uuid.NewString(),
		TaskID:       t.TaskID,
		UserID:       t.UserID,
		HTTPStatus:   status,
		ResponseBody: body,
		ElapsedMs:    int(elapsed.Milliseconds()),
	}
	if err := r.logRepo.Create(ctx, entry); err != nil {
		r.logger.Error("failed to append task log",
			zap.String("task_id", t.TaskID),
			zap.Error(err))
	}
}

func (r *Runner) stopConditionMet(ctx context.Context, t *task.Task) bool {
	if t.StopCondition == nil || t.StopCondition.MaxCount <= 0 {
		return false
	}
	count, err := r.logRepo.CountByTask(ctx, t.TaskID)
	if err != nil {
		r.logger.Error("failed to count task logs for stop condition",
			zap.String("task_id", t.TaskID),
			zap.Error(err))
		return false
	}
	return count >= int64(t.StopCondition.MaxCount)
}

// reschedule arms the next run. A once task completes after its single
// shot; interval and cron tasks stay running with a fresh next_run_time
// computed at completion, so interval periods never accumulate drift.
func (r *Runner) reschedule(ctx context.Context, t *task.Task) {
	if t.Type == task.TaskTypeOnce {
		r.finalize(ctx, t, task.TaskStatusCompleted, nil)
		return
	}

	next, err := r.calc.Next(t, time.Now())
	if err != nil {
		r.logger.Error("failed to compute next run time",
			zap.String("task_id", t.TaskID),
			zap.Error(err))
		r.finalize(ctx, t, task.TaskStatusFailed, nil)
		return
	}
	r.finalize(ctx, t, task.TaskStatusRunning, &next)
}

// finalize writes the post-execution status. The conditional update only
// matches while the row is still running, so a cancel that raced the
// in-flight call wins and is never overwritten.
func (r *Runner) finalize(ctx context.Context, t *task.Task, to task.TaskStatus, nextRun *time.Time) {
	rows, err := r.taskRepo.UpdateStatusFrom(ctx, t.TaskID,
		[]task.TaskStatus{task.TaskStatusRunning}, to, nextRun)
	if err != nil {
		r.logger.Error("failed to update task status",
			zap.String("task_id", t.TaskID),
			zap.String("to", string(to)),
			zap.Error(err))
		return
	}
	if rows == 0 {
		r.logger.Info("task status changed concurrently, leaving as is",
			zap.String("task_id", t.TaskID),
			zap.String("intended", string(to)))
	}
}
