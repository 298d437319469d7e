package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/timerd/scheduler/internal/biz/task"
)

// ErrInvalidSchedule is returned for unparsable cron expressions,
// non-positive intervals and missing schedule fields. It surfaces at
// task-creation time; no task is persisted when it fires.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Calculator computes next execution timestamps. All computation happens
// in one configured time zone so distributed instances agree on calendar
// rules no matter where they run.
type Calculator struct {
	parser cron.Parser
	loc    *time.Location
}

func NewCalculator(timezone string) (*Calculator, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}
	return &Calculator{
		// Accepts both 5-field and seconds-prefixed 6-field expressions.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		loc:    loc,
	}, nil
}

func (c *Calculator) Location() *time.Location {
	return c.loc
}

// Validate checks the schedule parameters of a task specification without
// computing anything.
func (c *Calculator) Validate(typ task.TaskType, intervalSeconds int, cronExpr string) error {
	switch typ {
	case task.TaskTypeOnce:
		return nil
	case task.TaskTypeInterval:
		if intervalSeconds < 1 {
			return fmt.Errorf("%w: interval must be at least 1 second", ErrInvalidSchedule)
		}
		return nil
	case task.TaskTypeCron:
		if cronExpr == "" {
			return fmt.Errorf("%w: cron expression is required", ErrInvalidSchedule)
		}
		if _, err := c.parser.Parse(cronExpr); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown task type %q", ErrInvalidSchedule, typ)
	}
}

// Next computes the run time following ref for an already-executed task.
// For once tasks the caller must not invoke this again after the first
// execution; it only ever arms the single shot.
func (c *Calculator) Next(t *task.Task, ref time.Time) (time.Time, error) {
	ref = ref.In(c.loc)
	switch t.Type {
	case task.TaskTypeOnce:
		if t.StartTime != nil && t.StartTime.After(ref) {
			return t.StartTime.In(c.loc), nil
		}
		return ref, nil
	case task.TaskTypeInterval:
		if t.IntervalSeconds < 1 {
			return time.Time{}, fmt.Errorf("%w: interval must be at least 1 second", ErrInvalidSchedule)
		}
		return ref.Add(time.Duration(t.IntervalSeconds) * time.Second), nil
	case task.TaskTypeCron:
		return c.nextCron(t.CronExpression, ref)
	default:
		return time.Time{}, fmt.Errorf("%w: unknown task type %q", ErrInvalidSchedule, t.Type)
	}
}

// Initial computes the first next-run time for a freshly created task.
// For once and interval tasks this is max(startTime, now); for cron tasks
// it is the first occurrence strictly after now.
func (c *Calculator) Initial(t *task.Task, now time.Time) (time.Time, error) {
	now = now.In(c.loc)
	start := now
	if t.StartTime != nil && t.StartTime.After(now) {
		start = t.StartTime.In(c.loc)
	}

	switch t.Type {
	case task.TaskTypeOnce:
		return start, nil
	case task.TaskTypeInterval:
		if t.IntervalSeconds < 1 {
			return time.Time{}, fmt.Errorf("%w: interval must be at least 1 second", ErrInvalidSchedule)
		}
		return start, nil
	case task.TaskTypeCron:
		return c.nextCron(t.CronExpression, now)
	default:
		return time.Time{}, fmt.Errorf("%w: unknown task type %q", ErrInvalidSchedule, t.Type)
	}
}

func (c *Calculator) nextCron(expr string, ref time.Time) (time.Time, error) {
	if expr == "" {
		return time.Time{}, fmt.Errorf("%w: cron expression is required", ErrInvalidSchedule)
	}
	sched, err := c.parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	next := sched.Next(ref)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: no future occurrence for %q", ErrInvalidSchedule, expr)
	}
	return next, nil
}
