package tasklog

import "time"

// TaskLog is an immutable record of one execution attempt. Rows are
// append-only; count-based stop conditions are evaluated against them.
type TaskLog struct {
	LogID        string
	TaskID       string
	UserID       int
	HTTPStatus   int
	ResponseBody string
	ElapsedMs    int
	CreatedAt    time.Time
}
