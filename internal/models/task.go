package models

import "time"

// TaskStatus is the lifecycle state of an asynchronous evaluation task.
type TaskStatus string

const (
	TaskPending  TaskStatus = "pending"
	TaskStarted  TaskStatus = "started"
	TaskProgress TaskStatus = "progress"
	TaskSuccess  TaskStatus = "success"
	TaskFailure  TaskStatus = "failure"
)

// Terminal reports whether the task will never change state again.
func (s TaskStatus) Terminal() bool {
	return s == TaskSuccess || s == TaskFailure
}

// Task is a point-in-time snapshot of an evaluation run. Snapshots are
// returned by value; callers never observe intermediate mutation.
// ProgressPercentage is a whole number in [0, 100].
type Task struct {
	ID                 string           `json:"task_id"`
	Status             TaskStatus       `json:"status"`
	ProgressPercentage int              `json:"progress_percentage"`
	Message            string           `json:"message,omitempty"`
	Result             *AggregateResult `json:"result,omitempty"`
	Error              string           `json:"error,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}
