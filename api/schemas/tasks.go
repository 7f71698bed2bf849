package schemas

import "time"

// TaskOptions are the recognized per-task options. Unset fields fall back to configuration.
type TaskOptions struct {
	ProductCount int      `json:"productCount,omitempty"`
	// MultiProduct writes one article covering every fetched product instead of the top one.
	MultiProduct bool     `json:"multiProduct,omitempty"`
	PublishNow   *bool    `json:"publishNow,omitempty"`
	Hashtags     []string `json:"hashtags,omitempty"`
	IsPaid       bool     `json:"isPaid,omitempty"`
	Price        int      `json:"price,omitempty"`
	Theme        string   `json:"theme,omitempty"`
}

// TaskRequest is the inbound task descriptor.
type TaskRequest struct {
	Task    TaskType    `json:"task"`
	Options TaskOptions `json:"options"`
}

// TaskStatus is the outcome label of a task run.
type TaskStatus string

const (
	StatusSuccess TaskStatus = "success"
	StatusSkipped TaskStatus = "skipped"
	StatusFailed  TaskStatus = "failed"
	StatusHealthy TaskStatus = "healthy"
	StatusPartial TaskStatus = "partial"
)

// TaskResult is returned to the caller of a task.
type TaskResult struct {
	RunID       string             `json:"runId"`
	Task        TaskType           `json:"task"`
	Status      TaskStatus         `json:"status"`
	Message     string             `json:"message,omitempty"`
	Article     *Article           `json:"article,omitempty"`
	Publication *PublicationResult `json:"publication,omitempty"`
	Limits      *PostingLimitCheck `json:"limits,omitempty"`
	Checks      map[string]bool    `json:"checks,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// TaskRun is a persisted record of one task execution.
type TaskRun struct {
	ID         string     `json:"id"`
	Task       TaskType   `json:"task"`
	Status     TaskStatus `json:"status"`
	Title      string     `json:"title,omitempty"`
	URL        string     `json:"url,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
}
