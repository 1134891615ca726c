package domain

import "time"

// Task statuses. A task moves Pending → Processing → {Completed, Failed};
// there are no other transitions.
const (
	TaskPending    = "Pending"
	TaskProcessing = "Processing"
	TaskCompleted  = "Completed"
	TaskFailed     = "Failed"
)

// ProcessingTask tracks one asynchronous ingestion run. Each task is owned
// by exactly one pipeline worker for its lifetime; callers observe it only
// through the task-status query.
type ProcessingTask struct {
	TaskID           string    `json:"taskId"`
	TenantID         string    `json:"tenantId"`
	Status           string    `json:"status"`
	Progress         int       `json:"progress"` // percent, 0-100
	TotalRecords     int       `json:"totalRecords"`
	ProcessedRecords int       `json:"processedRecords"`
	ErrorMessage     string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Terminal reports whether the task has reached a final state.
func (t *ProcessingTask) Terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}
