package domain

import "time"

// TaskKind names the two job families the registry tracks.
type TaskKind string

const (
	TaskRefreshIndex  TaskKind = "refresh_index"
	TaskDownloadVideo TaskKind = "download_video"
)

// TaskState is the lifecycle position of a tracked job.
type TaskState string

const (
	TaskQueued     TaskState = "queued"
	TaskInProgress TaskState = "in_progress"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
)

// TaskSnapshot is the wire view of one tracked job, broadcast to status
// subscribers on every change.
type TaskSnapshot struct {
	ID        string    `json:"id"`
	Kind      TaskKind  `json:"task_type"`
	Title     string    `json:"title"`
	State     TaskState `json:"state"`
	Error     string    `json:"error,omitempty"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskListUpdate is one task-list broadcast frame.
type TaskListUpdate struct {
	Tasks []TaskSnapshot `json:"tasks"`
}

// TaskMetrics is the per-kind counter snapshot. The restart fields are
// fed by the registry-wide VPN restart block and therefore read the same
// under every kind.
type TaskMetrics struct {
	SuccessCount          uint64  `json:"success_count"`
	FailureCount          uint64  `json:"failure_count"`
	ConsecutiveFailures   uint64  `json:"consecutive_failures"`
	LastSuccessSecondsAgo *uint64 `json:"last_success_seconds_ago,omitempty"`
	LastFailureSecondsAgo *uint64 `json:"last_failure_seconds_ago,omitempty"`
	RestartCount          uint64  `json:"restart_count"`
	LastRestartSecondsAgo *uint64 `json:"last_restart_seconds_ago,omitempty"`
	LastRestartOutcome    *string `json:"last_restart_outcome,omitempty"`
	LastRestartError      *string `json:"last_restart_error,omitempty"`
	RestartInProgress     bool    `json:"restart_in_progress"`
}

// MetricsSnapshot is one metrics broadcast frame.
type MetricsSnapshot struct {
	Tasks      map[TaskKind]TaskMetrics `json:"tasks"`
	VPNEnabled bool                     `json:"gluetun_enabled"`
}
