package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionsPurge deletes expired session records.
	TaskSessionsPurge = "auth:sessions:purge"
)

// SessionPurgePayload configures a purge run.
type SessionPurgePayload struct {
	// GraceSeconds keeps sessions that expired less than this long ago.
	GraceSeconds int `json:"grace_seconds"`
}

// Grace returns the grace period as a duration.
func (p SessionPurgePayload) Grace() time.Duration {
	if p.GraceSeconds <= 0 {
		return 0
	}
	return time.Duration(p.GraceSeconds) * time.Second
}

// NewSessionPurgeTask constructs an Asynq task.
func NewSessionPurgeTask(grace time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(SessionPurgePayload{GraceSeconds: int(grace / time.Second)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionsPurge, data), nil
}
