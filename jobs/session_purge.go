package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/libris/libris/internal/jobs"
)

// SessionPurger removes session records that expired before a cutoff.
type SessionPurger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// SessionPurgeJob deletes expired sessions.
type SessionPurgeJob struct {
	Purger  SessionPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSessionPurgeJob initialises the purge handler.
func NewSessionPurgeJob(purger SessionPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionPurgeJob {
	return &SessionPurgeJob{
		Purger:  purger,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one purge run.
func (j *SessionPurgeJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Purger == nil {
		return errors.New("session purge: handler not configured")
	}
	var payload SessionPurgePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	start := j.now()
	tracker := j.Metrics.Track(TaskSessionsPurge)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if id, ok := asynq.GetTaskID(ctx); ok {
		logger = logger.With(slog.String("task_id", id))
	}
	cutoff := start.Add(-payload.Grace())
	purged, err := j.Purger.PurgeExpired(ctx, cutoff)
	if err != nil {
		logger.Error("session purge failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddRows(TaskSessionsPurge, purged)
	logger.Info("purged expired sessions",
		slog.Int64("sessions", purged),
		slog.Time("cutoff", cutoff),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return nil
}

func (j *SessionPurgeJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *SessionPurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
