package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskMediaPurge deletes stored objects no product references any more.
	TaskMediaPurge = "media:purge"
	// TaskMediaSweep removes old product images that nothing points at.
	TaskMediaSweep = "media:sweep"
)

// MediaPurgePayload lists the object keys to delete.
type MediaPurgePayload struct {
	Keys []string `json:"keys"`
}

// NewMediaPurgeTask constructs an Asynq task.
func NewMediaPurgeTask(payload MediaPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMediaPurge, data, asynq.MaxRetry(5)), nil
}

// Purger deletes objects from the media bucket.
type Purger interface {
	Purge(ctx context.Context, keys []string) error
}

// Sweeper removes unreferenced media and reports how many objects went.
type Sweeper interface {
	SweepOrphans(ctx context.Context) (int, error)
}

// Observer is told the outcome of every processed task.
type Observer interface {
	ObserveJob(task string, err error)
}

// HandleMediaPurge returns the handler for TaskMediaPurge. Malformed
// payloads are not retried.
func HandleMediaPurge(purger Purger, logger *slog.Logger, observer Observer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload MediaPurgePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			observe(observer, TaskMediaPurge, err)
			return asynq.SkipRetry
		}
		if len(payload.Keys) == 0 {
			return nil
		}
		err := purger.Purge(ctx, payload.Keys)
		observe(observer, TaskMediaPurge, err)
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("media purged", slog.Int("objects", len(payload.Keys)))
		}
		return nil
	}
}

// HandleMediaSweep returns the handler for TaskMediaSweep.
func HandleMediaSweep(sweeper Sweeper, logger *slog.Logger, observer Observer) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		removed, err := sweeper.SweepOrphans(ctx)
		observe(observer, TaskMediaSweep, err)
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("media sweep executed", slog.String("job", TaskMediaSweep), slog.Int("removed", removed))
		}
		return nil
	}
}

func observe(observer Observer, task string, err error) {
	if observer != nil {
		observer.ObserveJob(task, err)
	}
}
