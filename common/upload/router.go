// Package upload routes submitted files to one of two transports by
// size and tracks every upload as an independent, cancellable task.
package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mediabridge/mediabridge/common/config"
	"github.com/mediabridge/mediabridge/common/events"
	"github.com/mediabridge/mediabridge/common/logger"
	"github.com/mediabridge/mediabridge/common/models"
)

// Router assigns each submitted file to a pipeline. The decision is
// made once, at submission time, and never revisited for that task.
type Router struct {
	cfg     config.UploadConfig
	reg     *Registry
	channel *ChannelPipeline
	bulk    *BulkPipeline
	log     *logger.Logger
}

// NewRouter wires both pipelines behind one submission point
func NewRouter(cfg config.UploadConfig, conn config.ConnectionConfig, clientID string, sender Sender, bus *events.Bus, log *logger.Logger) *Router {
	reg := NewRegistry(bus)
	return &Router{
		cfg:     cfg,
		reg:     reg,
		channel: NewChannelPipeline(cfg, clientID, sender, reg, log),
		bulk:    NewBulkPipeline(cfg, conn.BulkURL, clientID, conn.RequestTimeout, reg, log),
		log:     log.WithComponent("router"),
	}
}

// Pick returns the transport for a file of the given size: below the
// threshold goes over the channel, at or above it goes bulk.
func (r *Router) Pick(size int64) models.Transport {
	if size < r.cfg.ChannelThreshold {
		return models.TransportChannel
	}
	return models.TransportBulk
}

// Submit registers a task for f and starts its pipeline run in the
// background. It returns the task id immediately.
func (r *Router) Submit(ctx context.Context, f File) string {
	transport := r.Pick(f.Size())
	now := time.Now().UTC()
	task := &models.UploadTask{
		ID:        uuid.NewString(),
		FileName:  f.Name(),
		Size:      f.Size(),
		Transport: transport,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.reg.add(task, f, cancel)
	r.log.Info("task submitted", "task_id", task.ID, "file", f.Name(),
		"size", f.Size(), "transport", transport)

	go r.run(runCtx, task.ID, transport, f)
	return task.ID
}

// SubmitAll submits each file independently and returns one task id
// per file, in order.
func (r *Router) SubmitAll(ctx context.Context, files []File) []string {
	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, r.Submit(ctx, f))
	}
	return ids
}

// Retry starts a fresh run of the same pipeline over the same file and
// returns the new task id. The original task record is left untouched.
func (r *Router) Retry(ctx context.Context, taskID string) (string, error) {
	task, ok := r.reg.Task(taskID)
	if !ok {
		return "", fmt.Errorf("unknown task: %s", taskID)
	}
	if !task.Status.Terminal() {
		return "", fmt.Errorf("task %s is still running", taskID)
	}

	f, ok := r.reg.file(taskID)
	if !ok {
		return "", fmt.Errorf("no file retained for task %s", taskID)
	}

	r.log.Info("retrying task", "task_id", taskID, "transport", task.Transport)
	return r.Submit(ctx, f), nil
}

// Task returns a snapshot of one task
func (r *Router) Task(id string) (*models.UploadTask, bool) {
	return r.reg.Task(id)
}

// Tasks returns snapshots of all tasks
func (r *Router) Tasks() []*models.UploadTask {
	return r.reg.Tasks()
}

// Cancel cancels one non-terminal task
func (r *Router) Cancel(id string) bool {
	return r.reg.Cancel(id)
}

// CancelAll cancels every non-terminal task
func (r *Router) CancelAll() {
	r.reg.CancelAll()
}

func (r *Router) run(ctx context.Context, taskID string, transport models.Transport, f File) {
	switch transport {
	case models.TransportChannel:
		r.channel.Run(ctx, taskID, f)
	case models.TransportBulk:
		r.bulk.Run(ctx, taskID, f)
	}
}
