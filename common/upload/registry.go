package upload

import (
	"context"
	"sync"
	"time"

	"github.com/mediabridge/mediabridge/common/events"
	"github.com/mediabridge/mediabridge/common/models"
)

// Registry is the task-id-keyed store of upload state. Each task runs
// independently; keying all mutable state by task id is what lets
// concurrent uploads proceed without corrupting each other.
type Registry struct {
	mu      sync.RWMutex
	tasks   map[string]*models.UploadTask
	cancels map[string]context.CancelFunc
	files   map[string]File // retained so a retry can reuse the file
	bus     *events.Bus
}

// NewRegistry creates an empty task registry
func NewRegistry(bus *events.Bus) *Registry {
	return &Registry{
		tasks:   make(map[string]*models.UploadTask),
		cancels: make(map[string]context.CancelFunc),
		files:   make(map[string]File),
		bus:     bus,
	}
}

func (r *Registry) add(task *models.UploadTask, f File, cancel context.CancelFunc) {
	r.mu.Lock()
	r.tasks[task.ID] = task
	r.cancels[task.ID] = cancel
	r.files[task.ID] = f
	snapshot := task.Clone()
	r.mu.Unlock()

	r.bus.Publish(TaskUpdated{Task: snapshot})
}

// Task returns a snapshot of the task with the given id
func (r *Registry) Task(id string) (*models.UploadTask, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, false
	}
	return task.Clone(), true
}

// Tasks returns snapshots of every known task
func (r *Registry) Tasks() []*models.UploadTask {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.UploadTask, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, task.Clone())
	}
	return out
}

func (r *Registry) file(id string) (File, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.files[id]
	return f, ok
}

// update applies fn to the task under lock and publishes a snapshot
func (r *Registry) update(id string, fn func(*models.UploadTask)) {
	r.mu.Lock()
	task, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	fn(task)
	task.UpdatedAt = time.Now().UTC()
	snapshot := task.Clone()
	r.mu.Unlock()

	r.bus.Publish(TaskUpdated{Task: snapshot})
}

// checkpoint moves a non-terminal task to status with progress.
// Progress never decreases within a run.
func (r *Registry) checkpoint(id string, status models.TaskStatus, progress int) {
	r.update(id, func(task *models.UploadTask) {
		if task.Status.Terminal() {
			return
		}
		task.Status = status
		if progress > task.Progress {
			task.Progress = progress
		}
	})
}

// fail moves a non-terminal task to the error state
func (r *Registry) fail(id string, err error) {
	r.update(id, func(task *models.UploadTask) {
		if task.Status.Terminal() {
			return
		}
		task.Status = models.StatusError
		task.Error = err.Error()
	})
	r.releaseCancel(id)
}

// complete marks a task finished with the blob id it produced
func (r *Registry) complete(id, blobID string) {
	r.update(id, func(task *models.UploadTask) {
		if task.Status.Terminal() {
			return
		}
		task.Status = models.StatusCompleted
		task.Progress = 100
		task.BlobID = blobID
	})
	r.releaseCancel(id)
}

// Cancel cancels a non-terminal task. The in-flight request aborts,
// but any server-side effect already committed is not retracted.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	task, ok := r.tasks[id]
	if !ok || task.Status.Terminal() {
		r.mu.Unlock()
		return false
	}
	cancel := r.cancels[id]
	delete(r.cancels, id)
	task.Status = models.StatusCancelled
	task.UpdatedAt = time.Now().UTC()
	snapshot := task.Clone()
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.bus.Publish(TaskUpdated{Task: snapshot})
	return true
}

// CancelAll cancels every non-terminal task
func (r *Registry) CancelAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Cancel(id)
	}
}

func (r *Registry) releaseCancel(id string) {
	r.mu.Lock()
	if cancel, ok := r.cancels[id]; ok {
		delete(r.cancels, id)
		r.mu.Unlock()
		cancel()
		return
	}
	r.mu.Unlock()
}
