package upload

import "github.com/mediabridge/mediabridge/common/models"

// TaskUpdated fires on every task state or progress change. The task
// is a snapshot; listeners must not mutate it.
type TaskUpdated struct {
	Task *models.UploadTask
}

func (TaskUpdated) EventName() string { return "upload.task_updated" }
