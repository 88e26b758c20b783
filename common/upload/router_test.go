package upload

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediabridge/mediabridge/common/config"
	"github.com/mediabridge/mediabridge/common/events"
	"github.com/mediabridge/mediabridge/common/logger"
	"github.com/mediabridge/mediabridge/common/models"
)

func newTestRouter(threshold int64, sender Sender) *Router {
	conn := config.ConnectionConfig{
		BulkURL:        "http://unreachable.invalid",
		RequestTimeout: time.Second,
	}
	return NewRouter(testUploadConfig(threshold), conn, "client-a", sender, events.NewBus(), logger.Discard())
}

func TestRouterPickBoundary(t *testing.T) {
	r := newTestRouter(1024, &fakeSender{ok: true})

	assert.Equal(t, models.TransportChannel, r.Pick(0))
	assert.Equal(t, models.TransportChannel, r.Pick(1023))
	assert.Equal(t, models.TransportBulk, r.Pick(1024), "the threshold itself goes bulk")
	assert.Equal(t, models.TransportBulk, r.Pick(1<<30))
}

func TestRouterSubmitRunsChannelPipeline(t *testing.T) {
	sender := &fakeSender{ok: true}
	r := newTestRouter(1024, sender)

	f := NewMemoryFile("small.bin", "application/octet-stream", []byte("tiny payload"), time.Now())
	id := r.Submit(context.Background(), f)
	require.NotEmpty(t, id)

	final := waitTerminal(t, r.reg, id)
	assert.Equal(t, models.TransportChannel, final.Transport)
	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Len(t, sender.sent(), 1)
}

func TestRouterSubmitAllTracksEachFileIndependently(t *testing.T) {
	sender := &fakeSender{ok: true}
	r := newTestRouter(1024, sender)

	files := []File{
		NewMemoryFile("a.bin", "application/octet-stream", []byte("aaa"), time.Now()),
		NewMemoryFile("b.bin", "application/octet-stream", nil, time.Now()), // empty, will fail
		NewMemoryFile("c.bin", "application/octet-stream", []byte("ccc"), time.Now()),
	}

	ids := r.SubmitAll(context.Background(), files)
	require.Len(t, ids, 3)

	a := waitTerminal(t, r.reg, ids[0])
	b := waitTerminal(t, r.reg, ids[1])
	c := waitTerminal(t, r.reg, ids[2])

	assert.Equal(t, models.StatusCompleted, a.Status)
	assert.Equal(t, models.StatusError, b.Status)
	assert.Equal(t, models.StatusCompleted, c.Status)

	assert.Len(t, r.Tasks(), 3)
}

func TestRouterRetryReusesRetainedFile(t *testing.T) {
	sender := &fakeSender{ok: false}
	r := newTestRouter(1024, sender)

	f := NewMemoryFile("retry.bin", "application/octet-stream", []byte("try again"), time.Now())
	first := r.Submit(context.Background(), f)

	failed := waitTerminal(t, r.reg, first)
	require.Equal(t, models.StatusError, failed.Status)

	// connection comes back
	sender.mu.Lock()
	sender.ok = true
	sender.mu.Unlock()

	second, err := r.Retry(context.Background(), first)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	final := waitTerminal(t, r.reg, second)
	assert.Equal(t, models.StatusCompleted, final.Status)

	// the original record is untouched
	original, ok := r.Task(first)
	require.True(t, ok)
	assert.Equal(t, models.StatusError, original.Status)
}

func TestRouterRetryRejectsUnknownTask(t *testing.T) {
	r := newTestRouter(1024, &fakeSender{ok: true})

	_, err := r.Retry(context.Background(), "no-such-task")
	assert.Error(t, err)
}

func TestRouterCancelUnknownTask(t *testing.T) {
	r := newTestRouter(1024, &fakeSender{ok: true})
	assert.False(t, r.Cancel("no-such-task"))
}

func TestRegistryCheckpointIgnoresTerminalTasks(t *testing.T) {
	reg := NewRegistry(events.NewBus())

	task := &models.UploadTask{ID: "t", Status: models.StatusPending}
	reg.add(task, NewMemoryFile("t", "", []byte("x"), time.Now()), func() {})

	reg.complete("t", "blob-1")
	reg.checkpoint("t", models.StatusUploading, 50)

	final, ok := reg.Task("t")
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, "blob-1", final.BlobID)
}

func TestRegistryCancelIsIdempotentOnTerminalTasks(t *testing.T) {
	reg := NewRegistry(events.NewBus())

	task := &models.UploadTask{ID: "t", Status: models.StatusPending}
	reg.add(task, NewMemoryFile("t", "", []byte("x"), time.Now()), func() {})

	require.True(t, reg.Cancel("t"))
	assert.False(t, reg.Cancel("t"), "a cancelled task cannot be cancelled again")

	reg.fail("t", assertError{})
	final, _ := reg.Task("t")
	assert.Equal(t, models.StatusCancelled, final.Status, "terminal status is sticky")
}

type assertError struct{}

func (assertError) Error() string { return "late failure" }

func TestRegistryTaskSnapshotsAreIsolated(t *testing.T) {
	reg := NewRegistry(events.NewBus())

	task := &models.UploadTask{ID: "t", Status: models.StatusPending}
	reg.add(task, NewMemoryFile("t", "", []byte("x"), time.Now()), func() {})

	snap, ok := reg.Task("t")
	require.True(t, ok)
	snap.Status = models.StatusError
	snap.Progress = 99

	fresh, _ := reg.Task("t")
	assert.Equal(t, models.StatusPending, fresh.Status)
	assert.Equal(t, 0, fresh.Progress)
}
