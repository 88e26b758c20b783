package upload

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediabridge/mediabridge/common/config"
	"github.com/mediabridge/mediabridge/common/events"
	"github.com/mediabridge/mediabridge/common/logger"
	"github.com/mediabridge/mediabridge/common/models"
	"github.com/mediabridge/mediabridge/common/protocol"
)

// fakeSender records every frame it is asked to transmit
type fakeSender struct {
	mu     sync.Mutex
	frames []protocol.ClientFrame
	ok     bool
}

func (s *fakeSender) Send(f protocol.ClientFrame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return s.ok
}

func (s *fakeSender) sent() []protocol.ClientFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.ClientFrame(nil), s.frames...)
}

func testUploadConfig(threshold int64) config.UploadConfig {
	return config.UploadConfig{
		ChannelThreshold: threshold,
		MaxFileSize:      threshold * 1024,
	}
}

// waitTerminal polls the registry until the task reaches a terminal
// status and returns the final snapshot
func waitTerminal(t *testing.T, reg *Registry, taskID string) *models.UploadTask {
	t.Helper()

	var task *models.UploadTask
	require.Eventually(t, func() bool {
		snapshot, ok := reg.Task(taskID)
		if !ok || !snapshot.Status.Terminal() {
			return false
		}
		task = snapshot
		return true
	}, 5*time.Second, 10*time.Millisecond, "task %s never reached a terminal status", taskID)
	return task
}

func startTask(reg *Registry, name string, size int) (string, File) {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	f := NewMemoryFile(name, "application/octet-stream", data, time.Now())
	task := &models.UploadTask{
		ID:        "task-" + name,
		FileName:  name,
		Size:      f.Size(),
		Transport: models.TransportChannel,
		Status:    models.StatusPending,
	}
	reg.add(task, f, func() {})
	return task.ID, f
}

func TestChannelPipelineUploadsSmallFile(t *testing.T) {
	bus := events.NewBus()
	reg := NewRegistry(bus)
	sender := &fakeSender{ok: true}
	p := NewChannelPipeline(testUploadConfig(10*1024), "client-a", sender, reg, logger.Discard())

	data := []byte("a small png, allegedly")
	f := NewMemoryFile("photo.png", "image/png", data, time.Now())
	task := &models.UploadTask{ID: "t1", FileName: f.Name(), Size: f.Size(),
		Transport: models.TransportChannel, Status: models.StatusPending}
	reg.add(task, f, func() {})

	p.Run(context.Background(), "t1", f)

	final := waitTerminal(t, reg, "t1")
	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	require.NotEmpty(t, final.BlobID)

	frames := sender.sent()
	require.Len(t, frames, 1)
	up, ok := frames[0].(*protocol.UploadBlob)
	require.True(t, ok)

	assert.Equal(t, final.BlobID, up.Blob.ID)
	assert.Equal(t, data, up.Blob.Data)
	assert.Equal(t, models.HashBytes(data), up.Blob.SHA256)
	assert.Equal(t, int64(len(data)), up.Blob.Size)
	assert.Equal(t, "image/png", up.Blob.Mime)
	assert.Equal(t, "client-a", up.Blob.SourceClientID)

	// the frame it produced is valid on the wire
	_, err := protocol.EncodeClient(up)
	assert.NoError(t, err)
}

func TestChannelPipelineRejectsEmptyFile(t *testing.T) {
	reg := NewRegistry(events.NewBus())
	sender := &fakeSender{ok: true}
	p := NewChannelPipeline(testUploadConfig(10*1024), "client-a", sender, reg, logger.Discard())

	id, f := startTask(reg, "empty.bin", 0)
	p.Run(context.Background(), id, f)

	final := waitTerminal(t, reg, id)
	assert.Equal(t, models.StatusError, final.Status)
	assert.Contains(t, final.Error, string(models.ErrKindEmptyFile))
	assert.Empty(t, sender.sent(), "rejection happens before any transmission")
}

func TestChannelPipelineRejectsOversizeFile(t *testing.T) {
	reg := NewRegistry(events.NewBus())
	sender := &fakeSender{ok: true}
	p := NewChannelPipeline(testUploadConfig(64), "client-a", sender, reg, logger.Discard())

	id, f := startTask(reg, "big.bin", 64)
	p.Run(context.Background(), id, f)

	final := waitTerminal(t, reg, id)
	assert.Equal(t, models.StatusError, final.Status)
	assert.Contains(t, final.Error, string(models.ErrKindTooLarge))
	assert.Empty(t, sender.sent())
}

func TestChannelPipelineEnforcesMimeAllowList(t *testing.T) {
	cfg := testUploadConfig(10 * 1024)
	cfg.AllowedMimeTypes = []string{"image/png"}

	reg := NewRegistry(events.NewBus())
	sender := &fakeSender{ok: true}
	p := NewChannelPipeline(cfg, "client-a", sender, reg, logger.Discard())

	f := NewMemoryFile("notes.txt", "text/plain", []byte("hello"), time.Now())
	task := &models.UploadTask{ID: "t-mime", FileName: f.Name(), Size: f.Size(),
		Transport: models.TransportChannel, Status: models.StatusPending}
	reg.add(task, f, func() {})

	p.Run(context.Background(), "t-mime", f)

	final := waitTerminal(t, reg, "t-mime")
	assert.Equal(t, models.StatusError, final.Status)
	assert.Contains(t, final.Error, string(models.ErrKindInvalidFile))
}

func TestChannelPipelineFailsWhenDisconnected(t *testing.T) {
	reg := NewRegistry(events.NewBus())
	sender := &fakeSender{ok: false}
	p := NewChannelPipeline(testUploadConfig(10*1024), "client-a", sender, reg, logger.Discard())

	id, f := startTask(reg, "offline.bin", 32)
	p.Run(context.Background(), id, f)

	final := waitTerminal(t, reg, id)
	assert.Equal(t, models.StatusError, final.Status)
	assert.Contains(t, final.Error, string(models.ErrKindNotConnected))
}

func TestChannelPipelineProgressIsMonotone(t *testing.T) {
	bus := events.NewBus()
	reg := NewRegistry(bus)

	var mu sync.Mutex
	var progress []int
	bus.Subscribe(func(e events.Event) {
		if tu, ok := e.(TaskUpdated); ok {
			mu.Lock()
			progress = append(progress, tu.Task.Progress)
			mu.Unlock()
		}
	})

	sender := &fakeSender{ok: true}
	p := NewChannelPipeline(testUploadConfig(10*1024), "client-a", sender, reg, logger.Discard())

	id, f := startTask(reg, "steady.bin", 128)
	p.Run(context.Background(), id, f)
	waitTerminal(t, reg, id)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1],
			"progress moved backwards at update %d: %v", i, progress)
	}
	assert.Equal(t, 100, progress[len(progress)-1])
}

func TestChannelPipelineHonoursCancelledContext(t *testing.T) {
	reg := NewRegistry(events.NewBus())
	sender := &fakeSender{ok: true}
	p := NewChannelPipeline(testUploadConfig(10*1024), "client-a", sender, reg, logger.Discard())

	id, f := startTask(reg, "halted.bin", 32)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx, id, f)

	final := waitTerminal(t, reg, id)
	assert.Equal(t, models.StatusCancelled, final.Status)
	assert.Empty(t, sender.sent())
}
